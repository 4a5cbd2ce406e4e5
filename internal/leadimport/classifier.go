package leadimport

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// =============================================================================
// HEADER CLASSIFIER
// =============================================================================
// Assigns a semantic type to every raw CSV header, in priority order:
//   1. Exact match against canonical field names
//   2. Fuzzy match against the fields' human-readable labels
//   3. Keyword containment rules (fixed priority, first match wins)
//   4. Content sampling (LinkedIn URL shapes in the column's values)
//   5. Single-use enforcement (first header wins, later ones demoted)
//   6. Profile URL rescue by content when no header claimed profile_url
// Classification is a pure function of (headers, samples, config).

// CanonicalField describes one semantic field the classifier can assign.
type CanonicalField struct {
	Name  SemanticType `json:"name"`
	Label string       `json:"label"`
}

// KeywordRule matches a header by token containment. Every token group in
// All must contribute at least one hit, and no token in None may appear.
// Rules are evaluated in order; the first match wins, so the order in the
// table is part of the classifier contract.
type KeywordRule struct {
	All  [][]string   `json:"all"`
	None []string     `json:"none,omitempty"`
	Type SemanticType `json:"type"`
}

// ClassifierConfig is the static, versioned rule set driving header
// classification. Passing it in (rather than reading package globals)
// keeps classification deterministic and testable.
type ClassifierConfig struct {
	Version         string           `json:"version"`
	Fields          []CanonicalField `json:"fields"`
	KeywordRules    []KeywordRule    `json:"keyword_rules"`
	FuzzyThreshold  float64          `json:"fuzzy_threshold"`
	SampleLimit     int              `json:"sample_limit"`
	MaxSampleValues int              `json:"max_sample_values"`
	RescueRows      int              `json:"rescue_rows"`
}

// DefaultClassifierConfig returns the production rule set.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Version: "2025-08-1",
		Fields: []CanonicalField{
			{Name: TypeProfileURL, Label: "Profile URL"},
			{Name: TypeFirstName, Label: "First Name"},
			{Name: TypeLastName, Label: "Last Name"},
			{Name: TypeCompany, Label: "Company"},
			{Name: TypeTitle, Label: "Title"},
			{Name: TypeHeadline, Label: "Headline"},
			{Name: TypeLocation, Label: "Location"},
			{Name: TypeEmail, Label: "Email"},
			{Name: TypeCustomVariable, Label: "Tags"},
		},
		KeywordRules: []KeywordRule{
			// Company page URLs are a distinct type; without this rule a
			// "Company URL" header would fall into the profile_url bucket
			// below because of its "url" token.
			{All: [][]string{{"company", "employer", "organization"}, {"url", "link", "profile"}}, None: []string{"linkedin"}, Type: TypeCompanyURL},
			{All: [][]string{{"url", "link", "profile"}}, Type: TypeProfileURL},
			{All: [][]string{{"first", "fname"}}, Type: TypeFirstName},
			{All: [][]string{{"last", "lname"}}, Type: TypeLastName},
			{All: [][]string{{"headline"}}, Type: TypeHeadline},
			{All: [][]string{{"title", "role", "position"}}, Type: TypeTitle},
			{All: [][]string{{"location", "city", "country"}}, Type: TypeLocation},
			{All: [][]string{{"company", "employer", "organization"}}, Type: TypeCompany},
			{All: [][]string{{"email"}}, Type: TypeEmail},
			{All: [][]string{{"tag"}}, Type: TypeCustomVariable},
		},
		FuzzyThreshold:  0.5,
		SampleLimit:     5,
		MaxSampleValues: 4,
		RescueRows:      5,
	}
}

// Classifier assigns semantic types to CSV headers.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given rule set.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = 0.5
	}
	if cfg.SampleLimit == 0 {
		cfg.SampleLimit = 5
	}
	if cfg.MaxSampleValues == 0 {
		cfg.MaxSampleValues = 4
	}
	if cfg.RescueRows == 0 {
		cfg.RescueRows = 5
	}
	return &Classifier{cfg: cfg}
}

// Classify maps every header to a semantic type. sampleRows are raw data
// rows aligned to the header order; only the first SampleLimit rows are
// inspected. Output order matches input header order. No side effects.
func (c *Classifier) Classify(headers []string, sampleRows [][]string) []ColumnMapping {
	mappings := make([]ColumnMapping, len(headers))
	for i, h := range headers {
		mappings[i] = ColumnMapping{
			ColumnName:   h,
			MappedType:   c.classifyHeader(h, columnSamples(sampleRows, i, c.cfg.SampleLimit)),
			SampleValues: columnSamples(sampleRows, i, c.cfg.MaxSampleValues),
		}
	}

	c.enforceSingleUse(mappings)
	c.rescueProfileURL(mappings, sampleRows)
	return mappings
}

// classifyHeader runs steps 1-4 for a single header.
func (c *Classifier) classifyHeader(header string, samples []string) SemanticType {
	norm := normalizeHeader(header)

	// Step 1: exact canonical name
	for _, f := range c.cfg.Fields {
		if norm == string(f.Name) || norm == normalizeHeader(f.Label) {
			return f.Name
		}
	}

	lower := strings.ToLower(header)

	// Step 2: fuzzy match against labels. Headers carrying a URL-ish token
	// are excluded: "Company URL" scores 0.64 against "Company" but must
	// fall to the keyword rules, which know it is a company page column.
	if !containsAny(lower, "url", "link", "profile") {
		if t, ok := c.fuzzyMatch(header); ok {
			return t
		}
	}

	// Step 3: keyword containment, fixed priority
	for _, rule := range c.cfg.KeywordRules {
		if rule.matches(lower) {
			return rule.Type
		}
	}

	// Step 4: content sampling
	for _, v := range samples {
		if looksLikeProfileURL(v) {
			return TypeProfileURL
		}
	}

	return TypeDoNotImport
}

// fuzzyMatch scores the header against every field label and accepts the
// best score only above the configured threshold. Ties break toward the
// earlier field in the config, which fixes the confidence ordering.
func (c *Classifier) fuzzyMatch(header string) (SemanticType, bool) {
	best := TypeDoNotImport
	bestScore := 0.0
	for _, f := range c.cfg.Fields {
		score := similarity(header, f.Label)
		if score > bestScore {
			best = f.Name
			bestScore = score
		}
	}
	if bestScore > c.cfg.FuzzyThreshold {
		return best, true
	}
	return TypeDoNotImport, false
}

// enforceSingleUse demotes later duplicates of single-use types to
// do_not_import, in header order.
func (c *Classifier) enforceSingleUse(mappings []ColumnMapping) {
	seen := make(map[SemanticType]bool)
	for i, m := range mappings {
		if m.MappedType.IsMultiUse() {
			continue
		}
		if seen[m.MappedType] {
			mappings[i].MappedType = TypeDoNotImport
			continue
		}
		seen[m.MappedType] = true
	}
}

// rescueProfileURL handles exports that label the URL column generically
// ("URL", "Link", or nothing recognizable): when no header claimed
// profile_url, the first unmapped column with a LinkedIn-profile-shaped
// value in its first rows is taken.
func (c *Classifier) rescueProfileURL(mappings []ColumnMapping, sampleRows [][]string) {
	for _, m := range mappings {
		if m.MappedType == TypeProfileURL {
			return
		}
	}
	for i, m := range mappings {
		if m.MappedType != TypeDoNotImport {
			continue
		}
		for _, v := range columnSamples(sampleRows, i, c.cfg.RescueRows) {
			if looksLikeProfileURL(v) {
				mappings[i].MappedType = TypeProfileURL
				return
			}
		}
	}
}

func (r KeywordRule) matches(lowerHeader string) bool {
	for _, group := range r.All {
		hit := false
		for _, tok := range group {
			if strings.Contains(lowerHeader, tok) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, tok := range r.None {
		if strings.Contains(lowerHeader, tok) {
			return false
		}
	}
	return true
}

// normalizeHeader lowercases, trims, and folds separators to underscores
// so "Profile URL", "profile-url" and "profile_url" all compare equal.
func normalizeHeader(header string) string {
	norm := strings.ToLower(strings.TrimSpace(header))
	norm = strings.Trim(norm, "\"'")
	norm = strings.Join(strings.Fields(norm), "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	return norm
}

// similarity is a symmetric, case- and whitespace-insensitive score in
// [0,1] based on Levenshtein distance over the folded strings.
func similarity(a, b string) float64 {
	a = strings.Join(strings.Fields(strings.ToLower(a)), " ")
	b = strings.Join(strings.Fields(strings.ToLower(b)), " ")
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// looksLikeProfileURL reports whether a cell value has the LinkedIn
// individual-profile shape used for content-based classification.
func looksLikeProfileURL(v string) bool {
	return strings.Contains(strings.ToLower(v), "linkedin.com/in/")
}

func containsAny(s string, tokens ...string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// columnSamples extracts up to n values of column col from sample rows.
func columnSamples(sampleRows [][]string, col, n int) []string {
	var out []string
	for _, row := range sampleRows {
		if len(out) >= n {
			break
		}
		if col < len(row) {
			out = append(out, row[col])
		} else {
			out = append(out, "")
		}
	}
	return out
}
