package leadimport

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoMappedURLColumn means the mapping carries no profile_url column
	// at all. Recoverable by re-mapping; raised before any row is scanned.
	ErrNoMappedURLColumn = errors.New("no column is mapped as LinkedIn URL: map at least one column as LinkedIn URL")

	// ErrNoValidURLs means a URL column was mapped but the full scan found
	// zero valid LinkedIn URLs. Distinct from ErrNoMappedURLColumn so the
	// caller can word the corrective action differently.
	ErrNoValidURLs = errors.New("no valid LinkedIn URLs found: check your column mapping")
)

// LinkedIn path shapes accepted for individual profiles and company pages.
var (
	profileURLPattern = regexp.MustCompile(`(?i)^https?://([a-z0-9-]+\.)?linkedin\.com/(in|profile)/[^/\s?#]+`)
	companyURLPattern = regexp.MustCompile(`(?i)^https?://([a-z0-9-]+\.)?linkedin\.com/company/[^/\s?#]+`)
)

// completenessTypes are the fields whose blank cells are worth reporting
// to the user. Advisory only.
var completenessTypes = []SemanticType{TypeFirstName, TypeLastName, TypeEmail}

const maxMissingSamples = 3

// Verifier validates mapped URL columns and reports data completeness
// before an import is committed.
type Verifier struct{}

// NewVerifier creates a content verifier.
func NewVerifier() *Verifier { return &Verifier{} }

// Verify scans every row's profile_url-mapped columns. A row counts as
// valid when ANY of its mapped URL columns yields a valid LinkedIn URL.
// Returns ErrNoMappedURLColumn without scanning when the mapping has no
// URL column, and ErrNoValidURLs after a full scan that validated nothing.
// The report is returned alongside ErrNoValidURLs so the caller can still
// show the per-row detail. The mapping must be in the table's header
// order, one entry per header; AlignMapping puts an edited one there.
func (v *Verifier) Verify(table *RawTable, mapping []ColumnMapping) (*VerificationReport, error) {
	urlCols := columnsOfType(table, mapping, TypeProfileURL)
	if len(urlCols) == 0 {
		return nil, ErrNoMappedURLColumn
	}

	report := &VerificationReport{
		ColumnCompleteness: make(map[string]ColumnCompleteness),
	}

	for i := 0; i < table.RowCount(); i++ {
		row := table.Row(i)
		rowValid := false
		var invalid []string

		for _, col := range urlCols {
			val := strings.TrimSpace(row.Value(col))
			if val == "" {
				continue
			}
			if IsValidLinkedInURL(val) {
				rowValid = true
			} else {
				invalid = append(invalid, val)
			}
		}

		if rowValid {
			report.ValidURLCount++
			continue
		}
		// Report rows rejected for bad values; rows with only empty URL
		// cells are dropped silently later by the normalizer.
		for _, val := range invalid {
			report.InvalidURLCount++
			report.InvalidURLRows = append(report.InvalidURLRows, InvalidURL{
				Row:   i + 1, // 1-based for user-facing reporting
				Value: val,
			})
		}
	}

	v.reportCompleteness(table, mapping, report)

	if report.ValidURLCount == 0 {
		return report, ErrNoValidURLs
	}
	return report, nil
}

// reportCompleteness counts blank cells in first_name, last_name and
// email columns, keeping the first few offending row indices per column.
func (v *Verifier) reportCompleteness(table *RawTable, mapping []ColumnMapping, report *VerificationReport) {
	for _, t := range completenessTypes {
		for _, col := range columnsOfType(table, mapping, t) {
			name := table.Headers[col]
			cc := ColumnCompleteness{}
			for i := 0; i < table.RowCount(); i++ {
				if strings.TrimSpace(table.Row(i).Value(col)) != "" {
					continue
				}
				cc.MissingCount++
				if len(cc.SampleMissingRows) < maxMissingSamples {
					cc.SampleMissingRows = append(cc.SampleMissingRows, i+1)
				}
			}
			if cc.MissingCount > 0 {
				report.ColumnCompleteness[name] = cc
			}
		}
	}
}

// RejectedRows returns the 0-based row-index set of URL-invalid rows,
// which the normalizer uses as its rejection set.
func (r *VerificationReport) RejectedRows() map[int]bool {
	out := make(map[int]bool, len(r.InvalidURLRows))
	for _, iv := range r.InvalidURLRows {
		out[iv.Row-1] = true
	}
	return out
}

// NormalizeURL trims a raw cell value and prefixes https:// when no
// scheme is present.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u
}

// IsValidLinkedInURL reports whether the value, after normalization, has
// a LinkedIn individual-profile or company-page shape.
func IsValidLinkedInURL(raw string) bool {
	u := NormalizeURL(raw)
	if u == "" {
		return false
	}
	return profileURLPattern.MatchString(u) || companyURLPattern.MatchString(u)
}

// columnsOfType returns the table column indices of every header the
// mapping assigns the given type. Headers duplicated by text resolve by
// position, so indices come from the mapping's own order.
func columnsOfType(table *RawTable, mapping []ColumnMapping, t SemanticType) []int {
	var cols []int
	for i, m := range mapping {
		if m.MappedType == t && i < len(table.Headers) {
			cols = append(cols, i)
		}
	}
	return cols
}
