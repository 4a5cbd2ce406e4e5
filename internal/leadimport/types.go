package leadimport

import (
	"time"
)

// SemanticType is the canonical meaning assigned to a CSV column,
// independent of its literal header text.
type SemanticType string

const (
	TypeProfileURL     SemanticType = "profile_url"
	TypeFirstName      SemanticType = "first_name"
	TypeLastName       SemanticType = "last_name"
	TypeCompany        SemanticType = "company"
	TypeTitle          SemanticType = "title"
	TypeHeadline       SemanticType = "headline"
	TypeLocation       SemanticType = "location"
	TypeEmail          SemanticType = "email"
	TypeCompanyURL     SemanticType = "company_url"
	TypeCustomVariable SemanticType = "custom_variable"
	TypeDoNotImport    SemanticType = "do_not_import"
)

// IsMultiUse reports whether the type may be assigned to more than one
// column in a single mapping. All other types are single-use.
func (t SemanticType) IsMultiUse() bool {
	return t == TypeCustomVariable || t == TypeDoNotImport
}

// IsKnownAttribute reports whether the type maps to a named LeadRecord
// attribute. Everything else lands in the custom fields bag.
func (t SemanticType) IsKnownAttribute() bool {
	switch t {
	case TypeProfileURL, TypeFirstName, TypeLastName, TypeCompany, TypeTitle:
		return true
	}
	return false
}

// ColumnMapping binds one raw CSV header to a semantic type, carrying a
// few sample values for the mapping review UI.
type ColumnMapping struct {
	ColumnName   string       `json:"column_name"`
	MappedType   SemanticType `json:"mapped_type"`
	SampleValues []string     `json:"sample_values,omitempty"`
}

// VerificationReport is the transient result of the URL and completeness
// pass over a mapped table. It is recomputed on every attempt and never
// persisted.
type VerificationReport struct {
	ValidURLCount      int                           `json:"valid_url_count"`
	InvalidURLCount    int                           `json:"invalid_url_count"`
	InvalidURLRows     []InvalidURL                  `json:"invalid_url_rows,omitempty"`
	ColumnCompleteness map[string]ColumnCompleteness `json:"column_completeness,omitempty"`
}

// InvalidURL records one rejected URL value. Row indices are 1-based so
// they line up with what the user sees in a spreadsheet.
type InvalidURL struct {
	Row   int    `json:"row"`
	Value string `json:"value"`
}

// ColumnCompleteness reports how many cells of an important column are
// blank. Advisory only; never blocks an import.
type ColumnCompleteness struct {
	MissingCount      int   `json:"missing_count"`
	SampleMissingRows []int `json:"sample_missing_rows,omitempty"` // 1-based, at most 3
}

// LeadRecord is one normalized prospect entry ready for campaign use.
// ProfileURL is the unique key within a list; a record without one is
// dropped before persistence.
type LeadRecord struct {
	ProfileURL   string            `json:"profile_url"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Company      string            `json:"company,omitempty"`
	Title        string            `json:"title,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// LeadList is the durable container created by a successful import. It
// exclusively owns its LeadRecords; deleting a list cascades to them.
type LeadList struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	TotalLeads     int             `json:"total_leads"`
	MappedHeaders  []ColumnMapping `json:"mapped_headers"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	Leads          []LeadRecord    `json:"leads,omitempty"`
}
