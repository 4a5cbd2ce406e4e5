package leadimport

import "strings"

// Normalizer turns raw string rows into typed lead records using a
// column mapping.
type Normalizer struct{}

// NewNormalizer creates a row normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize builds one LeadRecord per row not in rejectRows (0-based
// indices). Cell values are trimmed; known types fill the record's named
// attributes, everything else mapped lands in the custom fields bag keyed
// by the mapped type name. Records without a profile URL are dropped
// silently — that is a normal outcome for rows genuinely missing a URL,
// unlike a verification-time invalid-URL rejection which is reported.
// Output preserves input row order with dropped rows simply absent.
func (n *Normalizer) Normalize(table *RawTable, mapping []ColumnMapping, rejectRows map[int]bool) []LeadRecord {
	var records []LeadRecord

	for i := 0; i < table.RowCount(); i++ {
		if rejectRows[i] {
			continue
		}
		row := table.Row(i)
		rec := LeadRecord{}

		for col, m := range mapping {
			if m.MappedType == TypeDoNotImport {
				continue
			}
			val := strings.TrimSpace(row.Value(col))

			switch m.MappedType {
			case TypeProfileURL:
				if val != "" {
					rec.ProfileURL = NormalizeURL(val)
				}
			case TypeFirstName:
				rec.FirstName = val
			case TypeLastName:
				rec.LastName = val
			case TypeCompany:
				rec.Company = val
			case TypeTitle:
				rec.Title = val
			default:
				// Custom variables and any mapped type without a named
				// attribute. Keyed by the type name, not the header text:
				// two headers on the same custom slot collapse to one key.
				if val != "" {
					if rec.CustomFields == nil {
						rec.CustomFields = make(map[string]string)
					}
					rec.CustomFields[string(m.MappedType)] = val
				}
			}
		}

		if rec.ProfileURL == "" {
			continue
		}
		records = append(records, rec)
	}

	return records
}
