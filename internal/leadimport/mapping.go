package leadimport

import (
	"errors"
	"fmt"
)

// ErrMappingConflict means an edit would assign a single-use semantic
// type to more than one column. Rejected at edit time; a mapping that
// reaches the normalizer never carries a conflict.
var ErrMappingConflict = errors.New("mapping conflict")

// ErrUnknownColumn means a mapping edit names a column the uploaded file
// does not have.
var ErrUnknownColumn = errors.New("unknown column")

// ValidateMapping enforces the single-use invariant: any semantic type
// outside the two reserved multi-use types may appear on at most one
// column. Returns an error naming the colliding columns so the UI can
// point at them instead of silently overwriting one.
func ValidateMapping(mapping []ColumnMapping) error {
	first := make(map[SemanticType]string)
	for _, m := range mapping {
		if m.MappedType.IsMultiUse() {
			continue
		}
		if prev, ok := first[m.MappedType]; ok {
			return fmt.Errorf("%w: %q and %q are both mapped as %s",
				ErrMappingConflict, prev, m.ColumnName, m.MappedType)
		}
		first[m.MappedType] = m.ColumnName
	}
	return nil
}

// ApplyEdit returns a copy of the mapping with one column re-assigned,
// re-validating the single-use invariant. The original mapping is left
// untouched on rejection.
func ApplyEdit(mapping []ColumnMapping, columnName string, newType SemanticType) ([]ColumnMapping, error) {
	edited := make([]ColumnMapping, len(mapping))
	copy(edited, mapping)

	found := false
	for i := range edited {
		if edited[i].ColumnName == columnName {
			edited[i].MappedType = newType
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, columnName)
	}
	if err := ValidateMapping(edited); err != nil {
		return nil, err
	}
	return edited, nil
}

// AlignMapping re-orders an edited mapping to match the file's header
// order, resolving entries by column name instead of position. Clients
// may send entries in any order and may omit columns: omitted headers
// come back as do_not_import. An entry naming a header the file does not
// have is rejected. Headers duplicated by text claim entries first-come
// in header order.
func AlignMapping(headers []string, mapping []ColumnMapping) ([]ColumnMapping, error) {
	claimed := make([]bool, len(mapping))
	aligned := make([]ColumnMapping, 0, len(headers))

	for _, h := range headers {
		entry := ColumnMapping{ColumnName: h, MappedType: TypeDoNotImport}
		for i, m := range mapping {
			if !claimed[i] && m.ColumnName == h {
				claimed[i] = true
				entry = m
				break
			}
		}
		aligned = append(aligned, entry)
	}
	for i, m := range mapping {
		if !claimed[i] {
			return nil, fmt.Errorf("%w: %q is not a column of the uploaded file",
				ErrUnknownColumn, m.ColumnName)
		}
	}
	return aligned, nil
}
