package leadimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyCSV  = errors.New("empty or invalid CSV: no data rows found")
	ErrNoHeaders = errors.New("empty or invalid CSV: header row could not be determined")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawTable is a parsed CSV: an ordered header row and the data rows
// beneath it. Headers are unique by position, not necessarily by text;
// cell lookups by header name resolve to the first occurrence. Immutable
// after parse.
type RawTable struct {
	Headers []string
	rows    [][]string
	index   map[string]int // header text -> first column index
}

// RowCount returns the number of data rows.
func (t *RawTable) RowCount() int { return len(t.rows) }

// Row returns the i-th data row (0-based).
func (t *RawTable) Row(i int) RawRow { return RawRow{t: t, i: i} }

// SampleRows returns up to n data rows as raw string slices, for header
// classification and import previews.
func (t *RawTable) SampleRows(n int) [][]string {
	if n > len(t.rows) {
		n = len(t.rows)
	}
	out := make([][]string, n)
	copy(out, t.rows[:n])
	return out
}

// RawRow is a view over one data row. Lookups by header name are explicit
// about misses instead of silently returning an empty value for unknown
// headers.
type RawRow struct {
	t *RawTable
	i int
}

// Get returns the cell under the named header. The second return value is
// false when the header does not exist in the table at all; a cell the row
// is simply missing comes back as an empty string with ok=true.
func (r RawRow) Get(header string) (string, bool) {
	col, ok := r.t.index[header]
	if !ok {
		return "", false
	}
	return r.Value(col), true
}

// Value returns the cell at the given column index, empty string if the
// row is shorter than the header row.
func (r RawRow) Value(col int) string {
	row := r.t.rows[r.i]
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// ParseCSV reads an entire uploaded file into a RawTable. The stream must
// be UTF-8; a leading byte-order mark is stripped. The first record is the
// header row and at least one data row must follow.
func ParseCSV(r io.Reader) (*RawTable, error) {
	br := bufio.NewReader(r)

	// Strip UTF-8 BOM if present (Excel exports prepend one).
	if peek, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(peek, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyCSV, err)
	}

	blank := true
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, ErrNoHeaders
	}

	t := &RawTable{
		Headers: header,
		index:   make(map[string]int, len(header)),
	}
	for i, h := range header {
		if _, seen := t.index[h]; !seen {
			t.index[h] = i
		}
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed individual rows are excluded, not fatal.
			continue
		}
		t.rows = append(t.rows, row)
	}

	if len(t.rows) == 0 {
		return nil, ErrEmptyCSV
	}
	return t, nil
}
