package domain

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Record is a single row keyed by column name. Values are numbers, strings
// or nil.
type Record map[string]interface{}

// Table is an ordered sequence of rows sharing a column list. Column names
// are unique. Operations that derive a table never modify the receiver.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewTable builds a table. Duplicate column names are collapsed.
func NewTable(columns []string, rows []Record) *Table {
	seen := make(map[string]bool, len(columns))
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	if rows == nil {
		rows = []Record{}
	}
	return &Table{Columns: cols, Rows: rows}
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the column exists
func (t *Table) HasColumn(name string) bool {
	return t.columnIndex(name) >= 0
}

func (t *Table) columnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of a column in row order. Missing cells are nil.
func (t *Table) Column(name string) []interface{} {
	values := make([]interface{}, t.Len())
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// Clone copies the column list and every row map. Cell values are shared,
// which is safe because they are immutable scalars.
func (t *Table) Clone() *Table {
	cols := make([]string, len(t.Columns))
	copy(cols, t.Columns)

	rows := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		r := make(Record, len(row))
		for k, v := range row {
			r[k] = v
		}
		rows[i] = r
	}
	return &Table{Columns: cols, Rows: rows}
}

// SetColumn writes values into the named column, appending the column if it
// does not exist yet. It mutates the receiver and is meant to be called on a
// Clone.
func (t *Table) SetColumn(name string, values []interface{}) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(t.Rows))
	}
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for i, row := range t.Rows {
		row[name] = values[i]
	}
	return nil
}

// DropColumns returns a copy without the named columns. Unknown names are
// ignored.
func (t *Table) DropColumns(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	out := t.Clone()
	cols := out.Columns[:0]
	for _, c := range out.Columns {
		if !drop[c] {
			cols = append(cols, c)
		}
	}
	out.Columns = cols
	for _, row := range out.Rows {
		for n := range drop {
			delete(row, n)
		}
	}
	return out
}

// Select returns a copy holding only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	for _, n := range names {
		if !t.HasColumn(n) {
			return nil, apperrors.ColumnNotFound(n)
		}
	}
	rows := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		r := make(Record, len(names))
		for _, n := range names {
			r[n] = row[n]
		}
		rows[i] = r
	}
	return NewTable(names, rows), nil
}

// Filter returns a copy holding the rows for which keep returns true
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: []Record{}}
	for _, row := range t.Clone().Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// SelectRows returns a copy holding the rows at the given indices, in that order
func (t *Table) SelectRows(indices []int) *Table {
	src := t.Clone()
	out := &Table{Columns: src.Columns, Rows: make([]Record, 0, len(indices))}
	for _, i := range indices {
		out.Rows = append(out.Rows, src.Rows[i])
	}
	return out
}

// Sample draws min(n, Len()) distinct rows using a generator seeded with
// seed. The same table, n and seed always produce the same sample. Sampled
// rows keep their original relative order.
func (t *Table) Sample(n int, seed int64) *Table {
	total := t.Len()
	if n >= total {
		return t.Clone()
	}
	if n <= 0 {
		return &Table{Columns: append([]string(nil), t.Columns...), Rows: []Record{}}
	}

	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(total)[:n]
	sort.Ints(indices)
	return t.SelectRows(indices)
}

// LeftJoin joins every row of left to at most one row of right where
// left[leftKey] equals right[rightKey]. Keys are compared by their text
// form and nil keys never match. Right-hand columns whose names already exist
// on the left get suffix appended; left-hand names are never changed.
//
// Duplicate keys on the right side are rejected with a
// DUPLICATE_REFERENCE_KEY error so that no left row is ever repeated.
func LeftJoin(left, right *Table, leftKey, rightKey, suffix string) (*Table, error) {
	if !left.HasColumn(leftKey) {
		return nil, apperrors.ColumnNotFound(leftKey)
	}
	if !right.HasColumn(rightKey) {
		return nil, apperrors.ColumnNotFound(rightKey)
	}

	index, err := UniqueIndex(right, rightKey)
	if err != nil {
		return nil, err
	}

	leftCols := make(map[string]bool, len(left.Columns))
	for _, c := range left.Columns {
		leftCols[c] = true
	}

	// right column -> output column
	renamed := make(map[string]string, len(right.Columns))
	outCols := append([]string(nil), left.Columns...)
	for _, c := range right.Columns {
		name := c
		if leftCols[c] {
			name = c + suffix
		}
		renamed[c] = name
		outCols = append(outCols, name)
	}

	out := left.Clone()
	out.Columns = outCols
	for _, row := range out.Rows {
		var match Record
		if key, ok := KeyString(row[leftKey]); ok {
			if idx, found := index[key]; found {
				match = right.Rows[idx]
			}
		}
		for c, name := range renamed {
			if match != nil {
				row[name] = match[c]
			} else {
				row[name] = nil
			}
		}
	}
	return out, nil
}

// UniqueIndex maps each key of column to its row index, failing on the first
// key that occurs more than once. Nil keys are skipped.
func UniqueIndex(t *Table, column string) (map[string]int, error) {
	index := make(map[string]int, t.Len())
	counts := make(map[string]int)
	var dup string

	for i, row := range t.Rows {
		key, ok := KeyString(row[column])
		if !ok {
			continue
		}
		counts[key]++
		if _, exists := index[key]; exists {
			if dup == "" {
				dup = key
			}
			continue
		}
		index[key] = i
	}

	if dup != "" {
		return nil, apperrors.DuplicateReferenceKey(dup, counts[dup])
	}
	return index, nil
}

// Concat stacks tables vertically. The resulting column list is the union
// of all column lists in first-seen order; missing cells are nil.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	out := NewTable(cols, nil)
	for _, t := range tables {
		for _, row := range t.Clone().Rows {
			for _, c := range cols {
				if _, ok := row[c]; !ok {
					row[c] = nil
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// IsNull reports whether a cell holds no value: nil, NaN, or a string that
// is empty after trimming.
func IsNull(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(val)
	case float32:
		return math.IsNaN(float64(val))
	case string:
		return strings.TrimSpace(val) == ""
	case *string:
		return val == nil || strings.TrimSpace(*val) == ""
	case *float64:
		return val == nil || math.IsNaN(*val)
	}
	return false
}

var numericText = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ToNumber parses a cell as a finite number. Strings must be plain decimal
// or scientific notation; hex, NaN and Inf spellings are rejected.
func ToNumber(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		s := strings.TrimSpace(val)
		if !numericText.MatchString(s) {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case fmt.Stringer:
		return ToNumber(val.String())
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToText renders a cell the way it would appear in a CSV export. Null cells
// render as the empty string.
func ToText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if math.IsNaN(val) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case *float64:
		if val == nil {
			return ""
		}
		return ToText(*val)
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

// KeyString returns the join key form of a cell. ok is false for null cells.
func KeyString(v interface{}) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	return ToText(v), true
}
