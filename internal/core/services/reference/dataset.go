package reference

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// PostcodeSet is an immutable set of canonical postcodes
type PostcodeSet struct {
	codes map[string]struct{}
}

// NewPostcodeSet builds a set from canonical postcodes
func NewPostcodeSet(codes []string) *PostcodeSet {
	s := &PostcodeSet{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		s.codes[c] = struct{}{}
	}
	return s
}

// PostcodeSetFromTable builds a set from a master list. The table must have
// exactly one column.
func PostcodeSetFromTable(t *domain.Table) (*PostcodeSet, error) {
	if t == nil || len(t.Columns) != 1 {
		n := 0
		if t != nil {
			n = len(t.Columns)
		}
		return nil, apperrors.InvalidMasterReference(
			fmt.Sprintf("master postcode list must have exactly one column, got %d", n)).
			WithDetails("columns", n)
	}

	col := t.Columns[0]
	codes := make([]string, 0, t.Len())
	for _, row := range t.Rows {
		if key, ok := CanonicalKey(row[col]); ok {
			codes = append(codes, key)
		}
	}
	return NewPostcodeSet(codes), nil
}

// Contains reports membership
func (s *PostcodeSet) Contains(postcode string) bool {
	_, ok := s.codes[postcode]
	return ok
}

// Len returns the number of postcodes
func (s *PostcodeSet) Len() int {
	return len(s.codes)
}

// Codes returns the postcodes in ascending order
func (s *PostcodeSet) Codes() []string {
	out := make([]string, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CanonicalKey renders a reference key as a six digit string. Integral
// numbers, integral numeric text such as "18906.0" and short digit strings
// are zero padded so that a key read as 18906 matches "018906".
func CanonicalKey(v interface{}) (string, bool) {
	if domain.IsNull(v) {
		return "", false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.Trim(s, "0123456789") == "" {
			if len(s) < 6 {
				s = strings.Repeat("0", 6-len(s)) + s
			}
			return s, true
		}
		if key, ok := integralKey(s); ok {
			return key, true
		}
		return s, true
	}
	if key, ok := integralKey(v); ok {
		return key, true
	}
	return domain.KeyString(v)
}

func integralKey(v interface{}) (string, bool) {
	n, ok := domain.ToNumber(v)
	if !ok || n < 0 || n > maxKey || math.Mod(n, 1) != 0 {
		return "", false
	}
	return fmt.Sprintf("%06d", int64(n)), true
}

const maxKey = 999999

// Dataset is a loaded master reference: the geocoded table keyed by
// postcode plus the derived postcode set. It is never modified after
// construction; share it freely between requests.
type Dataset struct {
	table     *domain.Table
	keyColumn string
	postcodes *PostcodeSet
	source    string
	loadedAt  time.Time
}

// NewDataset validates and indexes a geocoded reference table. Keys are
// canonicalised and must be unique.
func NewDataset(table *domain.Table, keyColumn, source string) (*Dataset, error) {
	if table == nil {
		return nil, apperrors.InvalidMasterReference("master reference table is nil")
	}
	if !table.HasColumn(keyColumn) {
		return nil, apperrors.InvalidMasterReference(
			fmt.Sprintf("master reference has no %s column", keyColumn))
	}

	t := table.Clone()
	codes := make([]string, 0, t.Len())
	for _, row := range t.Rows {
		key, ok := CanonicalKey(row[keyColumn])
		if !ok {
			row[keyColumn] = nil
			continue
		}
		row[keyColumn] = key
		codes = append(codes, key)
	}

	if _, err := domain.UniqueIndex(t, keyColumn); err != nil {
		return nil, err
	}

	return &Dataset{
		table:     t,
		keyColumn: keyColumn,
		postcodes: NewPostcodeSet(codes),
		source:    source,
		loadedAt:  time.Now().UTC(),
	}, nil
}

// Table returns the reference table. Callers must treat it as read-only.
func (d *Dataset) Table() *domain.Table {
	return d.table
}

// KeyColumn is the postcode column of the reference table
func (d *Dataset) KeyColumn() string {
	return d.keyColumn
}

// Postcodes returns the membership set used by the validator
func (d *Dataset) Postcodes() *PostcodeSet {
	return d.postcodes
}

// MasterList returns the one-column postcode table
func (d *Dataset) MasterList() *domain.Table {
	codes := d.postcodes.Codes()
	rows := make([]domain.Record, len(codes))
	for i, c := range codes {
		rows[i] = domain.Record{d.keyColumn: c}
	}
	return domain.NewTable([]string{d.keyColumn}, rows)
}

// Len returns the number of reference rows
func (d *Dataset) Len() int {
	return d.table.Len()
}

// Source describes where the dataset was loaded from
func (d *Dataset) Source() string {
	return d.source
}

// LoadedAt is when the dataset was built
func (d *Dataset) LoadedAt() time.Time {
	return d.loadedAt
}
