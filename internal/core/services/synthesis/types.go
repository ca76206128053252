package synthesis

import (
	"fmt"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Mutation is one step applied to a source postcode. Shorten keeps four or
// fewer digits and lengthen grows the code to seven or more, so both make
// the code unrecoverable; cut splits the digits with a separator.
type Mutation string

const (
	MutationShortForm      Mutation = "short_form"
	MutationShorten        Mutation = "shorten"
	MutationLengthen       Mutation = "lengthen"
	MutationZeroDecimal    Mutation = "zero_decimal"
	MutationZeroPad        Mutation = "zero_pad"
	MutationTrailing       Mutation = "trailing_characters"
	MutationPreceding      Mutation = "preceding_characters"
	MutationNonZeroDecimal Mutation = "non_zero_decimal"
	MutationCut            Mutation = "cut"
)

const mutationSeparator = "+"

// Output columns of Table
const (
	ColSynthID       = "SYNTH_ID"
	ColPostcode      = "POSTCODE"
	ColAddress       = "ADDRESS"
	ColExpected      = "EXPECTED_POSTCODE"
	ColValidPostcode = "VALID_POSTCODE"
	ColValidSubstr   = "VALID_SUBSTRING"
	ColMutations     = "MUTATIONS"
)

// Columns lists the output columns in order
func Columns() []string {
	return []string{ColSynthID, ColPostcode, ColAddress, ColExpected, ColValidPostcode, ColValidSubstr, ColMutations}
}

// Sample is one synthetic row with its ground truth. ValidPostcode tells
// whether Postcode, read as a postcode cell, yields Expected. ValidSubstring
// tells whether Address yields Expected when the postcode is extracted from
// the text with the default pattern.
type Sample struct {
	ID             int        `json:"synth_id"`
	Postcode       string     `json:"postcode"`
	Address        string     `json:"address"`
	Expected       string     `json:"expected_postcode"`
	ValidPostcode  bool       `json:"valid_postcode"`
	ValidSubstring bool       `json:"valid_substring"`
	Mutations      []Mutation `json:"mutations"`
}

// Config controls generation
type Config struct {
	// Count is the number of rows to generate
	Count int `json:"count"`

	// ValidShare is the share of rows whose postcode stays recoverable
	// from the address text
	ValidShare float64 `json:"valid_invalid_split"`

	Seed int64 `json:"seed"`

	// Range bounds the source postcodes; codes outside it are ignored
	Range validation.Range `json:"range"`
}

// DefaultConfig generates 1000 rows, half of them valid substrings
func DefaultConfig() Config {
	return Config{
		Count:      1000,
		ValidShare: 0.5,
		Seed:       42,
		Range:      validation.Range{Min: validation.DefaultRangeMin, Max: validation.DefaultRangeMax},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Count <= 0 {
		return apperrors.InvalidConfig(fmt.Sprintf("synthetic row count must be positive, got %d", c.Count))
	}
	if c.ValidShare < 0 || c.ValidShare > 1 {
		return apperrors.InvalidConfig(fmt.Sprintf("valid share must lie in [0, 1], got %g", c.ValidShare))
	}
	if c.Range.Min < 0 || c.Range.Min > c.Range.Max || c.Range.Max > 999999 {
		return apperrors.InvalidConfig(fmt.Sprintf("postcode range [%d, %d] is invalid", c.Range.Min, c.Range.Max))
	}
	return nil
}

// Table lays the samples out in Columns order
func Table(samples []Sample) *domain.Table {
	rows := make([]domain.Record, len(samples))
	for i, s := range samples {
		names := make([]string, len(s.Mutations))
		for j, m := range s.Mutations {
			names[j] = string(m)
		}
		rows[i] = domain.Record{
			ColSynthID:       s.ID,
			ColPostcode:      s.Postcode,
			ColAddress:       s.Address,
			ColExpected:      s.Expected,
			ColValidPostcode: s.ValidPostcode,
			ColValidSubstr:   s.ValidSubstring,
			ColMutations:     strings.Join(names, mutationSeparator),
		}
	}
	return domain.NewTable(Columns(), rows)
}

// Summary counts the ground truth labels of a run
type Summary struct {
	Total           int `json:"total"`
	ValidPostcodes  int `json:"valid_postcodes"`
	ValidSubstrings int `json:"valid_substrings"`
}

// Summarize counts the labels of samples
func Summarize(samples []Sample) Summary {
	s := Summary{Total: len(samples)}
	for _, sample := range samples {
		if sample.ValidPostcode {
			s.ValidPostcodes++
		}
		if sample.ValidSubstring {
			s.ValidSubstrings++
		}
	}
	return s
}
