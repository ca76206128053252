package validation

import (
	"fmt"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Reason explains why a row failed validation
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNoInputProvided    Reason = "NO_INPUT_PROVIDED"
	ReasonNotNumeric         Reason = "NOT_NUMERIC"
	ReasonNotInteger         Reason = "NOT_INTEGER"
	ReasonOutOfRange         Reason = "OUT_OF_RANGE"
	ReasonNotInMasterDataset Reason = "NOT_IN_MASTER_DATASET"
)

// Reasons lists every failure reason in pipeline order
func Reasons() []Reason {
	return []Reason{
		ReasonNoInputProvided,
		ReasonNotNumeric,
		ReasonNotInteger,
		ReasonOutOfRange,
		ReasonNotInMasterDataset,
	}
}

// Default bounds of a Singapore postcode
const (
	DefaultRangeMin = 18906
	DefaultRangeMax = 918146

	maxPostcode = 999999
)

// Range is an inclusive numeric interval
type Range struct {
	Min int `json:"min" mapstructure:"min"`
	Max int `json:"max" mapstructure:"max"`
}

// Contains reports whether v lies within the inclusive bounds
func (r Range) Contains(v float64) bool {
	return v >= float64(r.Min) && v <= float64(r.Max)
}

// FieldNames are the derived column names written by the validator and
// extractor
type FieldNames struct {
	CorrectInputFlag  string `json:"correct_input_flag"`
	IncorrectReason   string `json:"incorrect_reason"`
	FormattedPostcode string `json:"formatted_postcode"`
	CandidatePostcode string `json:"candidate_postcode"`
	ExtractedPostcode string `json:"extracted_postcode"`
}

// DefaultFieldNames returns the standard output column names
func DefaultFieldNames() FieldNames {
	return FieldNames{
		CorrectInputFlag:  "CORRECT_INPUT_POSTCODE",
		IncorrectReason:   "INCORRECT_INPUT_POSTCODE_REASON",
		FormattedPostcode: "FORMATTED_POSTCODE",
		CandidatePostcode: "POSTCODE",
		ExtractedPostcode: "EXTRACTED",
	}
}

// Outputs lists the columns written by Validate
func (f FieldNames) Outputs() []string {
	return []string{f.CorrectInputFlag, f.IncorrectReason, f.FormattedPostcode}
}

// Derived lists every column the validator or extractor may write
func (f FieldNames) Derived() []string {
	return append(f.Outputs(), f.ExtractedPostcode)
}

// CheckSource rejects a source column that the listed derived columns would
// overwrite
func CheckSource(column string, derived []string) error {
	for _, name := range derived {
		if column == name {
			return apperrors.InvalidConfig(
				fmt.Sprintf("column %q has the name of a derived field and would be overwritten; rename it", column))
		}
	}
	return nil
}

// Config controls validation. It is treated as immutable once a Validator
// has been built from it.
type Config struct {
	Range                      Range      `json:"range"`
	DropIncorrect              bool       `json:"drop_incorrect"`
	KeepValidationFields       bool       `json:"keep_validation_fields"`
	KeepFormattedPostcodeField bool       `json:"keep_formatted_postcode_field"`
	FieldNames                 FieldNames `json:"validation_field_names"`
}

// DefaultConfig keeps every row and every derived field
func DefaultConfig() Config {
	return Config{
		Range:                      Range{Min: DefaultRangeMin, Max: DefaultRangeMax},
		DropIncorrect:              false,
		KeepValidationFields:       true,
		KeepFormattedPostcodeField: true,
		FieldNames:                 DefaultFieldNames(),
	}
}

// ForTesting returns a copy that keeps all rows and all derived fields, the
// settings used when scoring candidate columns.
func (c Config) ForTesting() Config {
	c.DropIncorrect = false
	c.KeepValidationFields = true
	c.KeepFormattedPostcodeField = true
	return c
}

// Validate checks the configuration once at the boundary
func (c Config) Validate() error {
	if c.Range.Min < 0 || c.Range.Max > maxPostcode || c.Range.Min > c.Range.Max {
		return apperrors.InvalidConfig(
			fmt.Sprintf("postcode range [%d, %d] must satisfy 0 <= min <= max <= %d", c.Range.Min, c.Range.Max, maxPostcode))
	}

	names := map[string]string{
		"correct_input_flag": c.FieldNames.CorrectInputFlag,
		"incorrect_reason":   c.FieldNames.IncorrectReason,
		"formatted_postcode": c.FieldNames.FormattedPostcode,
		"candidate_postcode": c.FieldNames.CandidatePostcode,
		"extracted_postcode": c.FieldNames.ExtractedPostcode,
	}
	seen := make(map[string]string, len(names))
	for key, name := range names {
		if name == "" {
			return apperrors.InvalidConfig(fmt.Sprintf("validation field name %s must not be empty", key))
		}
		if other, dup := seen[name]; dup {
			return apperrors.InvalidConfig(
				fmt.Sprintf("validation field names %s and %s are both %q", other, key, name))
		}
		seen[name] = key
	}
	return nil
}

// Lookup is the membership test of the master postcode set
type Lookup interface {
	Contains(postcode string) bool
}

// Result is the validation record of one input value. Formatted is empty
// when no canonical value was produced.
type Result struct {
	Formatted string `json:"formatted_postcode,omitempty"`
	Valid     bool   `json:"correct_input_flag"`
	Reason    Reason `json:"incorrect_reason,omitempty"`
}

// Summary aggregates a set of results
type Summary struct {
	Total   int            `json:"total"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
	Reasons map[Reason]int `json:"reasons"`
}

// SuccessRate is the share of valid rows, zero for an empty set
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Total)
}

// Summarize counts valid rows and failure reasons
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Reasons: make(map[Reason]int)}
	for _, r := range results {
		if r.Valid {
			s.Valid++
			continue
		}
		s.Invalid++
		s.Reasons[r.Reason]++
	}
	return s
}
