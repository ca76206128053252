package identification

import (
	"fmt"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Method is how a column is turned into postcodes
type Method string

const (
	// MethodDirect validates the column values as they are
	MethodDirect Method = "DIRECT"
	// MethodIndirect extracts a postcode from free text first
	MethodIndirect Method = "INDIRECT"
)

// ParseMethod accepts DIRECT or INDIRECT in any case
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodDirect:
		return MethodDirect, nil
	case MethodIndirect:
		return MethodIndirect, nil
	}
	return "", apperrors.InvalidMethod(s)
}

// rank orders DIRECT before INDIRECT on equal success rates
func (m Method) rank() int {
	if m == MethodDirect {
		return 0
	}
	return 1
}

// Candidate is the score of one column under one method
type Candidate struct {
	Column         string  `json:"column"`
	Method         Method  `json:"method"`
	SuccessRate    float64 `json:"success_rate"`
	RegexPattern   string  `json:"regex_pattern,omitempty"`
	FieldNameScore float64 `json:"field_name_score"`
}

// Config controls identification
type Config struct {
	SampleSize        int      `json:"sample_size"`
	SuccessThreshold  float64  `json:"success_threshold"`
	RegexPattern      string   `json:"regex_pattern"`
	CandidateColumns  []string `json:"candidate_columns,omitempty"`
	Seed              int64    `json:"seed"`
	FieldNameTieBreak bool     `json:"field_name_tie_break"`
}

// DefaultConfig samples 100 rows with seed 42 and accepts a column when at
// least 10% of the sample validates.
func DefaultConfig() Config {
	return Config{
		SampleSize:        100,
		SuccessThreshold:  0.1,
		RegexPattern:      extraction.DefaultPattern,
		Seed:              42,
		FieldNameTieBreak: true,
	}
}

// Validate checks the configuration once at the boundary
func (c Config) Validate() error {
	if c.SampleSize <= 0 {
		return apperrors.InvalidConfig(fmt.Sprintf("sample size must be positive, got %d", c.SampleSize))
	}
	if c.SuccessThreshold <= 0 || c.SuccessThreshold > 1 {
		return apperrors.InvalidConfig(fmt.Sprintf("success threshold must be in (0, 1], got %g", c.SuccessThreshold))
	}
	if strings.TrimSpace(c.RegexPattern) == "" {
		return apperrors.MissingRegexPattern()
	}
	for _, col := range c.CandidateColumns {
		if col == "" {
			return apperrors.InvalidConfig("candidate column names must not be empty")
		}
	}
	return nil
}

// Result is the outcome of identification. Candidates are always ranked,
// even when no column passed the threshold.
type Result struct {
	Success    bool        `json:"success"`
	Best       *Candidate  `json:"best,omitempty"`
	BestRate   float64     `json:"best_rate"`
	Candidates []Candidate `json:"candidates"`
	SampleSize int         `json:"sample_size"`
}
