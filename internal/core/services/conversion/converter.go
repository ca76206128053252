package conversion

import (
	"log/slog"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/identification"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Selection names the column and method used to produce postcodes
type Selection struct {
	Column       string                `json:"column"`
	Method       identification.Method `json:"method"`
	RegexPattern string                `json:"regex_pattern,omitempty"`
}

// FromCandidate turns an identification candidate into a selection
func FromCandidate(c identification.Candidate) Selection {
	return Selection{Column: c.Column, Method: c.Method, RegexPattern: c.RegexPattern}
}

// Check validates the selection against table
func (s Selection) Check(table *domain.Table) error {
	if !table.HasColumn(s.Column) {
		return apperrors.ColumnNotFound(s.Column)
	}
	method, err := identification.ParseMethod(string(s.Method))
	if err != nil {
		return err
	}
	if method == identification.MethodIndirect && s.RegexPattern == "" {
		return apperrors.MissingRegexPattern()
	}
	return nil
}

// Converter applies a selection to a full table
type Converter struct {
	validator *validation.Validator
	logger    *slog.Logger
}

// New creates a converter. A nil config means validation.DefaultConfig.
func New(cfg *validation.Config, logger *slog.Logger) (*Converter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := validation.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Converter{validator: v, logger: logger}, nil
}

// FieldNames returns the derived column names this converter writes
func (c *Converter) FieldNames() validation.FieldNames {
	return c.validator.Config().FieldNames
}

// Convert validates the selected column of table. For INDIRECT selections
// the extracted value is written to the extracted-postcode column first and
// validated from there; the original column is always preserved, so a
// selected column named like a derived field is rejected.
func (c *Converter) Convert(table *domain.Table, sel Selection, master validation.Lookup) (*domain.Table, error) {
	if table == nil {
		return nil, apperrors.InvalidConfig("table is nil")
	}
	if err := sel.Check(table); err != nil {
		return nil, err
	}
	method, _ := identification.ParseMethod(string(sel.Method))

	names := c.FieldNames()
	derived := names.Outputs()
	if method == identification.MethodIndirect {
		derived = names.Derived()
	}
	if err := validation.CheckSource(sel.Column, derived); err != nil {
		return nil, err
	}

	input := table
	column := sel.Column
	if method == identification.MethodIndirect {
		extractor, err := extraction.New(sel.RegexPattern)
		if err != nil {
			return nil, err
		}
		column = names.ExtractedPostcode
		input = table.Clone()
		if err := input.SetColumn(column, extractor.Extract(table.Column(sel.Column))); err != nil {
			return nil, err
		}
	}

	out, err := c.validator.Validate(input, column, master)
	if err != nil {
		return nil, err
	}

	c.logger.Info("postcode conversion completed",
		slog.String("column", sel.Column),
		slog.String("method", string(method)),
		slog.Int("rows_in", table.Len()),
		slog.Int("rows_out", out.Len()))

	return out, nil
}
