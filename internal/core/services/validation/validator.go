package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// rowState carries one value through the pipeline
type rowState struct {
	input     interface{}
	value     float64
	hasValue  bool
	valid     bool
	reason    Reason
	formatted string
}

// fail downgrades the row. The first failure wins.
func (r *rowState) fail(reason Reason) {
	if r.valid {
		r.valid = false
		r.reason = reason
	}
}

// step transforms every row of a batch in place
type step struct {
	name string
	fn   func(rows []rowState)
}

// Validator runs the postcode validation pipeline. It is safe for concurrent
// use because it holds no per-call state.
type Validator struct {
	config Config
	logger *slog.Logger
}

// New creates a validator. A nil config means DefaultConfig.
func New(cfg *Config, logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Validator{config: c, logger: logger}, nil
}

// Config returns the validator configuration
func (v *Validator) Config() Config {
	return v.config
}

// ValidateValues validates each value independently and returns one result
// per value in the same order. master may be nil, in which case the
// master-dataset check is skipped.
func (v *Validator) ValidateValues(values []interface{}, master Lookup) []Result {
	rows := make([]rowState, len(values))
	for i, val := range values {
		rows[i] = rowState{input: val, valid: true}
	}

	for _, s := range v.steps(master) {
		s.fn(rows)
		v.logStep(s.name, rows)
	}

	results := make([]Result, len(rows))
	for i, r := range rows {
		results[i] = Result{Formatted: r.formatted, Valid: r.valid, Reason: r.reason}
	}
	return results
}

func (v *Validator) steps(master Lookup) []step {
	steps := []step{
		{"numeric_parse", parseNumeric},
		{"integer_check", checkInteger},
		{"range_check", v.checkRange},
		{"format", formatPostcodes},
	}
	if master != nil {
		steps = append(steps, step{"master_check", func(rows []rowState) {
			checkMaster(rows, master)
		}})
	}
	return steps
}

func parseNumeric(rows []rowState) {
	for i := range rows {
		r := &rows[i]
		if n, ok := domain.ToNumber(r.input); ok {
			r.value = n
			r.hasValue = true
		} else {
			r.fail(ReasonNotNumeric)
		}
		// null always wins over NOT_NUMERIC
		if domain.IsNull(r.input) {
			r.valid = false
			r.hasValue = false
			r.reason = ReasonNoInputProvided
		}
	}
}

func checkInteger(rows []rowState) {
	for i := range rows {
		r := &rows[i]
		if !r.valid || !r.hasValue {
			continue
		}
		if math.Mod(r.value, 1) != 0 {
			r.fail(ReasonNotInteger)
			r.hasValue = false
		}
	}
}

func (v *Validator) checkRange(rows []rowState) {
	for i := range rows {
		r := &rows[i]
		if !r.valid || !r.hasValue {
			continue
		}
		if !v.config.Range.Contains(r.value) {
			r.fail(ReasonOutOfRange)
			r.hasValue = false
		}
	}
}

func formatPostcodes(rows []rowState) {
	for i := range rows {
		r := &rows[i]
		if !r.valid || !r.hasValue {
			continue
		}
		r.formatted = fmt.Sprintf("%06d", int64(r.value))
	}
}

// checkMaster flips the flag for unknown postcodes but keeps the formatted
// value, so well-formed unknown codes stay distinguishable from malformed
// input.
func checkMaster(rows []rowState, master Lookup) {
	for i := range rows {
		r := &rows[i]
		if !r.valid || r.formatted == "" {
			continue
		}
		if !master.Contains(r.formatted) {
			r.fail(ReasonNotInMasterDataset)
		}
	}
}

func (v *Validator) logStep(name string, rows []rowState) {
	if !v.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	valid := 0
	reasons := make(map[string]int)
	for _, r := range rows {
		if r.valid {
			valid++
		} else {
			reasons[string(r.reason)]++
		}
	}
	v.logger.Debug("validation step completed",
		slog.String("step", name),
		slog.Int("total", len(rows)),
		slog.Int("valid", valid),
		slog.Int("invalid", len(rows)-valid),
		slog.String("valid_pct", percent(valid, len(rows))),
		slog.Any("reasons", reasons))
}

// Validate runs the pipeline over column of table and returns a new table
// carrying the derived fields. The input table is never modified.
func (v *Validator) Validate(table *domain.Table, column string, master Lookup) (*domain.Table, error) {
	if table == nil {
		return nil, apperrors.InvalidConfig("table is nil")
	}
	if !table.HasColumn(column) {
		return nil, apperrors.ColumnNotFound(column)
	}
	names := v.config.FieldNames
	if err := CheckSource(column, names.Outputs()); err != nil {
		return nil, err
	}

	results := v.ValidateValues(table.Column(column), master)

	flags := make([]interface{}, len(results))
	reasons := make([]interface{}, len(results))
	formatted := make([]interface{}, len(results))
	for i, r := range results {
		flags[i] = r.Valid
		if r.Reason != ReasonNone {
			reasons[i] = string(r.Reason)
		}
		if r.Formatted != "" {
			formatted[i] = r.Formatted
		}
	}

	out := table.Clone()
	if err := out.SetColumn(names.CorrectInputFlag, flags); err != nil {
		return nil, err
	}
	if err := out.SetColumn(names.IncorrectReason, reasons); err != nil {
		return nil, err
	}
	if err := out.SetColumn(names.FormattedPostcode, formatted); err != nil {
		return nil, err
	}

	summary := Summarize(results)
	v.logger.Debug("postcode validation completed",
		slog.String("column", column),
		slog.Int("total", summary.Total),
		slog.Int("valid", summary.Valid),
		slog.String("valid_pct", percent(summary.Valid, summary.Total)),
		slog.Bool("master_check", master != nil))

	return v.postProcess(out), nil
}

func (v *Validator) postProcess(t *domain.Table) *domain.Table {
	return v.config.ApplyOutputOptions(t)
}

// ApplyOutputOptions drops invalid rows and derived columns as configured.
// Tables without the derived columns pass through unchanged.
func (c Config) ApplyOutputOptions(t *domain.Table) *domain.Table {
	names := c.FieldNames
	if c.DropIncorrect && t.HasColumn(names.CorrectInputFlag) {
		t = t.Filter(func(r domain.Record) bool {
			ok, _ := r[names.CorrectInputFlag].(bool)
			return ok
		})
	}
	if !c.KeepValidationFields {
		t = t.DropColumns(names.CorrectInputFlag, names.IncorrectReason)
	}
	if !c.KeepFormattedPostcodeField {
		t = t.DropColumns(names.FormattedPostcode)
	}
	return t
}

func percent(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
