package identification

import (
	"log/slog"
	"sort"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/fieldname"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Identifier finds the column most likely to hold postcodes
type Identifier struct {
	config    Config
	validator *validation.Validator
	extractor *extraction.Extractor
	logger    *slog.Logger
}

// New creates an identifier. Nil configs select the defaults. The validator
// always keeps every row and field while scoring, whatever vcfg says.
func New(cfg *Config, vcfg *validation.Config, logger *slog.Logger) (*Identifier, error) {
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

	v := validation.DefaultConfig()
	if vcfg != nil {
		v = *vcfg
	}
	v = v.ForTesting()
	validator, err := validation.New(&v, logger)
	if err != nil {
		return nil, err
	}

	extractor, err := extraction.New(c.RegexPattern)
	if err != nil {
		return nil, err
	}

	return &Identifier{
		config:    c,
		validator: validator,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Config returns the identification configuration
func (i *Identifier) Config() Config {
	return i.config
}

// Identify scores every candidate column of a deterministic sample of table
// with both methods and selects the best one. master may be nil.
func (i *Identifier) Identify(table *domain.Table, master validation.Lookup) (*Result, error) {
	if table == nil {
		return nil, apperrors.InvalidConfig("table is nil")
	}

	names := i.validator.Config().FieldNames
	columns := i.config.CandidateColumns
	if len(columns) == 0 {
		columns = sourceColumns(table.Columns, names.Derived())
	}
	for _, col := range columns {
		if !table.HasColumn(col) {
			return nil, apperrors.ColumnNotFound(col)
		}
	}

	var nameScores map[string]float64
	if i.config.FieldNameTieBreak {
		nameScores = fieldname.BestScores(columns)
	}

	sample := table.Sample(min(i.config.SampleSize, table.Len()), i.config.Seed)

	candidates := make([]Candidate, 0, 2*len(columns))
	for _, col := range columns {
		values := sample.Column(col)

		direct, err := i.successRate(domain.NewTable(
			[]string{names.CandidatePostcode},
			scratchRows(names.CandidatePostcode, values),
		), names.CandidatePostcode, master)
		if err != nil {
			return nil, err
		}

		indirect, err := i.successRate(domain.NewTable(
			[]string{names.ExtractedPostcode},
			scratchRows(names.ExtractedPostcode, i.extractor.Extract(values)),
		), names.ExtractedPostcode, master)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates,
			Candidate{
				Column:         col,
				Method:         MethodDirect,
				SuccessRate:    direct,
				FieldNameScore: nameScores[col],
			},
			Candidate{
				Column:         col,
				Method:         MethodIndirect,
				SuccessRate:    indirect,
				RegexPattern:   i.extractor.Pattern(),
				FieldNameScore: nameScores[col],
			})
	}

	rankCandidates(candidates, i.config.FieldNameTieBreak)

	result := &Result{
		Candidates: candidates,
		SampleSize: sample.Len(),
	}
	if len(candidates) > 0 {
		result.BestRate = candidates[0].SuccessRate
		if sample.Len() > 0 && candidates[0].SuccessRate >= i.config.SuccessThreshold {
			best := candidates[0]
			result.Best = &best
			result.Success = true
		}
	}

	attrs := []any{
		slog.Int("rows", table.Len()),
		slog.Int("sampled", sample.Len()),
		slog.Int("candidates", len(candidates)),
		slog.Float64("best_rate", result.BestRate),
		slog.Bool("success", result.Success),
	}
	if result.Best != nil {
		attrs = append(attrs,
			slog.String("column", result.Best.Column),
			slog.String("method", string(result.Best.Method)))
	}
	i.logger.Info("postcode column identification completed", attrs...)

	return result, nil
}

// successRate is the share of rows of a scratch table whose column
// validates. The validator runs with ForTesting settings, so no row or field
// is dropped.
func (i *Identifier) successRate(scratch *domain.Table, column string, master validation.Lookup) (float64, error) {
	if scratch.Len() == 0 {
		return 0, nil
	}
	validated, err := i.validator.Validate(scratch, column, master)
	if err != nil {
		return 0, err
	}

	flag := i.validator.Config().FieldNames.CorrectInputFlag
	valid := 0
	for _, row := range validated.Rows {
		if ok, _ := row[flag].(bool); ok {
			valid++
		}
	}
	return float64(valid) / float64(validated.Len()), nil
}

func scratchRows(column string, values []interface{}) []domain.Record {
	rows := make([]domain.Record, len(values))
	for i, v := range values {
		rows[i] = domain.Record{column: v}
	}
	return rows
}

// rankCandidates sorts by success rate descending. Ties prefer DIRECT, then
// the better field name score when enabled, then the original column order.
func rankCandidates(c []Candidate, byFieldName bool) {
	sort.SliceStable(c, func(a, b int) bool {
		if c[a].SuccessRate != c[b].SuccessRate {
			return c[a].SuccessRate > c[b].SuccessRate
		}
		if c[a].Method != c[b].Method {
			return c[a].Method.rank() < c[b].Method.rank()
		}
		if byFieldName && c[a].FieldNameScore != c[b].FieldNameScore {
			return c[a].FieldNameScore > c[b].FieldNameScore
		}
		return false
	})
}

// sourceColumns drops derived columns left over from an earlier run; they
// cannot be converted without being overwritten
func sourceColumns(columns, derived []string) []string {
	skip := make(map[string]bool, len(derived))
	for _, d := range derived {
		skip[d] = true
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}
