package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/conversion"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/identification"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/validation"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Config bundles the immutable settings of a geocoding run. MasterList,
// when set, replaces the reference postcodes as the membership check of
// the validator; the merge still joins the full reference.
type Config struct {
	Validation     validation.Config     `json:"validation"`
	Identification identification.Config `json:"identification"`
	MasterList     validation.Lookup     `json:"-"`
}

// DefaultConfig returns the default validation and identification settings
func DefaultConfig() Config {
	return Config{
		Validation:     validation.DefaultConfig(),
		Identification: identification.DefaultConfig(),
	}
}

// Result is the outcome of one run. When Success is false, Table is the
// input table unchanged and Message explains why.
type Result struct {
	RunID       string                     `json:"run_id"`
	Success     bool                       `json:"success"`
	Message     string                     `json:"message,omitempty"`
	Table       *domain.Table              `json:"table"`
	Selection   *conversion.Selection      `json:"selection,omitempty"`
	Candidates  []identification.Candidate `json:"candidates,omitempty"`
	BestRate    float64                    `json:"best_rate"`
	Stats       *MatchStats                `json:"stats,omitempty"`
	ProcessTime time.Duration              `json:"process_time"`
}

// TotalRecords is the number of rows in the result table
func (r *Result) TotalRecords() int {
	if r.Stats != nil {
		return r.Stats.TotalRecords
	}
	return r.Table.Len()
}

// MatchedRecords is the number of rows that received coordinates
func (r *Result) MatchedRecords() int {
	if r.Stats == nil {
		return 0
	}
	return r.Stats.MatchedRecords
}

// NoCandidateMessage is reported when identification fails
func NoCandidateMessage(bestRate float64) string {
	return fmt.Sprintf("No suitable postcode column found. Best predicted success rate: %.1f%%", bestRate*100)
}

// Service runs identify, convert and merge against the shared reference
type Service struct {
	config     Config
	identifier *identification.Identifier
	converter  *conversion.Converter
	provider   *reference.Provider
	logger     *slog.Logger
}

// NewService creates a geocoding service. A nil config means DefaultConfig.
func NewService(cfg *Config, provider *reference.Provider, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		return nil, apperrors.InvalidConfig("reference provider is required")
	}

	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	identifier, err := identification.New(&c.Identification, &c.Validation, logger)
	if err != nil {
		return nil, err
	}

	// the merge needs the formatted postcode and the histogram needs the
	// reason, so conversion keeps everything and output options apply last
	convCfg := c.Validation.ForTesting()
	converter, err := conversion.New(&convCfg, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:     c,
		identifier: identifier,
		converter:  converter,
		provider:   provider,
		logger:     logger,
	}, nil
}

// Config returns the service configuration
func (s *Service) Config() Config {
	return s.config
}

// Identify ranks the columns of table without converting anything
func (s *Service) Identify(ctx context.Context, table *domain.Table) (*identification.Result, error) {
	ref, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.identifier.Identify(table, s.master(ref))
}

// Process identifies the postcode column of table, converts it and merges
// the rows with the master reference.
func (s *Service) Process(ctx context.Context, table *domain.Table) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()

	ref, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	ident, err := s.identifier.Identify(table, s.master(ref))
	if err != nil {
		return nil, err
	}

	if !ident.Success {
		s.logger.Warn("no suitable postcode column found",
			slog.String("run_id", runID),
			slog.Float64("best_rate", ident.BestRate))

		return &Result{
			RunID:       runID,
			Success:     false,
			Message:     NoCandidateMessage(ident.BestRate),
			Table:       table,
			Candidates:  ident.Candidates,
			BestRate:    ident.BestRate,
			ProcessTime: time.Since(start),
		}, nil
	}

	res, err := s.run(runID, start, table, conversion.FromCandidate(*ident.Best), ref)
	if err != nil {
		return nil, err
	}
	res.Candidates = ident.Candidates
	res.BestRate = ident.BestRate
	return res, nil
}

// ProcessWithSelection skips identification and converts the given column
func (s *Service) ProcessWithSelection(ctx context.Context, table *domain.Table, sel conversion.Selection) (*Result, error) {
	start := time.Now()

	ref, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.run(uuid.New().String(), start, table, sel, ref)
}

func (s *Service) master(ref *reference.Dataset) validation.Lookup {
	if s.config.MasterList != nil {
		return s.config.MasterList
	}
	return ref.Postcodes()
}

func (s *Service) run(runID string, start time.Time, table *domain.Table, sel conversion.Selection, ref *reference.Dataset) (*Result, error) {
	converted, err := s.converter.Convert(table, sel, s.master(ref))
	if err != nil {
		return nil, err
	}

	merged, stats, err := Merge(converted, ref, s.converter.FieldNames())
	if err != nil {
		return nil, err
	}

	out := s.config.Validation.ApplyOutputOptions(merged)
	elapsed := time.Since(start)

	s.logger.Info("geocoding completed",
		slog.String("run_id", runID),
		slog.String("column", sel.Column),
		slog.String("method", string(sel.Method)),
		slog.Int("total_records", stats.TotalRecords),
		slog.Int("matched_records", stats.MatchedRecords),
		slog.Float64("match_rate", stats.MatchRate),
		slog.Int64("process_time_ms", elapsed.Milliseconds()))

	return &Result{
		RunID:       runID,
		Success:     true,
		Table:       out,
		Selection:   &sel,
		Stats:       stats,
		ProcessTime: elapsed,
	}, nil
}
