package deduplication

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Service removes duplicate rows from a table, keeping the first occurrence
type Service struct {
	config Config
	logger *slog.Logger
}

// NewService creates a new deduplication service
func NewService(config Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch config.Strategy {
	case StrategyExact, StrategyNormalized:
	case "":
		config.Strategy = StrategyExact
	default:
		return nil, apperrors.InvalidConfig(fmt.Sprintf("unknown deduplication strategy %q", config.Strategy))
	}

	return &Service{
		config: config,
		logger: logger,
	}, nil
}

// Deduplicate returns a copy of table without rows whose key fields repeat
// an earlier row. Row order is preserved.
func (s *Service) Deduplicate(table *domain.Table) (*Result, error) {
	startTime := time.Now()

	fields := s.config.KeyFields
	if len(fields) == 0 {
		fields = table.Columns
	}
	for _, f := range fields {
		if !table.HasColumn(f) {
			return nil, apperrors.ColumnNotFound(f)
		}
	}

	seen := make(map[string]bool, table.Len())
	keep := make([]int, 0, table.Len())
	duplicateKeys := make(map[string]int)

	for i, row := range table.Rows {
		hash, err := generateHash(row, fields, s.config.Strategy)
		if err != nil {
			return nil, fmt.Errorf("failed to hash record %d: %w", i, err)
		}

		if seen[hash] {
			duplicateKeys[describeKey(row, fields)]++
			s.logger.Debug("duplicate found",
				slog.String("hash", hash),
				slog.Int("row_index", i))
			continue
		}
		seen[hash] = true
		keep = append(keep, i)
	}

	out := table.SelectRows(keep)
	processingTime := time.Since(startTime).Milliseconds()

	result := &Result{
		OriginalCount:     table.Len(),
		DeduplicatedCount: out.Len(),
		RemovedCount:      table.Len() - out.Len(),
		Strategy:          s.config.Strategy,
		Table:             out,
		Stats: Stats{
			UniqueRecords:    out.Len(),
			ProcessingTimeMs: processingTime,
		},
	}
	if len(duplicateKeys) > 0 {
		result.Stats.DuplicateKeys = duplicateKeys
	}

	s.logger.Info("deduplication completed",
		slog.Int("original_count", result.OriginalCount),
		slog.Int("final_count", result.DeduplicatedCount),
		slog.Int("removed_count", result.RemovedCount),
		slog.Int64("processing_time_ms", processingTime))

	return result, nil
}

// GetConfig returns the current configuration
func (s *Service) GetConfig() Config {
	return s.config
}

func describeKey(row domain.Record, fields []string) string {
	if len(fields) == 1 {
		return domain.ToText(row[fields[0]])
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = domain.ToText(row[f])
	}
	return strings.Join(parts, "|")
}
