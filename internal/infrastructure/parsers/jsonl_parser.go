package parsers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// JSONLParser parses JSONL/NDJSON files (newline-delimited JSON)
type JSONLParser struct {
	config *ParserConfig
}

// NewJSONLParser creates a new JSONL parser
func NewJSONLParser(config *ParserConfig) *JSONLParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONLParser{
		config: config,
	}
}

// Parse reads and parses a JSONL file from disk
func (p *JSONLParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses JSONL data from an io.Reader
func (p *JSONLParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	scanner := bufio.NewScanner(reader)
	// Set a larger buffer for potentially large JSON lines (max 1MB per line)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	records := make([]domain.Record, 0, p.config.MaxRowsInMemory)
	totalRows := 0
	skippedRows := 0

	// Read line by line
	for scanner.Scan() {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		totalRows++

		// Skip empty lines
		if len(line) == 0 {
			skippedRows++
			continue
		}

		var record domain.Record
		if err := json.Unmarshal(line, &record); err != nil {
			// Skip malformed JSON lines but continue parsing
			skippedRows++
			continue
		}

		// Check if record is empty
		if p.config.SkipEmptyRows && len(record) == 0 {
			skippedRows++
			continue
		}

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("error reading JSONL stream: %w", err), "jsonl")
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     collectColumns(records),
		Format:      "JSONL",
	}, nil
}

// SupportedFormats returns the file extensions this parser supports
func (p *JSONLParser) SupportedFormats() []string {
	return []string{".jsonl", ".ndjson", ".jsonnl"}
}

// collectColumns returns every key in order of first appearance. Object
// keys carry no order, so keys new to a record are added sorted.
func collectColumns(records []domain.Record) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, record := range records {
		var fresh []string
		for key := range record {
			if !seen[key] {
				seen[key] = true
				fresh = append(fresh, key)
			}
		}
		sort.Strings(fresh)
		columns = append(columns, fresh...)
	}
	return columns
}
