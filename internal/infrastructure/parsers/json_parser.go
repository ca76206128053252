package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// JSONParser parses JSON files holding an array of objects or a single object
type JSONParser struct {
	config *ParserConfig
}

// NewJSONParser creates a new JSON parser
func NewJSONParser(config *ParserConfig) *JSONParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONParser{
		config: config,
	}
}

// Parse reads and parses a JSON file from disk
func (p *JSONParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses JSON data from an io.Reader
func (p *JSONParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.FileParseError(err, "json")
	}

	var records []domain.Record
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := decoder.Token(); err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to read JSON: %w", err), "json")
		}

		for decoder.More() {
			// Check context cancellation
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			var record domain.Record
			if err := decoder.Decode(&record); err != nil {
				return nil, apperrors.FileParseError(fmt.Errorf("failed to decode JSON record: %w", err), "json")
			}
			records = append(records, record)
		}

		// Read the closing bracket
		if _, err := decoder.Token(); err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to read closing bracket: %w", err), "json")
		}
	} else {
		// Single object - wrap in array
		var record domain.Record
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to decode JSON object: %w", err), "json")
		}
		records = []domain.Record{record}
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   len(records),
		SkippedRows: 0,
		Columns:     collectColumns(records),
		Format:      "JSON",
	}, nil
}

// SupportedFormats returns the file extensions this parser supports
func (p *JSONParser) SupportedFormats() []string {
	return []string{".json"}
}
