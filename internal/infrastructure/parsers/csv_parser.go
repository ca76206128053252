package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// CSVParser parses CSV files
type CSVParser struct {
	config *ParserConfig
}

// NewCSVParser creates a new CSV parser
func NewCSVParser(config *ParserConfig) *CSVParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &CSVParser{
		config: config,
	}
}

// Parse reads and parses a CSV file from disk
func (p *CSVParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses CSV data from an io.Reader
func (p *CSVParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	r, err := p.decode(reader)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = p.config.TrimWhitespace
	csvReader.FieldsPerRecord = -1 // Allow variable number of fields per record

	// Read header row
	header, err := csvReader.Read()
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to read CSV header: %w", err), "csv")
	}

	header = headerNames(header, p.config.TrimWhitespace)

	records := make([]domain.Record, 0, p.config.MaxRowsInMemory)
	totalRows := 0
	skippedRows := 0

	// Read data rows
	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows but continue parsing
			totalRows++
			skippedRows++
			continue
		}

		totalRows++

		// Check if row is empty
		if p.config.SkipEmptyRows && isEmptyRow(row) {
			skippedRows++
			continue
		}

		records = append(records, toRecord(header, row, p.config.TrimWhitespace))
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     header,
		Format:      "CSV",
	}, nil
}

// SupportedFormats returns the file extensions this parser supports
func (p *CSVParser) SupportedFormats() []string {
	return []string{".csv"}
}

// toRecord maps a row onto the header. Empty and missing cells are null.
func toRecord(header, row []string, trim bool) domain.Record {
	record := make(domain.Record, len(header))
	for i, col := range header {
		if i >= len(row) {
			record[col] = nil
			continue
		}
		value := row[i]
		if trim {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			record[col] = nil
		} else {
			record[col] = value
		}
	}
	return record
}

// decode converts the input to UTF-8 according to the configured encoding
func (p *CSVParser) decode(reader io.Reader) (io.Reader, error) {
	switch p.config.Encoding {
	case EncodingUTF8:
		return reader, nil
	case EncodingLatin1:
		return transform.NewReader(reader, charmap.ISO8859_1.NewDecoder()), nil
	case EncodingAuto, "":
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, apperrors.FileParseError(err, "csv")
		}
		if utf8.Valid(data) {
			return bytes.NewReader(data), nil
		}
		return transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, apperrors.InvalidConfig(fmt.Sprintf("unknown CSV encoding %q", p.config.Encoding))
	}
}

// isEmptyRow checks if a row contains only empty strings
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
