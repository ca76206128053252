package parsers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

const parquetBatchSize = 256

// ParquetParser parses Apache Parquet files. Leaf columns are named by
// their dotted path; a repeated field keeps its first value.
type ParquetParser struct {
	config *ParserConfig
}

// NewParquetParser creates a new Parquet parser
func NewParquetParser(config *ParserConfig) *ParquetParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ParquetParser{
		config: config,
	}
}

// Parse reads and parses a Parquet file from disk
func (p *ParquetParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, apperrors.FileParseError(err, filePath)
	}
	return p.parse(ctx, file, stat.Size())
}

// ParseStream buffers the stream, since the Parquet footer is read first
func (p *ParquetParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	if p.config.MaxFileSize > 0 {
		reader = io.LimitReader(reader, p.config.MaxFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to read Parquet stream: %w", err), "parquet")
	}
	if p.config.MaxFileSize > 0 && int64(len(data)) > p.config.MaxFileSize {
		return nil, apperrors.FileTooLarge(p.config.MaxFileSize / (1024 * 1024))
	}
	return p.parse(ctx, bytes.NewReader(data), int64(len(data)))
}

func (p *ParquetParser) parse(ctx context.Context, r io.ReaderAt, size int64) (*ParseResult, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to open Parquet file: %w", err), "parquet")
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	paths := reader.Schema().Columns()
	raw := make([]string, len(paths))
	for i, path := range paths {
		raw[i] = strings.Join(path, ".")
	}
	header := headerNames(raw, p.config.TrimWhitespace)

	records := make([]domain.Record, 0, min(int64(p.config.MaxRowsInMemory), pf.NumRows()))
	totalRows := 0
	skippedRows := 0

	buf := make([]parquet.Row, parquetBatchSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			totalRows++
			record := p.toRecord(header, row)
			if p.config.SkipEmptyRows && emptyRecord(record) {
				skippedRows++
				continue
			}
			records = append(records, record)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to read Parquet rows: %w", err), "parquet")
		}
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     header,
		Format:      "PARQUET",
	}, nil
}

func (p *ParquetParser) toRecord(header []string, row parquet.Row) domain.Record {
	record := make(domain.Record, len(header))
	for _, col := range header {
		record[col] = nil
	}

	seen := make([]bool, len(header))
	for _, v := range row {
		i := v.Column()
		if i < 0 || i >= len(header) || seen[i] {
			continue
		}
		seen[i] = true
		record[header[i]] = p.value(v)
	}
	return record
}

// value maps a physical Parquet value onto the types the JSON parser yields
func (p *ParquetParser) value(v parquet.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s := string(v.ByteArray())
		if p.config.TrimWhitespace {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			return nil
		}
		return s
	}
	return v.String()
}

func emptyRecord(r domain.Record) bool {
	for _, v := range r {
		if !domain.IsNull(v) {
			return false
		}
	}
	return true
}

// SupportedFormats returns the file extensions this parser supports
func (p *ParquetParser) SupportedFormats() []string {
	return []string{".parquet"}
}
