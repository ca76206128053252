package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// ExcelParser parses Excel files (.xlsx, .xls)
type ExcelParser struct {
	config *ParserConfig
}

// NewExcelParser creates a new Excel parser
func NewExcelParser(config *ParserConfig) *ExcelParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ExcelParser{
		config: config,
	}
}

// Parse reads and parses an Excel file from disk
func (p *ExcelParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream reads and parses Excel data from an io.Reader
func (p *ExcelParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to read Excel stream: %w", err), "xlsx")
	}
	defer f.Close()

	return p.parseExcelFile(ctx, f)
}

// parseExcelFile streams the configured sheet. Leading blank rows are
// skipped and the first non-blank row is the header.
func (p *ExcelParser) parseExcelFile(ctx context.Context, f *excelize.File) (*ParseResult, error) {
	sheetName, err := p.sheet(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to open sheet %s: %w", sheetName, err), "xlsx")
	}
	defer rows.Close()

	var header []string
	records := make([]domain.Record, 0, p.config.MaxRowsInMemory)
	totalRows := 0
	skippedRows := 0

	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := rows.Columns()
		if err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to read row in sheet %s: %w", sheetName, err), "xlsx")
		}

		if header == nil {
			if !isEmptyRow(row) {
				header = headerNames(row, p.config.TrimWhitespace)
			}
			continue
		}

		totalRows++
		if p.config.SkipEmptyRows && isEmptyRow(row) {
			skippedRows++
			continue
		}
		records = append(records, toRecord(header, row, p.config.TrimWhitespace))
	}
	if err := rows.Error(); err != nil {
		return nil, apperrors.FileParseError(err, "xlsx")
	}

	if header == nil {
		header = []string{}
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     header,
		Format:      "XLSX",
	}, nil
}

// sheet resolves the configured sheet name against the workbook
func (p *ExcelParser) sheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", apperrors.InvalidFile("no sheets found in Excel file")
	}
	if p.config.Sheet == "" {
		return sheets[0], nil
	}
	for _, name := range sheets {
		if strings.EqualFold(name, p.config.Sheet) {
			return name, nil
		}
	}
	return "", apperrors.InvalidFile(fmt.Sprintf("sheet %q not found, workbook has %s",
		p.config.Sheet, strings.Join(sheets, ", ")))
}

// SupportedFormats returns the file extensions this parser supports. .xls
// is accepted only when the content is an OOXML workbook.
func (p *ExcelParser) SupportedFormats() []string {
	return []string{".xlsx", ".xls"}
}
