package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Format is an output file format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatJSON  Format = "json"
)

// SheetName is the worksheet written by WriteExcel
const SheetName = "geocoded"

// ParseFormat accepts csv, xlsx (or excel) and json, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "json", "":
		return FormatJSON, nil
	}
	return "", apperrors.UnsupportedFormat(s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Write dispatches to the writer for format. JSON is handled by the caller.
func Write(w io.Writer, t *domain.Table, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatExcel:
		return WriteExcel(w, t)
	}
	return apperrors.UnsupportedFormat(string(format))
}

// WriteCSV writes the header in column order followed by one line per row.
// Null cells are empty.
func WriteCSV(w io.Writer, t *domain.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	line := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			line[i] = domain.ToText(row[col])
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteExcel writes the table to a single worksheet using the streaming
// writer. Numbers stay numeric; null cells are left blank.
func WriteExcel(w io.Writer, t *domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name worksheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = excelValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush worksheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func excelValue(v interface{}) interface{} {
	if domain.IsNull(v) {
		return nil
	}
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return v
	}
	return domain.ToText(v)
}
