package parsers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// ParseResult contains the parsed rows and parsing statistics
type ParseResult struct {
	Records     []domain.Record
	TotalRows   int
	SkippedRows int
	Columns     []string
	Format      string
}

// Table returns the parsed rows as a table
func (r *ParseResult) Table() *domain.Table {
	return domain.NewTable(r.Columns, r.Records)
}

// FileParser is the interface all parsers must implement
type FileParser interface {
	// Parse reads and parses the file from the given path
	Parse(ctx context.Context, filePath string) (*ParseResult, error)

	// ParseStream reads and parses from an io.Reader
	ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error)

	// SupportedFormats returns the file extensions this parser supports
	SupportedFormats() []string
}

// Text encodings accepted for delimited files
const (
	EncodingAuto   = "auto"   // UTF-8 when valid, Latin-1 otherwise
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin1"
)

// ParserConfig holds configuration for all parsers
type ParserConfig struct {
	// MaxRowsInMemory is the initial capacity of the record slice
	MaxRowsInMemory int

	// SkipEmptyRows determines if empty rows should be skipped
	SkipEmptyRows bool

	// TrimWhitespace determines if cell values should be trimmed
	TrimWhitespace bool

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64

	// Encoding of CSV input, one of the Encoding constants
	Encoding string

	// Sheet is the Excel worksheet to read, the first one when empty
	Sheet string
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		MaxRowsInMemory: 10000,
		SkipEmptyRows:   true,
		TrimWhitespace:  true,
		MaxFileSize:     100 * 1024 * 1024, // 100 MB
		Encoding:        EncodingAuto,
	}
}

// openChecked opens filePath and enforces the size limit
func openChecked(filePath string, maxSize int64) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, apperrors.FileParseError(err, filePath)
	}

	if maxSize > 0 {
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, apperrors.FileParseError(err, filePath)
		}
		if stat.Size() > maxSize {
			file.Close()
			return nil, apperrors.FileTooLarge(maxSize / (1024 * 1024))
		}
	}
	return file, nil
}

// headerNames cleans a header row so every column can be addressed by
// name: blank names become "Unnamed: <index>" and repeats get a ".<n>"
// suffix.
func headerNames(header []string, trim bool) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, base := range header {
		if i == 0 {
			base = strings.TrimPrefix(base, "\ufeff")
		}
		if trim {
			base = strings.TrimSpace(base)
		}
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}
