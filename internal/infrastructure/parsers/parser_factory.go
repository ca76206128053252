package parsers

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// FilenameColumn records which upload a row came from when several files
// are combined
const FilenameColumn = "FILENAME"

// ParserFactory creates the appropriate parser based on file extension
type ParserFactory struct {
	config  *ParserConfig
	parsers map[string]FileParser
}

// NewParserFactory creates a new parser factory with all built-in parsers
func NewParserFactory(config *ParserConfig) *ParserFactory {
	if config == nil {
		config = DefaultParserConfig()
	}

	factory := &ParserFactory{
		config:  config,
		parsers: make(map[string]FileParser),
	}

	// Register built-in parsers
	factory.RegisterParser(NewCSVParser(config))
	factory.RegisterParser(NewCompressedCSVParser(config, CompressionGzip))
	factory.RegisterParser(NewCompressedCSVParser(config, CompressionBzip2))
	factory.RegisterParser(NewCompressedCSVParser(config, CompressionZip))
	factory.RegisterParser(NewExcelParser(config))
	factory.RegisterParser(NewJSONParser(config))
	factory.RegisterParser(NewJSONLParser(config))
	factory.RegisterParser(NewParquetParser(config))

	return factory
}

// RegisterParser registers a custom parser
func (f *ParserFactory) RegisterParser(parser FileParser) {
	for _, ext := range parser.SupportedFormats() {
		f.parsers[normalizeExt(ext)] = parser
	}
}

// GetParser returns the appropriate parser for a file extension
func (f *ParserFactory) GetParser(fileExt string) (FileParser, error) {
	parser, exists := f.parsers[normalizeExt(fileExt)]
	if !exists {
		return nil, apperrors.UnsupportedFormat(fileExt)
	}
	return parser, nil
}

// GetParserForFile returns the parser whose extension is the longest suffix
// of the file name, so data.csv.gz picks the gzip parser
func (f *ParserFactory) GetParserForFile(filePath string) (FileParser, error) {
	if ext := f.matchExt(filePath); ext != "" {
		return f.parsers[ext], nil
	}
	return nil, apperrors.UnsupportedFormat(filepath.Ext(filePath))
}

// ParseFile is a convenience method that automatically selects and uses the correct parser
func (f *ParserFactory) ParseFile(ctx context.Context, filePath string) (*ParseResult, error) {
	parser, err := f.GetParserForFile(filePath)
	if err != nil {
		return nil, err
	}

	return parser.Parse(ctx, filePath)
}

// NamedFile is an upload stored at Path under its original Name
type NamedFile struct {
	Name string
	Path string
}

// ParseFiles parses every file and concatenates the rows. With more than one
// file a FILENAME column holds the original name of each row's file; columns
// are the union in order of appearance.
func (f *ParserFactory) ParseFiles(ctx context.Context, files []NamedFile) (*domain.Table, error) {
	if len(files) == 0 {
		return nil, apperrors.InvalidFile("no files provided")
	}

	if len(files) == 1 {
		result, err := f.ParseFile(ctx, files[0].Path)
		if err != nil {
			return nil, err
		}
		return result.Table(), nil
	}

	tables := make([]*domain.Table, 0, len(files))
	for _, file := range files {
		result, err := f.ParseFile(ctx, file.Path)
		if err != nil {
			return nil, err
		}

		t := result.Table()
		names := make([]interface{}, t.Len())
		for i := range names {
			names[i] = file.Name
		}
		if err := t.SetColumn(FilenameColumn, names); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return domain.Concat(tables...), nil
}

// SupportedFormats returns all supported file extensions, sorted
func (f *ParserFactory) SupportedFormats() []string {
	formats := make([]string, 0, len(f.parsers))
	for ext := range f.parsers {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// IsSupported checks if a file extension is supported
func (f *ParserFactory) IsSupported(fileExt string) bool {
	_, exists := f.parsers[normalizeExt(fileExt)]
	return exists
}

// IsSupportedFile checks if a file name ends in a supported extension
func (f *ParserFactory) IsSupportedFile(filePath string) bool {
	return f.matchExt(filePath) != ""
}

func (f *ParserFactory) matchExt(filePath string) string {
	name := strings.ToLower(filepath.Base(filePath))
	best := ""
	for ext := range f.parsers {
		if strings.HasSuffix(name, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	return best
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var extPattern = regexp.MustCompile(`\..*$`)

// OutputName derives a download name from the uploaded file names: the
// first name without extensions, joined with the second when there are
// several.
func OutputName(names []string) string {
	switch len(names) {
	case 0:
		return "geocoded"
	case 1:
		return extPattern.ReplaceAllString(filepath.Base(names[0]), "")
	default:
		return extPattern.ReplaceAllString(filepath.Base(names[0]), "") + "--" +
			extPattern.ReplaceAllString(filepath.Base(names[1]), "")
	}
}
