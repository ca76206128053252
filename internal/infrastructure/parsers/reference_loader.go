package parsers

import (
	"context"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
)

// FileLoader reads the geocoded reference from a file in any supported
// format. It satisfies reference.Loader.
type FileLoader struct {
	factory *ParserFactory
	path    string
}

// NewFileLoader creates a loader for path. A nil factory uses the default
// parser configuration.
func NewFileLoader(factory *ParserFactory, path string) *FileLoader {
	if factory == nil {
		factory = NewParserFactory(nil)
	}
	return &FileLoader{factory: factory, path: path}
}

// Load parses the whole file
func (l *FileLoader) Load(ctx context.Context) (*domain.Table, error) {
	result, err := l.factory.ParseFile(ctx, l.path)
	if err != nil {
		return nil, err
	}
	return result.Table(), nil
}

// Describe names the loader in logs
func (l *FileLoader) Describe() string {
	return "file:" + l.path
}
