package parsers

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Compression identifies the container of a compressed CSV
type Compression string

const (
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bz2"
	CompressionZip   Compression = "zip"
)

// CompressedCSVParser unwraps a compressed CSV and hands it to CSVParser
type CompressedCSVParser struct {
	config      *ParserConfig
	compression Compression
	csv         *CSVParser
}

// NewCompressedCSVParser creates a parser for one compression format
func NewCompressedCSVParser(config *ParserConfig, compression Compression) *CompressedCSVParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &CompressedCSVParser{
		config:      config,
		compression: compression,
		csv:         NewCSVParser(config),
	}
}

// Parse reads and parses a compressed CSV file from disk
func (p *CompressedCSVParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	file, err := openChecked(filePath, p.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.ParseStream(ctx, file)
}

// ParseStream decompresses reader and parses the CSV inside
func (p *CompressedCSVParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	var inner io.Reader

	switch p.compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, apperrors.FileParseError(fmt.Errorf("failed to open gzip stream: %w", err), "csv.gz")
		}
		defer gz.Close()
		inner = gz
	case CompressionBzip2:
		inner = bzip2.NewReader(reader)
	case CompressionZip:
		entry, err := firstZipEntry(reader)
		if err != nil {
			return nil, err
		}
		defer entry.Close()
		inner = entry
	default:
		return nil, apperrors.UnsupportedFormat(string(p.compression))
	}

	// the decompressed size is bounded too
	if p.config.MaxFileSize > 0 {
		inner = io.LimitReader(inner, p.config.MaxFileSize*4)
	}

	result, err := p.csv.ParseStream(ctx, inner)
	if err != nil {
		return nil, err
	}
	result.Format = "CSV/" + strings.ToUpper(string(p.compression))
	return result, nil
}

// SupportedFormats returns the file extensions this parser supports
func (p *CompressedCSVParser) SupportedFormats() []string {
	switch p.compression {
	case CompressionGzip:
		return []string{".csv.gz", ".csv.gzip"}
	case CompressionBzip2:
		return []string{".csv.bz2"}
	case CompressionZip:
		return []string{".csv.zip"}
	}
	return nil
}

// firstZipEntry opens the first CSV in the archive, or the first file when
// none has a .csv name
func firstZipEntry(reader io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.FileParseError(err, "csv.zip")
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.FileParseError(fmt.Errorf("failed to open zip archive: %w", err), "csv.zip")
	}

	var chosen *zip.File
	for _, f := range archive.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), ".csv") {
			chosen = f
			break
		}
		if chosen == nil {
			chosen = f
		}
	}
	if chosen == nil {
		return nil, apperrors.InvalidFile("zip archive contains no files")
	}

	rc, err := chosen.Open()
	if err != nil {
		return nil, apperrors.FileParseError(err, chosen.Name)
	}
	return rc, nil
}
