package parsers

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

const sitesCSV = `Site,Postcode,Address
Marina Bay Sands,018956,10 Bayfront Avenue
Ion Orchard,238801,2 Orchard Turn
Changi Airport,819663,Airport Boulevard
`

func setupTestFiles(t *testing.T) string {
	tempDir := t.TempDir()

	csvPath := filepath.Join(tempDir, "sites.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sitesCSV), 0644))

	jsonContent := `[
  {"Site": "Marina Bay Sands", "Postcode": "018956"},
  {"Site": "Ion Orchard", "Postcode": 238801},
  {"Site": "Changi Airport", "Postcode": "819663"}
]`
	jsonPath := filepath.Join(tempDir, "sites.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonContent), 0644))

	jsonlContent := `{"Site": "Marina Bay Sands", "Postcode": "018956"}
{"Site": "Ion Orchard", "Postcode": 238801}
{"Site": "Changi Airport", "Postcode": "819663"}
`
	for _, name := range []string{"sites.jsonl", "sites.ndjson", "sites.jsonnl"} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(jsonlContent), 0644))
	}

	// gzip
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write([]byte(sitesCSV))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "sites.csv.gz"), gz.Bytes(), 0644))

	// zip with a readme before the csv
	var zb bytes.Buffer
	zw := zip.NewWriter(&zb)
	readme, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = readme.Write([]byte("not data"))
	require.NoError(t, err)
	entry, err := zw.Create("export/sites.csv")
	require.NoError(t, err)
	_, err = entry.Write([]byte(sitesCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "sites.csv.zip"), zb.Bytes(), 0644))

	// xlsx
	xf := excelize.NewFile()
	sheet := xf.GetSheetName(0)
	require.NoError(t, xf.SetSheetRow(sheet, "A1", &[]interface{}{"Site", "Postcode"}))
	require.NoError(t, xf.SetSheetRow(sheet, "A2", &[]interface{}{"Marina Bay Sands", "018956"}))
	require.NoError(t, xf.SetSheetRow(sheet, "A3", &[]interface{}{"Ion Orchard", 238801}))
	require.NoError(t, xf.SaveAs(filepath.Join(tempDir, "sites.xlsx")))
	require.NoError(t, xf.Close())

	return tempDir
}

func TestCSVParser_Parse(t *testing.T) {
	tempDir := setupTestFiles(t)

	parser := NewCSVParser(nil)
	result, err := parser.Parse(context.Background(), filepath.Join(tempDir, "sites.csv"))

	require.NoError(t, err)
	assert.Equal(t, 3, len(result.Records))
	assert.Equal(t, "CSV", result.Format)
	assert.Equal(t, []string{"Site", "Postcode", "Address"}, result.Columns)

	// leading zeros survive because cells stay text
	assert.Equal(t, "018956", result.Records[0]["Postcode"])
	assert.Equal(t, "2 Orchard Turn", result.Records[1]["Address"])

	table := result.Table()
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, result.Columns, table.Columns)
}

func TestCSVParser_SkipEmptyRows(t *testing.T) {
	csvContent := `Site,Postcode
A,018956
,
B,238801
,
`
	parser := NewCSVParser(nil)
	result, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	assert.Equal(t, 2, len(result.Records))
	assert.Equal(t, 2, result.SkippedRows)
	assert.Equal(t, 4, result.TotalRows)
}

func TestCSVParser_TrimWhitespace(t *testing.T) {
	csvContent := "\ufeff  Site  ,  Postcode\n  A  ,  018956  \n"

	parser := NewCSVParser(nil)
	result, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Postcode"}, result.Columns)
	assert.Equal(t, "018956", result.Records[0]["Postcode"])
}

func TestCSVParser_MissingAndEmptyCells(t *testing.T) {
	csvContent := `Site,Postcode,Address
A,,1 Road
B
`
	parser := NewCSVParser(nil)
	result, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	require.Equal(t, 2, len(result.Records))
	assert.Nil(t, result.Records[0]["Postcode"])
	assert.Nil(t, result.Records[1]["Address"])
}

func TestCSVParser_Latin1(t *testing.T) {
	// "Café" in ISO-8859-1
	csvContent := []byte("Site,Postcode\nCaf\xe9,018956\n")

	parser := NewCSVParser(nil)
	result, err := parser.ParseStream(context.Background(), bytes.NewReader(csvContent))
	require.NoError(t, err)
	assert.Equal(t, "Café", result.Records[0]["Site"])

	config := DefaultParserConfig()
	config.Encoding = "ebcdic"
	_, err = NewCSVParser(config).ParseStream(context.Background(), bytes.NewReader(csvContent))
	assert.Error(t, err)
}

func TestCompressedCSVParser(t *testing.T) {
	tempDir := setupTestFiles(t)

	tests := []struct {
		file   string
		format string
	}{
		{"sites.csv.gz", "CSV/GZIP"},
		{"sites.csv.zip", "CSV/ZIP"},
	}
	factory := NewParserFactory(nil)

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			result, err := factory.ParseFile(context.Background(), filepath.Join(tempDir, tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.format, result.Format)
			assert.Equal(t, 3, len(result.Records))
			assert.Equal(t, "018956", result.Records[0]["Postcode"])
		})
	}
}

func TestCompressedCSVParser_Corrupt(t *testing.T) {
	parser := NewCompressedCSVParser(nil, CompressionGzip)
	_, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte("not gzip")))

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileParseError, appErr.Code)
}

func TestExcelParser_Parse(t *testing.T) {
	tempDir := setupTestFiles(t)

	result, err := NewExcelParser(nil).Parse(context.Background(), filepath.Join(tempDir, "sites.xlsx"))
	require.NoError(t, err)

	assert.Equal(t, "XLSX", result.Format)
	assert.Equal(t, []string{"Site", "Postcode"}, result.Columns)
	assert.Equal(t, 2, len(result.Records))
	assert.Equal(t, "018956", result.Records[0]["Postcode"])
	assert.Equal(t, "238801", result.Records[1]["Postcode"])
}

func TestExcelParser_NamedSheet(t *testing.T) {
	xf := excelize.NewFile()
	defer xf.Close()
	_, err := xf.NewSheet("Branches")
	require.NoError(t, err)
	// header starts below two blank rows
	require.NoError(t, xf.SetSheetRow("Branches", "A3", &[]interface{}{"Branch", "", "Branch"}))
	require.NoError(t, xf.SetSheetRow("Branches", "A4", &[]interface{}{"Tampines", "x", "529510"}))
	path := filepath.Join(t.TempDir(), "branches.xlsx")
	require.NoError(t, xf.SaveAs(path))

	cfg := DefaultParserConfig()
	cfg.Sheet = "branches"
	result, err := NewExcelParser(cfg).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Branch", "Unnamed: 1", "Branch.1"}, result.Columns)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "529510", result.Records[0]["Branch.1"])

	cfg.Sheet = "missing"
	_, err = NewExcelParser(cfg).Parse(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Branches")
}

func TestHeaderNames(t *testing.T) {
	got := headerNames([]string{"\ufeff Postcode ", "", "Postcode", "Postcode", "Postcode.1"}, true)
	assert.Equal(t, []string{"Postcode", "Unnamed: 1", "Postcode.1", "Postcode.2", "Postcode.1.1"}, got)
}

type parquetSite struct {
	Site     string   `parquet:"Site"`
	Postcode *string  `parquet:"Postcode"`
	Floors   int64    `parquet:"Floors"`
	Rating   *float64 `parquet:"Rating"`
}

func writeParquetSites(t *testing.T, dir string) string {
	t.Helper()
	postcode := "018956"
	rating := 4.5
	rows := []parquetSite{
		{Site: "Marina Bay Sands", Postcode: &postcode, Floors: 57, Rating: &rating},
		{Site: "  Ion Orchard  ", Floors: 8},
		{Site: "", Floors: 0},
	}
	path := filepath.Join(dir, "sites.parquet")
	require.NoError(t, parquet.WriteFile(path, rows))
	return path
}

func TestParquetParser_Parse(t *testing.T) {
	path := writeParquetSites(t, t.TempDir())

	factory := NewParserFactory(nil)
	result, err := factory.ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "PARQUET", result.Format)
	assert.Equal(t, []string{"Site", "Postcode", "Floors", "Rating"}, result.Columns)
	assert.Equal(t, 3, result.TotalRows)
	require.Len(t, result.Records, 3)

	first := result.Records[0]
	assert.Equal(t, "Marina Bay Sands", first["Site"])
	assert.Equal(t, "018956", first["Postcode"])
	assert.Equal(t, int64(57), first["Floors"])
	assert.Equal(t, 4.5, first["Rating"])

	second := result.Records[1]
	assert.Equal(t, "Ion Orchard", second["Site"])
	assert.Nil(t, second["Postcode"])
	assert.Nil(t, second["Rating"])

	// the third row still has Floors, so it is kept with a null Site
	assert.Nil(t, result.Records[2]["Site"])
}

func TestParquetParser_Stream(t *testing.T) {
	data, err := os.ReadFile(writeParquetSites(t, t.TempDir()))
	require.NoError(t, err)

	result, err := NewParquetParser(nil).ParseStream(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, result.Records, 3)

	cfg := DefaultParserConfig()
	cfg.MaxFileSize = int64(len(data) - 1)
	_, err = NewParquetParser(cfg).ParseStream(context.Background(), bytes.NewReader(data))
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, appErr.Code)
}

func TestParquetParser_NotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.parquet")
	require.NoError(t, os.WriteFile(path, []byte(sitesCSV), 0644))

	_, err := NewParquetParser(nil).Parse(context.Background(), path)
	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileParseError, appErr.Code)
}

func TestJSONParser_Parse(t *testing.T) {
	tempDir := setupTestFiles(t)

	result, err := NewJSONParser(nil).Parse(context.Background(), filepath.Join(tempDir, "sites.json"))
	require.NoError(t, err)

	assert.Equal(t, "JSON", result.Format)
	assert.Equal(t, []string{"Postcode", "Site"}, result.Columns)
	assert.Equal(t, float64(238801), result.Records[1]["Postcode"])
}

func TestJSONParser_SingleObject(t *testing.T) {
	result, err := NewJSONParser(nil).ParseStream(context.Background(),
		bytes.NewReader([]byte(`  {"Site": "A", "Postcode": "018956"}`)))
	require.NoError(t, err)

	assert.Equal(t, 1, len(result.Records))
	assert.Equal(t, "018956", result.Records[0]["Postcode"])
}

func TestJSONLParser_SkipMalformedLines(t *testing.T) {
	content := `{"Site": "A", "Postcode": "018956"}

not json
{"Site": "B", "Extra": 1}
`
	result, err := NewJSONLParser(nil).ParseStream(context.Background(), bytes.NewReader([]byte(content)))
	require.NoError(t, err)

	assert.Equal(t, 2, len(result.Records))
	assert.Equal(t, 2, result.SkippedRows)
	assert.Equal(t, []string{"Postcode", "Site", "Extra"}, result.Columns)
	assert.Nil(t, result.Table().Rows[1]["Postcode"])
}

func TestParserFactory_GetParserForFile(t *testing.T) {
	factory := NewParserFactory(nil)

	tests := []struct {
		file     string
		expected interface{}
	}{
		{"a.csv", &CSVParser{}},
		{"A.CSV.GZ", &CompressedCSVParser{}},
		{"a.csv.gzip", &CompressedCSVParser{}},
		{"a.csv.bz2", &CompressedCSVParser{}},
		{"a.csv.zip", &CompressedCSVParser{}},
		{"a.xlsx", &ExcelParser{}},
		{"a.xls", &ExcelParser{}},
		{"a.json", &JSONParser{}},
		{"a.jsonl", &JSONLParser{}},
		{"a.ndjson", &JSONLParser{}},
		{"a.PARQUET", &ParquetParser{}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			parser, err := factory.GetParserForFile(tt.file)
			require.NoError(t, err)
			assert.IsType(t, tt.expected, parser)
			assert.True(t, factory.IsSupportedFile(tt.file))
		})
	}
}

func TestParserFactory_Unsupported(t *testing.T) {
	factory := NewParserFactory(nil)

	for _, file := range []string{"a.orc", "a.txt", "a.gz", "a.zip"} {
		parser, err := factory.GetParserForFile(file)
		assert.Nil(t, parser)

		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok, file)
		assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, appErr.Code)
	}

	assert.False(t, factory.IsSupported(".orc"))
	assert.True(t, factory.IsSupported("CSV"))
}

func TestParserFactory_SupportedFormats(t *testing.T) {
	formats := NewParserFactory(nil).SupportedFormats()

	for _, expected := range []string{".csv", ".csv.gz", ".csv.bz2", ".csv.zip", ".xlsx", ".json", ".jsonl", ".parquet"} {
		assert.Contains(t, formats, expected)
	}
	assert.IsIncreasing(t, formats)
}

func TestParserFactory_ParseFiles(t *testing.T) {
	tempDir := setupTestFiles(t)
	factory := NewParserFactory(nil)

	table, err := factory.ParseFiles(context.Background(), []NamedFile{
		{Name: "north.csv", Path: filepath.Join(tempDir, "sites.csv")},
		{Name: "east.json", Path: filepath.Join(tempDir, "sites.json")},
	})
	require.NoError(t, err)

	assert.Equal(t, 6, table.Len())
	assert.Equal(t, []string{"Site", "Postcode", "Address", FilenameColumn}, table.Columns)
	assert.Equal(t, "north.csv", table.Rows[0][FilenameColumn])
	assert.Equal(t, "east.json", table.Rows[5][FilenameColumn])
	assert.Nil(t, table.Rows[5]["Address"])

	single, err := factory.ParseFiles(context.Background(), []NamedFile{
		{Name: "north.csv", Path: filepath.Join(tempDir, "sites.csv")},
	})
	require.NoError(t, err)
	assert.False(t, single.HasColumn(FilenameColumn))

	_, err = factory.ParseFiles(context.Background(), nil)
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "geocoded", OutputName(nil))
	assert.Equal(t, "sites", OutputName([]string{"sites.csv.gz"}))
	assert.Equal(t, "north--east", OutputName([]string{"north.csv", "east.xlsx", "west.csv"}))
}

func TestParserConfig_MaxFileSize(t *testing.T) {
	tempDir := setupTestFiles(t)

	config := DefaultParserConfig()
	config.MaxFileSize = 10 // Only 10 bytes

	_, err := NewParserFactory(config).ParseFile(context.Background(), filepath.Join(tempDir, "sites.csv"))

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, appErr.Code)
}

func TestContext_Cancellation(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("Site,Postcode\n")
	for i := 0; i < 10000; i++ {
		buf.WriteString("A,018956\n")
	}

	// Create a context that's already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVParser(nil).ParseStream(ctx, &buf)
	assert.Equal(t, context.Canceled, err)
}

func TestDefaultParserConfig(t *testing.T) {
	config := DefaultParserConfig()

	assert.Equal(t, 10000, config.MaxRowsInMemory)
	assert.True(t, config.SkipEmptyRows)
	assert.True(t, config.TrimWhitespace)
	assert.Equal(t, int64(100*1024*1024), config.MaxFileSize)
	assert.Equal(t, EncodingAuto, config.Encoding)
}

func TestFileLoader(t *testing.T) {
	dir := setupTestFiles(t)
	path := filepath.Join(dir, "sites.csv")

	loader := NewFileLoader(nil, path)
	assert.Equal(t, "file:"+path, loader.Describe())

	table, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Site", "Postcode", "Address"}, table.Columns)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, "018956", table.Rows[0]["Postcode"])

	_, err = NewFileLoader(nil, filepath.Join(dir, "missing.csv")).Load(context.Background())
	assert.Error(t, err)
}
