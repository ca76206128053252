package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/extraction"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/export"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/storage"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/logger"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web/handlers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web/middleware"
)

const sitesCSV = `Site,Postcode,Address
Marina Bay Sands,018956,10 Bayfront Avenue Singapore 018956
Ion Orchard,238801,2 Orchard Turn Singapore 238801
Unknown,999999,Nowhere
Blank,,
`

type mockQueue struct {
	calls int
	err   error
}

func (m *mockQueue) EnqueueReferenceRefresh(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: "critical"}, nil
}

type fakeComponent struct{ status string }

func (f fakeComponent) Health(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"status": f.status}
}

func testDeps(t *testing.T) Deps {
	t.Helper()

	table := domain.NewTable(domain.GeocodedColumns(), []domain.Record{
		{domain.ColPostal: "018956", domain.ColAddress: "10 BAYFRONT AVENUE SINGAPORE 018956", domain.ColLatitude: 1.2834, domain.ColLongitude: 103.8607},
		{domain.ColPostal: "238801", domain.ColAddress: "2 ORCHARD TURN SINGAPORE 238801", domain.ColLatitude: 1.3040, domain.ColLongitude: 103.8318},
		{domain.ColPostal: "049315", domain.ColAddress: "1 RAFFLES PLACE SINGAPORE 049315", domain.ColLatitude: 1.2844, domain.ColLongitude: 103.8511},
	})
	d, err := reference.NewDataset(table, domain.ColPostal, "test")
	require.NoError(t, err)
	provider := reference.NewStaticProvider(d)

	svc, err := geocoding.NewService(nil, provider, logger.Discard())
	require.NoError(t, err)

	store, err := storage.NewLocalStorage(&storage.LocalStorageConfig{BasePath: t.TempDir()}, logger.Discard())
	require.NoError(t, err)

	return Deps{
		Geocoder:     svc,
		Provider:     provider,
		Parsers:      parsers.NewParserFactory(nil),
		Storage:      store,
		Queue:        &mockQueue{},
		MaxFileSize:  10 << 20,
		RegexPattern: extraction.DefaultPattern,
		Logger:       logger.Discard(),
	}
}

type upload struct {
	name    string
	content string
}

func multipartRequest(t *testing.T, path string, files []upload, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range files {
		part, err := mw.CreateFormFile(handlers.FieldFile, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Reference.Loaded)
	assert.Equal(t, 3, resp.Reference.Postcodes)

	deps.Components = map[string]handlers.HealthChecker{"redis": fakeComponent{status: "down"}}
	rec = serve(NewRouter(deps), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Components["redis"]["status"])
}

func TestHealth_ReferenceNotLoaded(t *testing.T) {
	deps := testDeps(t)
	deps.Provider = reference.NewProvider(reference.LoaderFunc(func(context.Context) (*domain.Table, error) {
		return nil, fmt.Errorf("not needed")
	}), nil, nil, logger.Discard())

	rec := serve(NewRouter(deps), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Reference.Loaded)
}

func TestGeocode_JSON(t *testing.T) {
	router := NewRouter(testDeps(t))

	rec := serve(router, multipartRequest(t, "/api/geocode", []upload{{"sites.csv", sitesCSV}}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.GeocodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "Postcode", resp.Selection.Column)
	assert.Equal(t, 4, resp.TotalRecords)
	assert.Equal(t, 2, resp.MatchedRecords)
	require.NotNil(t, resp.Table)
	assert.Len(t, resp.Table.Rows, 4)
	assert.Contains(t, resp.Table.Columns, domain.ColLatitude)
}

func TestGeocode_CSVDownload(t *testing.T) {
	router := NewRouter(testDeps(t))

	req := multipartRequest(t, "/api/geocode?format=csv", []upload{{"sites.csv", sitesCSV}}, nil)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sites_geocoded.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", rec.Header().Get("X-Matched-Records"))
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))

	lines, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"Site", "Postcode", "Address"}, lines[0][:3])
}

func TestGeocode_ExcelDownload(t *testing.T) {
	router := NewRouter(testDeps(t))

	req := multipartRequest(t, "/api/geocode", []upload{{"sites.csv", sitesCSV}}, map[string]string{
		handlers.FieldFormat: "xlsx",
	})
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.FormatExcel.ContentType(), rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestGeocode_MultipleFiles(t *testing.T) {
	router := NewRouter(testDeps(t))

	second := "Site,Postcode,Address\nRaffles Place,049315,1 Raffles Place\n"
	req := multipartRequest(t, "/api/geocode", []upload{{"a.csv", sitesCSV}, {"b.csv", second}}, nil)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.GeocodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.TotalRecords)
	assert.Equal(t, 3, resp.MatchedRecords)
	assert.Contains(t, resp.Table.Columns, parsers.FilenameColumn)
}

func TestGeocode_ManualSelection(t *testing.T) {
	router := NewRouter(testDeps(t))

	req := multipartRequest(t, "/api/geocode", []upload{{"sites.csv", sitesCSV}}, map[string]string{
		handlers.FieldColumn: "Address",
		handlers.FieldMethod: "indirect",
	})
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.GeocodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Address", resp.Selection.Column)
	assert.Equal(t, "INDIRECT", string(resp.Selection.Method))
	assert.Equal(t, 2, resp.MatchedRecords)
}

func TestGeocode_NoSuitableColumn(t *testing.T) {
	router := NewRouter(testDeps(t))

	content := "Name,Notes\nalpha,none\nbeta,nothing here\n"
	rec := serve(router, multipartRequest(t, "/api/geocode", []upload{{"notes.csv", content}}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp handlers.GeocodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, geocoding.NoCandidateMessage(0), resp.Message)
	assert.Nil(t, resp.Table)
}

func TestGeocode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode", nil, map[string]string{"x": "y"})
			},
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name: "unsupported extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode", []upload{{"sites.orc", "ORC"}}, nil)
			},
			status: http.StatusBadRequest,
			code:   "UNSUPPORTED_FORMAT",
		},
		{
			name: "truncated parquet",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode", []upload{{"sites.parquet", "PAR1"}}, nil)
			},
			status: http.StatusBadRequest,
			code:   "FILE_PARSE_ERROR",
		},
		{
			name: "unknown column",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode", []upload{{"sites.csv", sitesCSV}}, map[string]string{
					handlers.FieldColumn: "Zip",
				})
			},
			status: http.StatusBadRequest,
			code:   "COLUMN_NOT_FOUND",
		},
		{
			name: "invalid method",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode", []upload{{"sites.csv", sitesCSV}}, map[string]string{
					handlers.FieldColumn: "Postcode",
					handlers.FieldMethod: "fuzzy",
				})
			},
			status: http.StatusBadRequest,
			code:   "INVALID_METHOD",
		},
		{
			name: "invalid format",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/geocode?format=parquet", []upload{{"sites.csv", sitesCSV}}, nil)
			},
			status: http.StatusBadRequest,
			code:   "UNSUPPORTED_FORMAT",
		},
	}

	router := NewRouter(testDeps(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.req(t))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body handlers.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestIdentify(t *testing.T) {
	router := NewRouter(testDeps(t))

	rec := serve(router, multipartRequest(t, "/api/identify", []upload{{"sites.csv", sitesCSV}}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Best    struct {
			Column string `json:"column"`
			Method string `json:"method"`
		} `json:"best"`
		Candidates []json.RawMessage `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Postcode", resp.Best.Column)
	assert.Equal(t, "DIRECT", resp.Best.Method)
	assert.Len(t, resp.Candidates, 6)
}

func TestReferenceRefresh(t *testing.T) {
	deps := testDeps(t)
	q := deps.Queue.(*mockQueue)
	router := NewRouter(deps)

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/reference/refresh", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp handlers.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, 1, q.calls)

	q.err = fmt.Errorf("enqueue: %w", asynq.ErrDuplicateTask)
	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/reference/refresh", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReferenceRefresh_NoQueue(t *testing.T) {
	deps := testDeps(t)
	deps.Queue = nil

	rec := serve(NewRouter(deps), httptest.NewRequest(http.MethodPost, "/api/reference/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReferenceInfo(t *testing.T) {
	rec := serve(NewRouter(testDeps(t)), httptest.NewRequest(http.MethodGet, "/api/reference", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info handlers.ReferenceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Loaded)
	assert.Equal(t, 3, info.Rows)
	assert.Equal(t, "test", info.Source)
}

func TestCORSPreflight(t *testing.T) {
	rec := serve(NewRouter(testDeps(t)), httptest.NewRequest(http.MethodOptions, "/api/geocode", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
