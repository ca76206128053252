package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/conversion"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/geocoding"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/identification"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/export"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/storage"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Form fields of the upload endpoints
const (
	FieldFile         = "file"
	FieldColumn       = "column"
	FieldMethod       = "method"
	FieldRegexPattern = "regex_pattern"
	FieldFormat       = "format"
)

const maxMultipartMemory = 32 << 20

// Geocoder runs identification and geocoding. *geocoding.Service
// satisfies it.
type Geocoder interface {
	Identify(ctx context.Context, table *domain.Table) (*identification.Result, error)
	Process(ctx context.Context, table *domain.Table) (*geocoding.Result, error)
	ProcessWithSelection(ctx context.Context, table *domain.Table, sel conversion.Selection) (*geocoding.Result, error)
}

// GeocodeHandler serves the upload endpoints
type GeocodeHandler struct {
	Service      Geocoder
	Parsers      *parsers.ParserFactory
	Storage      *storage.LocalStorage
	MaxFileSize  int64
	RegexPattern string
	Logger       *slog.Logger
}

// GeocodeResponse is the JSON body of a geocoding run
type GeocodeResponse struct {
	RunID          string                     `json:"run_id"`
	Success        bool                       `json:"success"`
	Message        string                     `json:"message,omitempty"`
	Selection      *conversion.Selection      `json:"selection,omitempty"`
	BestRate       float64                    `json:"best_rate"`
	Candidates     []identification.Candidate `json:"candidates,omitempty"`
	Stats          *geocoding.MatchStats      `json:"stats,omitempty"`
	TotalRecords   int                        `json:"total_records"`
	MatchedRecords int                        `json:"matched_records"`
	ProcessTimeMs  int64                      `json:"process_time_ms"`
	Table          *domain.Table              `json:"table,omitempty"`
}

func newGeocodeResponse(res *geocoding.Result) GeocodeResponse {
	resp := GeocodeResponse{
		RunID:          res.RunID,
		Success:        res.Success,
		Message:        res.Message,
		Selection:      res.Selection,
		BestRate:       res.BestRate,
		Candidates:     res.Candidates,
		Stats:          res.Stats,
		TotalRecords:   res.TotalRecords(),
		MatchedRecords: res.MatchedRecords(),
		ProcessTimeMs:  res.ProcessTime.Milliseconds(),
	}
	if res.Success {
		resp.Table = res.Table
	}
	return resp
}

// Geocode handles POST /api/geocode. Without a column the postcode column
// is identified automatically. A run that finds no suitable column
// answers 422 with the best predicted rate.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	table, names, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	// format may come from the query string or the form
	format, err := export.ParseFormat(r.FormValue(FieldFormat))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	sel, manual, err := h.selection(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	var res *geocoding.Result
	if manual {
		res, err = h.Service.ProcessWithSelection(r.Context(), table, sel)
	} else {
		res, err = h.Service.Process(r.Context(), table)
	}
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, newGeocodeResponse(res))
		return
	}

	if format == export.FormatJSON {
		writeJSON(w, http.StatusOK, newGeocodeResponse(res))
		return
	}

	filename := fmt.Sprintf("%s_geocoded.%s", parsers.OutputName(names), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Run-ID", res.RunID)
	w.Header().Set("X-Total-Records", strconv.Itoa(res.TotalRecords()))
	w.Header().Set("X-Matched-Records", strconv.Itoa(res.MatchedRecords()))
	w.WriteHeader(http.StatusOK)

	if err := export.Write(w, res.Table, format); err != nil {
		// headers are gone; the client sees a truncated body
		h.Logger.Error("failed to write export",
			slog.String("run_id", res.RunID),
			slog.Any("error", err))
	}
}

// Identify handles POST /api/identify
func (h *GeocodeHandler) Identify(w http.ResponseWriter, r *http.Request) {
	table, _, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	res, err := h.Service.Identify(r.Context(), table)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// selection reads an optional manual column choice. The method defaults
// to DIRECT and INDIRECT falls back to the configured pattern.
func (h *GeocodeHandler) selection(r *http.Request) (conversion.Selection, bool, error) {
	column := r.FormValue(FieldColumn)
	if column == "" {
		return conversion.Selection{}, false, nil
	}

	method := identification.MethodDirect
	if m := r.FormValue(FieldMethod); m != "" {
		parsed, err := identification.ParseMethod(m)
		if err != nil {
			return conversion.Selection{}, false, err
		}
		method = parsed
	}

	sel := conversion.Selection{Column: column, Method: method}
	if method == identification.MethodIndirect {
		sel.RegexPattern = r.FormValue(FieldRegexPattern)
		if sel.RegexPattern == "" {
			sel.RegexPattern = h.RegexPattern
		}
	}
	return sel, true, nil
}

// readUpload stores every uploaded file under one upload id, parses them
// into a single table and removes the files again
func (h *GeocodeHandler) readUpload(w http.ResponseWriter, r *http.Request) (*domain.Table, []string, error) {
	if h.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxFileSize*4+maxMultipartMemory)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, nil, apperrors.BadRequest(fmt.Sprintf("invalid multipart form: %v", err))
	}

	headers := r.MultipartForm.File[FieldFile]
	if len(headers) == 0 {
		return nil, nil, apperrors.BadRequest("at least one file is required in field \"file\"")
	}

	uploadID := storage.NewUploadID()
	defer func() {
		if err := h.Storage.DeleteUpload(context.WithoutCancel(r.Context()), uploadID); err != nil {
			h.Logger.Warn("failed to delete upload",
				slog.String("upload_id", uploadID),
				slog.Any("error", err))
		}
	}()

	files := make([]parsers.NamedFile, 0, len(headers))
	names := make([]string, 0, len(headers))
	for i, fh := range headers {
		if !h.Parsers.IsSupportedFile(fh.Filename) {
			return nil, nil, apperrors.UnsupportedFormat(fh.Filename).
				WithDetails("supported", h.Parsers.SupportedFormats())
		}

		meta, err := h.save(r.Context(), uploadID, i, fh)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, parsers.NamedFile{Name: fh.Filename, Path: meta.StoredPath})
		names = append(names, fh.Filename)
	}

	table, err := h.Parsers.ParseFiles(r.Context(), files)
	if err != nil {
		return nil, nil, err
	}

	h.Logger.Info("upload parsed",
		slog.String("upload_id", uploadID),
		slog.String("files", strings.Join(names, ",")),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))

	return table, names, nil
}

func (h *GeocodeHandler) save(ctx context.Context, uploadID string, index int, fh *multipart.FileHeader) (*storage.FileMetadata, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.InvalidFile(fmt.Sprintf("cannot read %s: %v", fh.Filename, err))
	}
	defer f.Close()

	// the index keeps same-named files apart
	return h.Storage.SaveUpload(ctx, uploadID, fmt.Sprintf("%d_%s", index, fh.Filename), f)
}
