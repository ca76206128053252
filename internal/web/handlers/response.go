package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail mirrors AppError
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}

// writeError maps an AppError to its status code; anything else is a 500
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	appErr, ok := apperrors.GetAppError(err)
	if !ok {
		appErr = apperrors.InternalWrap(err, "internal server error")
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("code", string(appErr.Code)),
			slog.Any("error", err))
	} else {
		logger.Debug("request rejected",
			slog.String("code", string(appErr.Code)),
			slog.String("message", appErr.Message))
	}

	writeJSON(w, appErr.StatusCode, ErrorBody{Error: ErrorDetail{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
