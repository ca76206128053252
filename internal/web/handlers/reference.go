package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// RefreshEnqueuer schedules a reference reload. *queue.AsynqClient
// satisfies it.
type RefreshEnqueuer interface {
	EnqueueReferenceRefresh(ctx context.Context, reason string) (*asynq.TaskInfo, error)
}

// HealthChecker reports the state of a backing service
type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// ReferenceHandler serves health and reference maintenance endpoints
type ReferenceHandler struct {
	Provider   *reference.Provider
	Queue      RefreshEnqueuer
	Components map[string]HealthChecker
	Logger     *slog.Logger
}

// ReferenceInfo describes the loaded master reference
type ReferenceInfo struct {
	Loaded    bool      `json:"loaded"`
	Source    string    `json:"source,omitempty"`
	Rows      int       `json:"rows"`
	Postcodes int       `json:"postcodes"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status     string                            `json:"status"`
	Reference  ReferenceInfo                     `json:"reference"`
	Components map[string]map[string]interface{} `json:"components,omitempty"`
}

func (h *ReferenceHandler) info() ReferenceInfo {
	d := h.Provider.Current()
	if d == nil {
		return ReferenceInfo{}
	}
	return ReferenceInfo{
		Loaded:    true,
		Source:    d.Source(),
		Rows:      d.Len(),
		Postcodes: d.Postcodes().Len(),
		LoadedAt:  d.LoadedAt(),
	}
}

// Health handles GET /api/health. The service is degraded when the
// reference is not loaded yet or a component is down.
func (h *ReferenceHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Reference: h.info()}
	if !resp.Reference.Loaded {
		resp.Status = "degraded"
	}

	if len(h.Components) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Components = make(map[string]map[string]interface{}, len(h.Components))
		for name, c := range h.Components {
			state := c.Health(ctx)
			if state["status"] != "up" {
				resp.Status = "degraded"
			}
			resp.Components[name] = state
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Reference handles GET /api/reference
func (h *ReferenceHandler) Reference(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info())
}

// RefreshResponse is the body of POST /api/reference/refresh
type RefreshResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

// Refresh handles POST /api/reference/refresh by queueing a reload for the
// worker. A refresh that is already pending answers 409.
func (h *ReferenceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeError(w, h.Logger, apperrors.New(apperrors.ErrCodeQueueError,
			"reference refresh queue is not configured", http.StatusServiceUnavailable))
		return
	}

	info, err := h.Queue.EnqueueReferenceRefresh(r.Context(), "api")
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			writeError(w, h.Logger, apperrors.Conflict("a reference refresh is already pending"))
			return
		}
		writeError(w, h.Logger, err)
		return
	}

	h.Logger.Info("reference refresh queued",
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue))

	writeJSON(w, http.StatusAccepted, RefreshResponse{TaskID: info.ID, Queue: info.Queue})
}
