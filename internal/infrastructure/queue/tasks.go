package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
)

// TaskTypeReferenceRefresh reloads the master reference in the worker
const TaskTypeReferenceRefresh = "reference:refresh"

const (
	refreshUniqueTTL = 10 * time.Minute
	refreshTimeout   = 15 * time.Minute
)

// ReferenceRefreshPayload is the body of a refresh task
type ReferenceRefreshPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewReferenceRefreshTask builds a refresh task
func NewReferenceRefreshTask(reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReferenceRefreshPayload{
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh payload: %w", err)
	}
	return asynq.NewTask(TaskTypeReferenceRefresh, payload), nil
}

// Refresher reloads the master reference. *reference.Provider satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*reference.Dataset, error)
}

// NewReferenceRefreshHandler returns the worker handler for refresh tasks.
// A malformed payload is not retried.
func NewReferenceRefreshHandler(refresher Refresher, logger *slog.Logger) func(context.Context, *asynq.Task) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		var p ReferenceRefreshPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("invalid refresh payload: %v: %w", err, asynq.SkipRetry)
		}

		start := time.Now()
		d, err := refresher.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("reference refresh failed: %w", err)
		}

		logger.Info("reference refresh task completed",
			slog.String("reason", p.Reason),
			slog.Time("requested_at", p.RequestedAt),
			slog.Int("rows", d.Len()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return nil
	}
}

// Register wires the refresh handler into the server
func (a *AsynqServer) Register(refresher Refresher) {
	a.HandleFunc(TaskTypeReferenceRefresh, NewReferenceRefreshHandler(refresher, a.logger))
}
