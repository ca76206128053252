package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Options configures the Redis connection and worker pool
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	MaxRetry      int
	Queues        map[string]int
}

// DefaultOptions uses a local Redis with two workers
func DefaultOptions() *Options {
	return &Options{
		RedisAddr:   "localhost:6379",
		Concurrency: 2,
		MaxRetry:    3,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  1,
		},
	}
}

func (o *Options) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         o.RedisAddr,
		Password:     o.RedisPassword,
		DB:           o.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// AsynqClient wraps the Asynq client for enqueuing tasks
type AsynqClient struct {
	client *asynq.Client
	opts   *Options
	logger *slog.Logger
}

// NewAsynqClient creates a new Asynq client
func NewAsynqClient(opts *Options, logger *slog.Logger) *AsynqClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := asynq.NewClient(opts.redisOpt())

	logger.Info("asynq client created",
		slog.String("redis_addr", opts.RedisAddr))

	return &AsynqClient{
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// Close closes the Asynq client
func (a *AsynqClient) Close() error {
	a.logger.Info("closing asynq client")
	return a.client.Close()
}

// EnqueueContext enqueues a task with context
func (a *AsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := a.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		a.logger.Error("failed to enqueue task",
			slog.String("task_type", task.Type()),
			slog.Any("error", err),
		)
		return nil, apperrors.QueueError(err)
	}

	a.logger.Debug("task enqueued",
		slog.String("task_id", info.ID),
		slog.String("task_type", task.Type()),
		slog.String("queue", info.Queue),
	)

	return info, nil
}

// EnqueueReferenceRefresh schedules a reload of the master reference. Only
// one refresh can be pending at a time; a duplicate request returns the
// queue's conflict error wrapped as a QUEUE_ERROR.
func (a *AsynqClient) EnqueueReferenceRefresh(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	task, err := NewReferenceRefreshTask(reason)
	if err != nil {
		return nil, err
	}
	return a.EnqueueContext(ctx, task,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(a.opts.MaxRetry),
		asynq.Unique(refreshUniqueTTL),
		asynq.Timeout(refreshTimeout),
	)
}

// AsynqServer wraps the Asynq server for processing tasks
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewAsynqServer creates a new Asynq server
func NewAsynqServer(opts *Options, logger *slog.Logger) *AsynqServer {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := asynq.NewServer(
		opts.redisOpt(),
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues:      opts.Queues,

			// Exponential backoff: 2s, 4s, 8s, ...
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return time.Duration(1<<uint(n)) * time.Second
			},

			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					slog.String("task_type", task.Type()),
					slog.String("payload", string(task.Payload())),
					slog.Any("error", err),
				)
			}),

			HealthCheckFunc: func(e error) {
				if e != nil {
					logger.Error("health check failed", slog.Any("error", e))
				}
			},
			HealthCheckInterval: 20 * time.Second,

			ShutdownTimeout: 25 * time.Second,
		},
	)

	logger.Info("asynq server created",
		slog.String("redis_addr", opts.RedisAddr),
		slog.Int("concurrency", opts.Concurrency),
	)

	return &AsynqServer{
		server: server,
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

// HandleFunc registers a handler function for a task type
func (a *AsynqServer) HandleFunc(pattern string, handler func(context.Context, *asynq.Task) error) {
	a.mux.HandleFunc(pattern, handler)
	a.logger.Debug("handler registered", slog.String("pattern", pattern))
}

// Start runs the server until it is shut down
func (a *AsynqServer) Start() error {
	a.logger.Info("starting asynq server")
	if err := a.server.Run(a.mux); err != nil {
		return fmt.Errorf("failed to run asynq server: %w", err)
	}
	return nil
}

// StartBackground starts processing without waiting for signals. The caller
// owns the lifecycle and must call Shutdown.
func (a *AsynqServer) StartBackground() error {
	a.logger.Info("starting asynq server in background")
	if err := a.server.Start(a.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (a *AsynqServer) Shutdown() {
	a.logger.Info("shutting down asynq server")
	a.server.Shutdown()
}

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)
