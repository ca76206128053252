package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/services/reference"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/parsers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/infrastructure/storage"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web/handlers"
	"github.com/second-order-ai/singapore-postcode-geocoding/internal/web/middleware"
)

// Deps are the services behind the HTTP API
type Deps struct {
	Geocoder     handlers.Geocoder
	Provider     *reference.Provider
	Parsers      *parsers.ParserFactory
	Storage      *storage.LocalStorage
	Queue        handlers.RefreshEnqueuer
	Components   map[string]handlers.HealthChecker
	MaxFileSize  int64
	RegexPattern string
	Logger       *slog.Logger
}

// Server represents the web server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *slog.Logger
}

// NewServer creates a new web server listening on addr
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		router: NewRouter(deps),
		logger: deps.Logger,
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// NewRouter configures all HTTP routes
func NewRouter(deps Deps) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	geocode := &handlers.GeocodeHandler{
		Service:      deps.Geocoder,
		Parsers:      deps.Parsers,
		Storage:      deps.Storage,
		MaxFileSize:  deps.MaxFileSize,
		RegexPattern: deps.RegexPattern,
		Logger:       deps.Logger,
	}
	ref := &handlers.ReferenceHandler{
		Provider:   deps.Provider,
		Queue:      deps.Queue,
		Components: deps.Components,
		Logger:     deps.Logger,
	}

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ref.Health).Methods(http.MethodGet)
	api.HandleFunc("/geocode", geocode.Geocode).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/identify", geocode.Identify).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reference", ref.Reference).Methods(http.MethodGet)
	api.HandleFunc("/reference/refresh", ref.Refresh).Methods(http.MethodPost, http.MethodOptions)

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogging(deps.Logger))

	return router
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
