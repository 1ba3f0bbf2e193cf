package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	convo "github.com/everydev1618/goconvo"
)

// Config holds server configuration.
type Config struct {
	Addr string

	// MaxBodyBytes bounds request bodies. Zero means 1 MiB.
	MaxBodyBytes int64

	// RunTimeout bounds how long a run waits for pending values.
	RunTimeout time.Duration
}

// Server is the HTTP API for parsing and running convo documents.
type Server struct {
	engine    *convo.Engine
	broker    *EventBroker
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates a new Server.
func New(engine *convo.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: engine,
		broker: NewEventBroker(),
		cfg:    cfg,
		logger: logger,
	}
}

// Handler returns the router with all API routes.
func (s *Server) Handler() http.Handler {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return corsMiddleware(mux)
}

// Start listens for HTTP requests. It blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("convo serve started", "addr", s.cfg.Addr)
		fmt.Printf("API: http://localhost%s/api/stats\n", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	// Close the broker first so SSE handlers return and the server can drain.
	s.broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", "error", err)
	}
	return nil
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("POST /api/tools", s.handleTools)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("POST /api/conversations/{id}/run", s.handleRun)
	mux.HandleFunc("GET /api/conversations/{id}/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// SSE
	mux.HandleFunc("GET /api/events", s.handleSSE)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
