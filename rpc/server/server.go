package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/lockmgr"
	"github.com/ValentinKolb/dCoord/lib/props"
	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

var janitorRuns = metrics.NewCounter(`dcoord_janitor_runs_total`)

// Server exposes the coordinator, the lock manager and the property store over HTTP.
type Server struct {
	config  common.ServerConfig
	coord   *coord.Coordinator
	locks   lockmgr.ILockManager
	props   props.IPropertyStore
	clock   clock.Clock
	schemas *schemas
	started time.Time
	closers []func() error
}

// NewServer creates a server from already constructed components.
// Use Bootstrap to build all components from a ServerConfig.
func NewServer(
	config common.ServerConfig,
	c *coord.Coordinator,
	locks lockmgr.ILockManager,
	store props.IPropertyStore,
	clk clock.Clock,
) (*Server, error) {
	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Server{
		config:  config,
		coord:   c,
		locks:   locks,
		props:   store,
		clock:   clk,
		schemas: sch,
		started: clk.Now(),
	}, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// projects
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /projects/{id}/tasks/regenerate", s.handleRegenerateTasks)
	mux.HandleFunc("POST /projects/{id}/folder", s.handleRetryProvisioning)
	mux.HandleFunc("GET /integrity", s.handleIntegrity)

	// locks
	mux.HandleFunc("POST /locks/sweep", s.handleSweep)
	mux.HandleFunc("GET /locks/{kind}/{id}", s.handleLockStatus)
	mux.HandleFunc("POST /locks/{kind}/{id}/acquire", s.handleAcquire)
	mux.HandleFunc("POST /locks/{kind}/{id}/release", s.handleRelease)

	// properties
	mux.HandleFunc("GET /props", s.handleListProps)
	mux.HandleFunc("GET /props/{key}", s.handleGetProp)
	mux.HandleFunc("PUT /props/{key}", s.handleSetProp)
	mux.HandleFunc("DELETE /props/{key}", s.handleDeleteProp)

	// observability
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	var h http.Handler = limitBody(mux)
	if s.config.LogLevel == "debug" {
		h = loggerMiddleware(h)
	}
	return h
}

// Serve listens on the configured endpoint and runs the lock janitor until
// ctx is cancelled or SIGINT/SIGTERM is received.
func (s *Server) Serve(ctx context.Context) error {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.config.Endpoint,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.config.JanitorInterval > 0 {
		go s.runJanitor(ctx, s.config.JanitorInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", s.config.Endpoint)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		Logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return s.Close()
	}
}

// Close releases the backends opened by Bootstrap.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Janitor
// --------------------------------------------------------------------------

func (s *Server) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	Logger.Infof("lock janitor running every %s", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired locks once. Errors are logged and retried on the next tick.
func (s *Server) sweep() int {
	janitorRuns.Inc()
	n, err := s.locks.CleanExpiredLocks()
	if err != nil {
		Logger.Warningf("lock janitor: %v", err)
		return 0
	}
	if n > 0 {
		Logger.Infof("lock janitor removed %d expired locks", n)
	}
	return n
}
