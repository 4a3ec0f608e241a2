package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"castsync/internal/logging"
	"castsync/internal/runlock"
	"castsync/internal/workflow"
)

// Runner executes passes. *workflow.Orchestrator satisfies it.
type Runner interface {
	Sync(ctx context.Context, filter []string) (workflow.RunSummary, error)
	Refresh(ctx context.Context, filter []string) (workflow.RunSummary, error)
	Status() workflow.Status
}

// Options configures a Server.
type Options struct {
	Bind string
	// RequestsPerMinute limits trigger requests per client IP; zero disables it.
	RequestsPerMinute int
	Token             string
	// LockPath is the cross-process run lock; empty skips it.
	LockPath string
	Runner   Runner
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the HTTP trigger server.
type Server struct {
	opts    Options
	logger  *slog.Logger
	handler http.Handler

	busy atomic.Bool
	wg   sync.WaitGroup

	mu       sync.Mutex
	baseCtx  context.Context
	listener net.Listener
	server   *http.Server
}

// New builds a Server. Call Start to listen, or mount Handler elsewhere.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	s := &Server{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "server"),
		baseCtx: context.Background(),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if s.opts.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.opts.RequestsPerMinute, time.Minute))
		}
		r.Use(requireToken(s.opts.Token))
		syncHandler := s.handleTrigger(workflow.KindSync, "Sync already in progress", "Sync started in background")
		refresh := s.handleTrigger(workflow.KindRefresh, "Sync/RSS update already in progress", "RSS update started in background")
		r.Get("/sync", syncHandler)
		r.Post("/sync", syncHandler)
		r.Get("/sync/rss", refresh)
		r.Post("/sync/rss", refresh)
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves until ctx is done.
// Background passes run under ctx.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("server: bind address is required")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down. Background passes keep running until their
// context ends; use Wait to join them.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// Wait blocks until every background pass has returned.
func (s *Server) Wait() { s.wg.Wait() }

// Busy reports whether a pass started by this server is running.
func (s *Server) Busy() bool { return s.busy.Load() }

// Trigger starts a pass of kind in the background. It returns runlock.ErrBusy
// when a pass is already running here or in another process.
func (s *Server) Trigger(kind string, filter []string) error {
	if kind != workflow.KindSync && kind != workflow.KindRefresh {
		return fmt.Errorf("server: unknown pass kind %q", kind)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return runlock.ErrBusy
	}
	if s.opts.Runner.Status().Running {
		s.busy.Store(false)
		return runlock.ErrBusy
	}
	var lock *runlock.Lock
	if s.opts.LockPath != "" {
		l, err := runlock.Acquire(s.opts.LockPath)
		if err != nil {
			s.busy.Store(false)
			return err
		}
		lock = l
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		defer func() {
			if err := lock.Release(); err != nil {
				s.logger.Warn("run lock release failed", logging.Error(err))
			}
		}()
		s.execute(ctx, kind, filter)
	}()
	return nil
}

func (s *Server) execute(ctx context.Context, kind string, filter []string) {
	run := s.opts.Runner.Sync
	if kind == workflow.KindRefresh {
		run = s.opts.Runner.Refresh
	}
	s.logger.Info("background pass starting",
		logging.String(logging.FieldEventType, "trigger_started"),
		logging.String("kind", kind),
		logging.String("sources", strings.Join(filter, ",")),
	)
	summary, err := run(ctx, filter)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			s.logger.Info("background pass skipped, another pass is running", logging.String("kind", kind))
			return
		}
		logging.ErrorWithContext(s.logger, "background pass failed", "trigger_failed",
			logging.String("kind", kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the source filter and the configuration"),
		)
		return
	}
	s.logger.Info("background pass finished",
		logging.String(logging.FieldEventType, "trigger_finished"),
		logging.String("kind", kind),
		logging.String(logging.FieldRunID, summary.RunID),
		logging.Int("published", summary.Published()),
		logging.Int("failed", summary.Failed()),
	)
}
