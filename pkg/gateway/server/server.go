package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/config"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/handlers"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/lifecycle"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/session"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/sessions"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/metrics"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/mw"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/ratelimit"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	providers core.Providers
	engine    guide.Config
	recorder  session.Recorder

	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	liveSessions *sessions.Tracker
	metrics      *metrics.Metrics
}

func New(cfg config.Config, providers core.Providers, recorder session.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		providers: providers,
		engine:    guide.DefaultConfig(),
		recorder:  recorder,
		limiter: ratelimit.New(ratelimit.Config{
			FrameRPS:    cfg.LimitRPS,
			FrameBurst:  cfg.LimitBurst,
			MaxSessions: cfg.WSMaxSessionsPerPrincipal,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		liveSessions: sessions.NewTracker(),
		metrics:      metrics.New("fixpilot"),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:       s.cfg,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
	})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Providers:    s.providers,
		Engine:       s.engine,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
		Metrics:      s.metrics,
		Recorder:     s.recorder,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Run serves until ctx is cancelled, then drains live sessions within the
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.lifecycle.SetDraining(true)
	warned := s.liveSessions.WarnAll("draining", "gateway is shutting down")
	s.logger.Info("draining", "live_sessions", s.liveSessions.Count(), "warned", warned)

	drainCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()

	if !s.liveSessions.Wait(drainCtx) {
		canceled := s.liveSessions.CancelAll()
		s.logger.Warn("drain timeout, cancelling sessions", "canceled", canceled)
		s.liveSessions.Wait(context.Background())
	}

	return httpServer.Shutdown(drainCtx)
}
