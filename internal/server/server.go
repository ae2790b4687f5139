package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/skald-ai/skald/internal/health"
	"github.com/skald-ai/skald/internal/metrics"
	"github.com/skald-ai/skald/internal/observe"
	"github.com/skald-ai/skald/internal/sttfilter"
)

// Server accepts WebSocket clients and hands each its own Handler. Each
// connection gets an independent conversation session.
type Server struct {
	addr        string
	metricsAddr string
	handlerCfg  HandlerConfig
	prov        Providers
	filt        *sttfilter.Filter
	mlog        *metrics.Logger
	obs         *observe.Metrics
	checkers    []health.Checker
}

// ServerConfig configures the listener.
type ServerConfig struct {
	// Addr is the WebSocket listen address, host:port.
	Addr string

	// MetricsAddr, when non-empty, serves Prometheus metrics on /metrics.
	MetricsAddr string

	// HealthCheckers back the /readyz probe, typically one per sidecar.
	HealthCheckers []health.Checker

	Handler HandlerConfig
}

// New creates a server.
func New(cfg ServerConfig, prov Providers, filt *sttfilter.Filter, mlog *metrics.Logger, obs *observe.Metrics) *Server {
	return &Server{
		addr:        cfg.Addr,
		metricsAddr: cfg.MetricsAddr,
		handlerCfg:  cfg.Handler,
		prov:        prov,
		filt:        filt,
		mlog:        mlog,
		obs:         obs,
		checkers:    cfg.HealthCheckers,
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	health.New(s.checkers...).Register(mux)

	httpSrv := &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening for clients", "addr", s.addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.addr, err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if s.metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", observe.MetricsHandler())
		metricsSrv = &http.Server{Addr: s.metricsAddr, Handler: metricsMux}
		g.Go(func() error {
			slog.Info("serving metrics", "addr", s.metricsAddr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: metrics listen on %s: %w", s.metricsAddr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// serveWS upgrades the request and runs a handler for the connection's
// lifetime.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()
	s.obs.ActiveSessions.Add(ctx, 1)
	defer s.obs.ActiveSessions.Add(ctx, -1)
	slog.Info("client connected", "remote", r.RemoteAddr)

	h := NewHandler(s.handlerCfg, s.prov, s.filt, s.mlog, s.obs)
	if err := h.Serve(ctx, newWSTransport(conn)); err != nil &&
		websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
		websocket.CloseStatus(err) != websocket.StatusGoingAway &&
		!errors.Is(err, context.Canceled) {
		slog.Info("client disconnected", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("client disconnected", "remote", r.RemoteAddr)
	conn.Close(websocket.StatusNormalClosure, "")
}
