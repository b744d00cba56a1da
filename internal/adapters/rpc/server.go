package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dcarrith/chaimcp/internal/platform/metrics"
	"github.com/dcarrith/chaimcp/internal/platform/ratelimiter"
)

type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
	TransportHTTP  Transport = "http"
)

const (
	defaultKeepAlive = 20 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// ParseTransport accepts stdio, sse and http ("streamable-http" is an alias of http).
func ParseTransport(raw string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stdio":
		return TransportStdio, nil
	case "sse":
		return TransportSSE, nil
	case "http", "streamable-http":
		return TransportHTTP, nil
	}
	return "", fmt.Errorf("unsupported transport %q (want stdio, sse or http)", raw)
}

type Config struct {
	Transport      Transport
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	Streams        StreamLimitConfig
	Sessions       SessionLimitConfig
	MetricsEnabled bool
	KeepAlive      time.Duration
}

// Server exposes a Protocol over the sse or http transport.
type Server struct {
	transport Transport
	protocol  *Protocol
	auth      *AuthContext
	limiter   *ratelimiter.MapLimiter
	streams   *streamLimiter
	sessions  *sessionTable
	metrics   *metrics.Metrics
	logger    *slog.Logger
	keepAlive time.Duration
	exposeMet bool

	handler   http.Handler
	inflight  sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(protocol *Protocol, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if cfg.Transport != TransportSSE && cfg.Transport != TransportHTTP {
		return nil, fmt.Errorf("transport %q is not served over HTTP", cfg.Transport)
	}
	if protocol == nil {
		return nil, errors.New("protocol is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	s := &Server{
		transport: cfg.Transport,
		protocol:  protocol,
		auth:      NewAuthContext(cfg.Auth),
		limiter:   newRateLimiter(cfg.RateLimit),
		streams:   newStreamLimiter(cfg.Streams),
		sessions:  newSessionTable(cfg.Sessions),
		metrics:   m,
		logger:    logger,
		keepAlive: cfg.KeepAlive,
		exposeMet: cfg.MetricsEnabled && m != nil,
		closing:   make(chan struct{}),
	}
	if !s.auth.TokenRequired() {
		logger.Warn("MCP_AUTH_TOKEN is not set or auth is disabled; bearer token check is off", "component", "transport")
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withRequestID)
	r.Use(s.requireHost)
	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(s.rateLimit)
		if s.exposeMet {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		switch s.transport {
		case TransportSSE:
			r.Get("/sse", s.handleSSE)
			r.Post(messagesPath, s.handleMessages)
			r.Post(strings.TrimSuffix(messagesPath, "/"), s.handleMessages)
		case TransportHTTP:
			r.HandleFunc(mcpPath, s.handleMCP)
		}
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"transport": s.transport,
		"sessions":  s.sessions.len(),
	})
}

// Run listens on addr and serves until ctx is done. TLS is used when both files are set.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, certFile, keyFile)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	useTLS := certFile != "" && keyFile != ""
	s.logger.Info("mcp server listening", "component", "transport", "transport", s.transport,
		"addr", ln.Addr().String(), "tls", useTLS)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = httpServer.ServeTLS(ln, certFile, keyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	sweepDone := make(chan struct{})
	defer close(sweepDone)
	go s.sweepSessions(sweepDone)

	select {
	case <-ctx.Done():
		s.stopStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.inflight.Wait()
		return <-errCh
	case err := <-errCh:
		s.stopStreams()
		return err
	}
}

// stopStreams ends every open event stream so Shutdown does not wait on them.
func (s *Server) stopStreams() {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.sessions.closeAll()
	})
}

// sweepSessions drops idle sessions until done is closed.
func (s *Server) sweepSessions(done <-chan struct{}) {
	ticker := time.NewTicker(s.sessions.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if n := s.sessions.sweep(now); n > 0 {
				s.logger.Info("idle sessions dropped", "component", "transport", "count", n)
			}
		}
	}
}
