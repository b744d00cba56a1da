package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	relayChunkSize  = 8 << 10
	shutdownTimeout = 5 * time.Second
)

// droppedResponseHeaders are never copied from the backend; the bridge frames the body itself
// and its transport has already decoded any compression.
var droppedResponseHeaders = map[string]struct{}{
	"Transfer-Encoding": {},
	"Content-Encoding":  {},
	"Connection":        {},
}

// Proxy forwards plaintext GET and POST requests to a TLS backend and streams the reply back.
type Proxy struct {
	cfg     Config
	target  *url.URL
	client  *http.Client
	logger  *slog.Logger
	handler http.Handler
}

func NewProxy(cfg Config, logger *slog.Logger) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	target, _ := url.Parse(cfg.TargetURL)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- explicit BRIDGE_VERIFY_TLS opt-out
	}
	p := &Proxy{
		cfg:    cfg,
		target: target,
		// No client timeout: event streams stay open for as long as the backend keeps them.
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("backend certificate verification is disabled", "component", "bridge", "target", cfg.TargetURL)
	}
	if !cfg.HasStreamPath() {
		logger.Warn("target url has no /sse segment; POST paths are forwarded unchanged to the target host",
			"component", "bridge", "target", cfg.TargetURL)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/*", p.forward)
	r.Post("/*", p.forward)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Implemented", http.StatusNotImplemented)
	})
	p.handler = r
	return p, nil
}

func (p *Proxy) Handler() http.Handler {
	return p.handler
}

// backendURL maps an inbound request onto the backend: GET always hits the target itself,
// POST swaps the /sse segment of the target path for the inbound path and query.
func (p *Proxy) backendURL(r *http.Request) string {
	if r.Method == http.MethodGet {
		return p.cfg.TargetURL
	}
	inbound := r.URL.RequestURI()
	base := p.target.Scheme + "://" + p.target.Host
	if strings.Contains(p.target.Path, streamPathMarker) {
		return base + strings.ReplaceAll(p.target.Path, streamPathMarker, inbound)
	}
	return base + inbound
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	dest := p.backendURL(r)
	p.logger.Info("proxying request", "component", "bridge", "request_id", requestID,
		"method", r.Method, "path", r.URL.Path, "backend", dest)

	var body io.Reader = http.NoBody
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, dest, body)
	if err != nil {
		p.badGateway(w, requestID, err)
		return
	}
	out.Header = r.Header.Clone()
	// Let the transport negotiate and decode compression itself.
	out.Header.Del("Accept-Encoding")
	out.Host = r.Host
	if body != http.NoBody {
		out.ContentLength = r.ContentLength
	}
	if p.cfg.AuthToken != "" && out.Header.Get("Authorization") == "" {
		out.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}

	resp, err := p.client.Do(out)
	if err != nil {
		p.badGateway(w, requestID, err)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if _, drop := droppedResponseHeaders[http.CanonicalHeaderKey(key)]; drop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if err := relay(w, resp.Body); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
			return
		}
		p.logger.Warn("stream aborted", "component", "bridge", "request_id", requestID, "error", err)
		panic(http.ErrAbortHandler)
	}
}

// relay copies src to w in bounded reads, flushing after every write so long-lived
// streams reach the caller as they arrive.
func relay(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (p *Proxy) badGateway(w http.ResponseWriter, requestID string, err error) {
	p.logger.Error("forwarding failed", "component", "bridge", "request_id", requestID, "error", err)
	w.Header().Set("Connection", "close")
	http.Error(w, fmt.Sprintf("Bad Gateway: %v", err), http.StatusBadGateway)
}

// Run listens on the configured address until ctx is done.
func (p *Proxy) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return p.Serve(ctx, ln)
}

func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(p.logger.Handler(), slog.LevelWarn),
	}
	p.logger.Info("bridge listening", "component", "bridge", "addr", ln.Addr().String(), "target", p.cfg.TargetURL)

	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Open streams never finish on their own.
			_ = srv.Close()
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
