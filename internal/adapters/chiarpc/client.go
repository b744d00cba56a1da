package chiarpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dcarrith/chaimcp/internal/bootstrap/chiaconfig"
)

const (
	DefaultHost    = "localhost"
	DefaultTimeout = 10 * time.Second

	// Chia's private CA issues service certificates for this name.
	verifyServerName = "chia.net"

	maxResponseBytes int64 = 32 << 20
)

var ErrUnknownServiceWithoutPort = errors.New("unknown service without explicit port")

// Endpoint identifies one backend service; fixed for the client's lifetime.
type Endpoint struct {
	Service string
	Port    int
	BaseURL string
}

// Observer receives one observation per call. outcome is "ok" or a FailureKind.
type Observer interface {
	ObserveBackend(service, endpoint, outcome string, elapsed time.Duration)
}

type options struct {
	root               string
	port               int
	host               string
	timeout            time.Duration
	insecureSkipVerify bool
	logger             *slog.Logger
	observer           Observer
}

type Option func(*options)

// WithRoot overrides the Chia root directory (default: CHIA_ROOT or ~/.chia/mainnet).
func WithRoot(root string) Option {
	return func(o *options) { o.root = root }
}

// WithPort pins the backend port; it always wins over config.yaml.
func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithInsecureSkipVerify controls backend certificate verification. The default (true)
// trusts any certificate presented by the same-host backend. With false, the backend
// must present a certificate chaining to <root>/config/ssl/ca/private_ca.crt.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) { o.insecureSkipVerify = skip }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

type Client struct {
	endpoint Endpoint
	certs    chiaconfig.CertificateBundle
	http     *http.Client
	logger   *slog.Logger
	observer Observer
}

// New resolves the service port and prepares a mutual-TLS client. Configuration problems
// are reported here; nothing about a call can fail construction.
func New(service string, opts ...Option) (*Client, error) {
	service = strings.TrimSpace(service)
	o := options{
		host:               DefaultHost,
		timeout:            DefaultTimeout,
		insecureSkipVerify: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.root == "" {
		o.root = chiaconfig.ResolveRoot(os.Getenv)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if service == "" {
		return nil, fmt.Errorf("%w: empty service name", ErrUnknownServiceWithoutPort)
	}

	doc, err := chiaconfig.Load(o.root)
	if err != nil {
		return nil, err
	}
	port := o.port
	if port == 0 {
		configured, ok := doc.RPCPort(service)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownServiceWithoutPort, service)
		}
		port = configured
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d for service %s", port, service)
	}

	c := &Client{
		endpoint: Endpoint{
			Service: service,
			Port:    port,
			BaseURL: "https://" + net.JoinHostPort(o.host, strconv.Itoa(port)),
		},
		certs:    chiaconfig.ResolveCertificates(service, o.root),
		logger:   o.logger,
		observer: o.observer,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.TLSClientConfig = c.tlsConfig(o.insecureSkipVerify)
	c.http = &http.Client{Transport: transport, Timeout: o.timeout}
	return c, nil
}

func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

func (c *Client) Certificates() chiaconfig.CertificateBundle {
	return c.certs
}

// Call POSTs body (an empty object when nil) to {base}/{endpoint}. It never returns an
// error value: every outcome, including panics inside the transport, is a Result.
func (c *Client) Call(ctx context.Context, endpoint string, body any) (res Result) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = Fail(FailureTransport, fmt.Sprint(rec))
		}
		c.observe(endpoint, res, time.Since(started))
	}()

	if body == nil {
		body = map[string]any{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Fail(FailureTransport, "encode request: "+err.Error())
	}
	url := c.endpoint.BaseURL + "/" + strings.TrimPrefix(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Fail(FailureTransport, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialFailure(err) {
			return Fail(FailureConnectionRefused, fmt.Sprintf("Connection refused to %s at port %d. Is it running?", c.endpoint.Service, c.endpoint.Port))
		}
		return Fail(FailureTransport, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Fail(FailureHTTPStatus, statusMessage(resp.StatusCode, url))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Fail(FailureTransport, "read response: "+err.Error())
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Fail(FailureDecode, "decode response: "+err.Error())
	}
	return Success(json.RawMessage(bytes.TrimSpace(data)))
}

func (c *Client) observe(endpoint string, res Result, elapsed time.Duration) {
	outcome := "ok"
	if f, failed := res.Failure(); failed {
		outcome = string(f.Kind)
		c.logger.Warn("chia rpc call failed",
			"component", "chiarpc",
			"service", c.endpoint.Service,
			"endpoint", endpoint,
			"failure", outcome,
			"error", f.Message,
			"latency_ms", elapsed.Milliseconds(),
		)
	} else {
		c.logger.Debug("chia rpc call",
			"component", "chiarpc",
			"service", c.endpoint.Service,
			"endpoint", endpoint,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	if c.observer != nil {
		c.observer.ObserveBackend(c.endpoint.Service, endpoint, outcome, elapsed)
	}
}

func (c *Client) tlsConfig(insecureSkipVerify bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Verification is either skipped or done in VerifyConnection against the private CA.
		InsecureSkipVerify: true, // #nosec G402
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			pair, err := tls.LoadX509KeyPair(c.certs.CertPath, c.certs.KeyPath)
			if err != nil {
				return nil, fmt.Errorf("load client certificate for %s: %w", c.endpoint.Service, err)
			}
			return &pair, nil
		},
	}
	if !insecureSkipVerify {
		caPath := c.certs.CAPath
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			return verifyAgainstCA(caPath, cs)
		}
	}
	return cfg
}

func verifyAgainstCA(caPath string, cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("backend presented no certificate")
	}
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("read backend CA: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return fmt.Errorf("no certificates found in %s", caPath)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range cs.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err = cs.PeerCertificates[0].Verify(x509.VerifyOptions{
		DNSName:       verifyServerName,
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}

func isDialFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func statusMessage(code int, url string) string {
	class := "Server"
	if code >= 400 && code < 500 {
		class = "Client"
	}
	return fmt.Sprintf("%d %s Error: %s for url: %s", code, class, http.StatusText(code), url)
}
