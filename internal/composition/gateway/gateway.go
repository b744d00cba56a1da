package gateway

import (
	"context"
	"io"
	"log/slog"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
	"github.com/dcarrith/chaimcp/internal/adapters/rpc"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/platform/metrics"
)

const ServerName = "chaimcp"

// IO carries the process streams; stdout is reserved for the stdio transport.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
}

// Gateway is the wired process: registry, protocol and, for network transports, the server.
type Gateway struct {
	settings Settings
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *operations.Registry
	protocol *rpc.Protocol
	server   *rpc.Server
}

// New wires the gateway without starting any listener.
func New(settings Settings, version string, logger *slog.Logger) (*Gateway, error) {
	return newGateway(settings, version, logger, nil)
}

func newGateway(settings Settings, version string, logger *slog.Logger, dispatcher operations.Dispatcher) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New()
	if dispatcher == nil {
		opts := append(settings.ClientOptions(),
			chiarpc.WithLogger(logger),
			chiarpc.WithObserver(m),
		)
		dispatcher = operations.NewClientPool(opts...)
	}
	registry, err := operations.Build(operations.Catalog(), settings.Disabled, dispatcher, logger)
	if err != nil {
		return nil, err
	}
	protocol := rpc.NewProtocol(registry, rpc.ServerInfo{Name: ServerName, Version: version}, logger, m)
	g := &Gateway{
		settings: settings,
		logger:   logger,
		metrics:  m,
		registry: registry,
		protocol: protocol,
	}
	if settings.Transport != rpc.TransportStdio {
		server, err := rpc.NewServer(protocol, settings.ServerConfig(), logger, m)
		if err != nil {
			return nil, err
		}
		g.server = server
	}
	return g, nil
}

func (g *Gateway) Registry() *operations.Registry {
	return g.registry
}

// Run serves the configured transport until ctx is done or, for stdio, stdin closes.
func (g *Gateway) Run(ctx context.Context, streams IO) error {
	g.logger.Info("gateway starting", "component", "gateway", "transport", g.settings.Transport,
		"operations", len(g.registry.List()), "chia_root", g.settings.ChiaRoot)
	if g.server == nil {
		return rpc.ServeStdio(ctx, g.protocol, streams.Stdin, streams.Stdout)
	}
	certFile, keyFile, useTLS := g.settings.TLSFiles()
	if !useTLS {
		g.logger.Warn("SSL_KEY_FILE/SSL_CERT_FILE not found; serving plaintext HTTP", "component", "gateway",
			"key_file", g.settings.SSLKeyFile, "cert_file", g.settings.SSLCertFile)
	}
	return g.server.Run(ctx, g.settings.ListenAddr(), certFile, keyFile)
}

// Run wires a gateway from settings and serves it.
func Run(ctx context.Context, settings Settings, version string, logger *slog.Logger, streams IO) error {
	g, err := New(settings, version, logger)
	if err != nil {
		return err
	}
	return g.Run(ctx, streams)
}
