package gateway

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dcarrith/chaimcp/internal/adapters/chiarpc"
	"github.com/dcarrith/chaimcp/internal/adapters/rpc"
	"github.com/dcarrith/chaimcp/internal/bootstrap/chiaconfig"
	"github.com/dcarrith/chaimcp/internal/domains/operations"
	"github.com/dcarrith/chaimcp/internal/platform/privacylog"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000
)

// Settings is the immutable process configuration, read once at startup.
type Settings struct {
	Transport rpc.Transport
	Host      string
	Port      int

	SSLKeyFile  string
	SSLCertFile string

	Auth      rpc.AuthConfig
	Disabled  operations.DisabledSet
	RateLimit rpc.RateLimitConfig
	Streams   rpc.StreamLimitConfig
	Sessions  rpc.SessionLimitConfig

	MetricsEnabled bool
	LogLevel       string
	LogFormat      string

	ChiaRoot         string
	ChiaRPCHost      string
	ChiaRPCTimeout   time.Duration
	VerifyBackendTLS bool
}

// LoadSettings reads the MCP_*, SSL_* and CHIA_* variables through lookup (os.Getenv in
// production). Every invalid value is reported in the returned error.
func LoadSettings(lookup func(string) string) (Settings, error) {
	env := &envReader{lookup: lookup}
	rateDefaults := rpc.DefaultRateLimitConfig()
	streamDefaults := rpc.DefaultStreamLimitConfig()
	sessionDefaults := rpc.DefaultSessionLimitConfig()

	transport, err := rpc.ParseTransport(env.str("MCP_TRANSPORT", ""))
	if err != nil {
		env.fail(err)
	}
	s := Settings{
		Transport:   transport,
		Host:        env.str("MCP_HOST", DefaultHost),
		Port:        env.boundedInt("MCP_PORT", DefaultPort, 1, 65535),
		SSLKeyFile:  env.str("SSL_KEY_FILE", ""),
		SSLCertFile: env.str("SSL_CERT_FILE", ""),
		Auth: rpc.AuthConfig{
			Token:          env.str("MCP_AUTH_TOKEN", ""),
			Enabled:        env.boolean("MCP_AUTH_ENABLED", true),
			AllowedHosts:   env.csv("MCP_ALLOWED_HOSTS"),
			AllowedOrigins: env.csv("MCP_ALLOWED_ORIGINS"),
		},
		Disabled: operations.ParseDisabled(env.str("MCP_DISABLED_TOOLS", "")),
		RateLimit: rpc.RateLimitConfig{
			Enabled: env.boolean("MCP_RATE_LIMIT_ENABLED", rateDefaults.Enabled),
			RPS:     env.positiveFloat("MCP_RATE_LIMIT_RPS", rateDefaults.RPS),
			Burst:   env.boundedInt("MCP_RATE_LIMIT_BURST", rateDefaults.Burst, 1, 100_000),
		},
		Streams: rpc.StreamLimitConfig{
			MaxGlobal:    env.boundedInt("MCP_STREAM_MAX_GLOBAL", streamDefaults.MaxGlobal, 1, 100_000),
			MaxPerClient: env.boundedInt("MCP_STREAM_MAX_PER_CLIENT", streamDefaults.MaxPerClient, 1, 10_000),
		},
		Sessions: rpc.SessionLimitConfig{
			Max:     env.boundedInt("MCP_SESSION_MAX", sessionDefaults.Max, 1, 1_000_000),
			IdleTTL: env.duration("MCP_SESSION_IDLE_TTL", sessionDefaults.IdleTTL),
		},
		MetricsEnabled:   env.boolean("MCP_METRICS_ENABLED", true),
		LogLevel:         env.str("MCP_LOG_LEVEL", "info"),
		LogFormat:        env.str("MCP_LOG_FORMAT", "json"),
		ChiaRoot:         chiaconfig.ResolveRoot(lookup),
		ChiaRPCHost:      env.str("CHIA_RPC_HOST", chiarpc.DefaultHost),
		ChiaRPCTimeout:   env.duration("CHIA_RPC_TIMEOUT", chiarpc.DefaultTimeout),
		VerifyBackendTLS: env.boolean("CHIA_VERIFY_BACKEND_TLS", false),
	}
	if _, err := privacylog.ParseLevel(s.LogLevel); err != nil {
		env.fail(fmt.Errorf("MCP_LOG_LEVEL: %w", err))
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		env.fail(fmt.Errorf("MCP_LOG_FORMAT: expected text or json, got %q", s.LogFormat))
	}
	if err := env.err(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TLSFiles returns the key pair to serve with, or ok=false when either file is unset or
// missing on disk.
func (s Settings) TLSFiles() (certFile, keyFile string, ok bool) {
	if s.SSLCertFile == "" || s.SSLKeyFile == "" {
		return "", "", false
	}
	if !fileExists(s.SSLCertFile) || !fileExists(s.SSLKeyFile) {
		return "", "", false
	}
	return s.SSLCertFile, s.SSLKeyFile, true
}

// ClientOptions configures every backend client built for this process.
func (s Settings) ClientOptions() []chiarpc.Option {
	return []chiarpc.Option{
		chiarpc.WithRoot(s.ChiaRoot),
		chiarpc.WithHost(s.ChiaRPCHost),
		chiarpc.WithTimeout(s.ChiaRPCTimeout),
		chiarpc.WithInsecureSkipVerify(!s.VerifyBackendTLS),
	}
}

func (s Settings) ServerConfig() rpc.Config {
	return rpc.Config{
		Transport:      s.Transport,
		Auth:           s.Auth,
		RateLimit:      s.RateLimit,
		Streams:        s.Streams,
		Sessions:       s.Sessions,
		MetricsEnabled: s.MetricsEnabled,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
