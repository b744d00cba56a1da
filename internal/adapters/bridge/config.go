package bridge

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultListenAddr = "localhost:8001"
	DefaultTargetURL  = "https://localhost:4443/sse"

	// streamPathMarker is the target path segment a POST replaces with its own path.
	streamPathMarker = "/sse"
)

// Config is read once at startup.
type Config struct {
	ListenAddr string
	TargetURL  string
	// AuthToken is added as a bearer token to requests that carry no Authorization header.
	AuthToken string
	// InsecureSkipVerify disables backend certificate checks. On by default because the
	// backend is usually the gateway itself on the same host with a self-signed certificate.
	InsecureSkipVerify bool
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:         DefaultListenAddr,
		TargetURL:          DefaultTargetURL,
		InsecureSkipVerify: true,
	}
}

// LoadConfig reads BRIDGE_LISTEN_ADDR, BRIDGE_TARGET_URL, BRIDGE_AUTH_TOKEN and BRIDGE_VERIFY_TLS.
func LoadConfig(lookup func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if v := strings.TrimSpace(lookup("BRIDGE_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(lookup("BRIDGE_TARGET_URL")); v != "" {
		cfg.TargetURL = v
	}
	cfg.AuthToken = strings.TrimSpace(lookup("BRIDGE_AUTH_TOKEN"))
	if v := strings.TrimSpace(lookup("BRIDGE_VERIFY_TLS")); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("BRIDGE_VERIFY_TLS: expected a boolean, got %q", v)
		}
		cfg.InsecureSkipVerify = !verify
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("bridge listen address is required")
	}
	u, err := url.Parse(c.TargetURL)
	if err != nil {
		return fmt.Errorf("bridge target url: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("bridge target url must be absolute http(s), got %q", c.TargetURL)
	}
	return nil
}

// HasStreamPath reports whether the target's path carries the /sse segment that POST
// paths are swapped into. Host and query are never searched.
func (c Config) HasStreamPath() bool {
	u, err := url.Parse(c.TargetURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, streamPathMarker)
}
