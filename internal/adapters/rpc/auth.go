package rpc

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	DefaultAllowedHosts   = []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}
	DefaultAllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*", "http://[::1]:*", "https://localhost:*"}
)

// AuthConfig is read once at startup. Extra hosts and origins extend the defaults.
type AuthConfig struct {
	Token          string
	Enabled        bool
	AllowedHosts   []string
	AllowedOrigins []string
}

// AuthContext gates network transports. It is immutable after construction.
type AuthContext struct {
	expected string
	enabled  bool
	hosts    []string
	origins  []string
}

func NewAuthContext(cfg AuthConfig) *AuthContext {
	return &AuthContext{
		expected: cfg.Token,
		enabled:  cfg.Enabled,
		hosts:    normalizePatterns(append(append([]string{}, DefaultAllowedHosts...), cfg.AllowedHosts...)),
		origins:  normalizePatterns(append(append([]string{}, DefaultAllowedOrigins...), cfg.AllowedOrigins...)),
	}
}

// TokenRequired is true only when a token is configured and the gate is enabled.
func (a *AuthContext) TokenRequired() bool {
	return a != nil && a.enabled && a.expected != ""
}

// Verify is an exact, constant-time match; it always passes when no token is required.
func (a *AuthContext) Verify(token string) bool {
	if !a.TokenRequired() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.expected)) == 1
}

func (a *AuthContext) HostAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, pattern := range a.hosts {
		if matchHostPattern(pattern, host) {
			return true
		}
	}
	return false
}

func (a *AuthContext) OriginAllowed(origin string) bool {
	origin = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "/"))
	if origin == "" {
		return false
	}
	for _, pattern := range a.origins {
		if matchOriginPattern(pattern, origin) {
			return true
		}
	}
	return false
}

func normalizePatterns(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(p), "/"))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// matchHostPattern supports "*", "host:*" (any or no port) and exact "host" / "host:port".
func matchHostPattern(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if base, ok := strings.CutSuffix(pattern, ":*"); ok {
		name, _, err := net.SplitHostPort(host)
		if err != nil {
			name = host
		}
		return trimBrackets(name) == trimBrackets(base)
	}
	return host == pattern
}

func matchOriginPattern(pattern, origin string) bool {
	if pattern == "*" {
		return true
	}
	if base, ok := strings.CutSuffix(pattern, ":*"); ok {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		name := u.Hostname()
		if strings.Contains(name, ":") {
			name = "[" + name + "]"
		}
		return u.Scheme+"://"+name == base
	}
	return origin == pattern
}

func trimBrackets(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}

func extractBearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// requireHost runs first on every route: 421 for a Host outside the allow-list, 403 for a
// disallowed Origin. Allowed origins get CORS headers and preflights end here.
func (s *Server) requireHost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.HostAllowed(r.Host) {
			s.metrics.AuthRejected("host")
			s.logger.Warn("request rejected", "component", "transport", "reason", "host", "host", r.Host)
			http.Error(w, "Misdirected Request: invalid Host header", http.StatusMisdirectedRequest)
			return
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !s.auth.OriginAllowed(origin) {
				s.metrics.AuthRejected("origin")
				s.logger.Warn("request rejected", "component", "transport", "reason", "origin", "origin", origin)
				http.Error(w, "Forbidden: invalid Origin header", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
			w.Header().Set("Access-Control-Expose-Headers", sessionHeader)
		}
		w.Header().Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Verify(extractBearerToken(r)) {
			s.metrics.AuthRejected("token")
			s.logger.Warn("request rejected", "component", "transport", "reason", "token", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="chaimcp"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
