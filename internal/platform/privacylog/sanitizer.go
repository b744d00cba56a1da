package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

const (
	redactedValue = "[REDACTED]"
	maxErrorLen   = 512
)

// rule is what happens to an attribute, chosen by its key.
type rule int

const (
	ruleKeep rule = iota
	ruleRedact
	ruleFingerprint
	ruleURL
	ruleErrorText
)

// keyRules covers the gateway's own attribute names. request_id, endpoint and operation
// stay readable: they are echoed to callers or used as metric labels anyway.
var keyRules = map[string]rule{
	"session_id":  ruleFingerprint,
	"wallet_id":   ruleFingerprint,
	"fingerprint": ruleFingerprint,
	"store_id":    ruleFingerprint,
	"launcher_id": ruleFingerprint,

	// SSE message URLs carry the session id in the query.
	"backend": ruleURL,
	"target":  ruleURL,
	"url":     ruleURL,

	"error": ruleErrorText,
}

var secretKeyParts = []string{
	"token", "secret", "password", "passphrase", "authorization",
	"mnemonic", "private_key", "seed",
}

var bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)

var bootNonce = rand.Text()

// SanitizingHandler rewrites attributes before they reach the wrapped handler.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(sanitizeAttrs(attrs))}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		return slog.Attr{Key: key, Value: slog.GroupValue(sanitizeAttrs(value.Group())...)}
	}
	switch classify(key) {
	case ruleRedact:
		return slog.String(key, redactedValue)
	case ruleFingerprint:
		return slog.String(fingerprintKey(key), FingerprintID(valueString(value)))
	case ruleURL:
		return slog.String(key, stripURL(valueString(value)))
	case ruleErrorText:
		return slog.String(key, scrubErrorText(valueString(value)))
	default:
		return slog.Attr{Key: key, Value: value}
	}
}

// FingerprintID hashes value with a per-process nonce so ids correlate within one run only.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func classify(key string) rule {
	lower := strings.ToLower(key)
	if r, ok := keyRules[lower]; ok {
		return r
	}
	for _, part := range secretKeyParts {
		if strings.Contains(lower, part) {
			return ruleRedact
		}
	}
	return ruleKeep
}

func sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return out
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

// stripURL drops query, fragment and userinfo.
func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

// scrubErrorText removes bearer credentials and caps the length; backend failures can
// carry whole response bodies.
func scrubErrorText(text string) string {
	text = bearerPattern.ReplaceAllString(text, "Bearer "+redactedValue)
	if len(text) > maxErrorLen {
		text = text[:maxErrorLen] + "...(truncated)"
	}
	return text
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}
