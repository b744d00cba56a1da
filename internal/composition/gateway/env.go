package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// envReader parses environment values and keeps every parse error for one report.
type envReader struct {
	lookup func(string) string
	errs   []error
}

func (e *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(e.lookup(key)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) csv(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) boolean(key string, fallback bool) bool {
	switch strings.ToLower(e.str(key, "")) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		e.errs = append(e.errs, fmt.Errorf("%s: expected a boolean, got %q", key, e.lookup(key)))
		return fallback
	}
}

func (e *envReader) boundedInt(key string, fallback, min, max int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		e.errs = append(e.errs, fmt.Errorf("%s: expected an integer in [%d, %d], got %q", key, min, max, raw))
		return fallback
	}
	return v
}

func (e *envReader) positiveFloat(key string, fallback float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: expected a positive number, got %q", key, raw))
		return fallback
	}
	return v
}

// duration accepts Go durations ("15s") or a bare number of seconds.
func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: expected a positive duration, got %q", key, raw))
		return fallback
	}
	return d
}

func (e *envReader) fail(err error) {
	e.errs = append(e.errs, err)
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
