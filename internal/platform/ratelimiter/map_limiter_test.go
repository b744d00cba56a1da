package ratelimiter

import (
	"strconv"
	"testing"
	"time"
)

func TestNewRejectsInvalidArgs(t *testing.T) {
	if New(0, 1, 0) != nil || New(1, 0, 0) != nil {
		t.Fatal("expected nil limiter for non-positive args")
	}
	var l *MapLimiter
	if !l.Allow("127.0.0.1", time.Now()) {
		t.Fatal("expected nil limiter to allow")
	}
}

func TestAllowIsPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("10.0.0.1", now) || !l.Allow("10.0.0.1", now) {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("10.0.0.1", now) {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("10.0.0.2", now) {
		t.Fatal("expected other key to have its own bucket")
	}
	if !l.Allow("10.0.0.1", now.Add(time.Second)) {
		t.Fatal("expected refill after one second")
	}
}

func TestAllowOrRetryReportsDelay(t *testing.T) {
	l := New(2, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if ok, _ := l.AllowOrRetry("k", now); !ok {
		t.Fatal("expected first request allowed")
	}
	ok, retry := l.AllowOrRetry("k", now)
	if ok {
		t.Fatal("expected second request limited")
	}
	if retry != 500*time.Millisecond {
		t.Fatalf("expected 500ms retry, got %v", retry)
	}
	if ok, _ := l.AllowOrRetry("k", now.Add(500*time.Millisecond)); !ok {
		t.Fatal("expected cancelled reservation to leave the token available")
	}
}

func TestEmptyKeyIsNotLimited(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !l.Allow("  ", now) {
			t.Fatal("expected empty key to bypass limiting")
		}
	}
}

func TestIdleKeysAreSwept(t *testing.T) {
	l := New(100, 100, time.Second)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < sweepEvery-1; i++ {
		l.Allow("old-"+strconv.Itoa(i), start)
	}
	l.Allow("fresh", start.Add(time.Minute))
	if got := l.Len(); got != 1 {
		t.Fatalf("expected only fresh key after sweep, got %d", got)
	}
}
