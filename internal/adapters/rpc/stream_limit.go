package rpc

import "sync"

type StreamLimitConfig struct {
	MaxGlobal    int
	MaxPerClient int
}

func DefaultStreamLimitConfig() StreamLimitConfig {
	return StreamLimitConfig{MaxGlobal: 128, MaxPerClient: 8}
}

// streamLimiter caps concurrently open event streams, globally and per client key.
type streamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func newStreamLimiter(cfg StreamLimitConfig) *streamLimiter {
	defaults := DefaultStreamLimitConfig()
	if cfg.MaxGlobal <= 0 {
		cfg.MaxGlobal = defaults.MaxGlobal
	}
	if cfg.MaxPerClient <= 0 {
		cfg.MaxPerClient = defaults.MaxPerClient
	}
	return &streamLimiter{
		maxGlobal:    cfg.MaxGlobal,
		maxPerClient: cfg.MaxPerClient,
		byClient:     make(map[string]int),
	}
}

func (l *streamLimiter) acquire(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[key] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[key]++
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key) })
	}, true
}

func (l *streamLimiter) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global > 0 {
		l.global--
	}
	next := l.byClient[key] - 1
	if next <= 0 {
		delete(l.byClient, key)
		return
	}
	l.byClient[key] = next
}
