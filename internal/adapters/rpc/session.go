package rpc

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	sessionHeader     = "Mcp-Session-Id"
	sessionQueueDepth = 64
)

var errSessionTableFull = errors.New("too many open sessions")

type SessionLimitConfig struct {
	Max     int
	IdleTTL time.Duration
}

func DefaultSessionLimitConfig() SessionLimitConfig {
	return SessionLimitConfig{Max: 1024, IdleTTL: 30 * time.Minute}
}

// session is one MCP client conversation on a network transport. Responses for the SSE
// transport are queued on outbox and written by the stream that owns the session.
type session struct {
	id     string
	outbox chan []byte

	done      chan struct{}
	closeOnce sync.Once

	lastSeen atomic.Int64
	streams  atomic.Int32
}

func newSession() *session {
	s := &session{
		id:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		outbox: make(chan []byte, sessionQueueDepth),
		done:   make(chan struct{}),
	}
	s.touch(time.Now())
	return s
}

func (s *session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// attach marks an open stream; attached sessions are never swept as idle.
func (s *session) attach() func() {
	s.streams.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.streams.Add(-1)
			s.touch(time.Now())
		})
	}
}

func (s *session) idle(now time.Time, ttl time.Duration) bool {
	return s.streams.Load() == 0 && now.Sub(time.Unix(0, s.lastSeen.Load())) > ttl
}

// send queues msg, or reports false once the session is closed.
func (s *session) send(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// sessionTable holds at most max sessions. Sessions untouched for idleTTL without an open
// stream are dropped by sweep, and by add when the table is full.
type sessionTable struct {
	max     int
	idleTTL time.Duration

	mu   sync.RWMutex
	byID map[string]*session
}

func newSessionTable(cfg SessionLimitConfig) *sessionTable {
	defaults := DefaultSessionLimitConfig()
	if cfg.Max <= 0 {
		cfg.Max = defaults.Max
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaults.IdleTTL
	}
	return &sessionTable{max: cfg.Max, idleTTL: cfg.IdleTTL, byID: make(map[string]*session)}
}

func (t *sessionTable) add(s *session) error {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.byID) >= t.max {
		t.sweepLocked(now)
	}
	if len(t.byID) >= t.max {
		return errSessionTableFull
	}
	s.touch(now)
	t.byID[s.id] = s
	return nil
}

// get returns the session and refreshes its idle clock, or nil when id is unknown.
func (t *sessionTable) get(id string) *session {
	t.mu.RLock()
	s := t.byID[id]
	t.mu.RUnlock()
	if s != nil {
		s.touch(time.Now())
	}
	return s
}

// remove closes and forgets the session; it returns nil when id is unknown.
func (t *sessionTable) remove(id string) *session {
	t.mu.Lock()
	s, ok := t.byID[id]
	delete(t.byID, id)
	t.mu.Unlock()
	if ok {
		s.close()
	}
	return s
}

// sweep drops idle sessions and returns how many were removed.
func (t *sessionTable) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(now)
}

func (t *sessionTable) sweepLocked(now time.Time) int {
	removed := 0
	for id, s := range t.byID {
		if s.idle(now, t.idleTTL) {
			s.close()
			delete(t.byID, id)
			removed++
		}
	}
	return removed
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

func (t *sessionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.byID {
		s.close()
		delete(t.byID, id)
	}
}
