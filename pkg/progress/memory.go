package progress

import (
	"context"
	"maps"
	"sync"
	"time"

	"price-compare/pkg/models"
)

type memorySession struct {
	entries   Session
	expiresAt time.Time
}

// MemoryLedger keeps sessions in process memory. Expired sessions are
// dropped lazily on access and by Sweep.
type MemoryLedger struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	maxAge   time.Duration
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		sessions: make(map[string]*memorySession),
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
}

func (l *MemoryLedger) Put(_ context.Context, sessionID string, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		s = &memorySession{entries: make(Session)}
		l.sessions[sessionID] = s
	}
	s.entries[e.Platform] = e
	if exp := l.now().Add(l.maxAge); s.expiresAt.Before(exp) {
		s.expiresAt = exp
	}
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, sessionID string) (Session, error) {
	l.mu.RLock()
	s, ok := l.sessions[sessionID]
	var out Session
	expired := false
	if ok {
		expired = !l.now().Before(s.expiresAt)
		if !expired {
			out = maps.Clone(s.entries)
		}
	}
	l.mu.RUnlock()

	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if expired {
		l.mu.Lock()
		if cur, ok := l.sessions[sessionID]; ok && !l.now().Before(cur.expiresAt) {
			delete(l.sessions, sessionID)
		}
		l.mu.Unlock()
		return nil, models.ErrSessionNotFound
	}
	return out, nil
}

func (l *MemoryLedger) Release(_ context.Context, sessionID string, grace time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if exp := l.now().Add(grace); exp.Before(s.expiresAt) {
		s.expiresAt = exp
	}
	return nil
}

// Sweep removes every expired session and returns how many were removed.
func (l *MemoryLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for id, s := range l.sessions {
		if !now.Before(s.expiresAt) {
			delete(l.sessions, id)
			n++
		}
	}
	return n
}
