package memory

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/app"
)

// SessionDirectory is an in-process implementation of app.SessionDirectory
// with TTL semantics matching the Redis-backed one: entries expire and a
// read past expiry is a miss, not an error.
type SessionDirectory struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]sessionEntry
}

type sessionEntry struct {
	session   app.Session
	expiresAt time.Time
}

var _ app.SessionDirectory = (*SessionDirectory)(nil)

func NewSessionDirectory(ttl time.Duration) *SessionDirectory {
	return NewSessionDirectoryWithClock(ttl, time.Now)
}

// NewSessionDirectoryWithClock allows deterministic expiry in tests.
func NewSessionDirectoryWithClock(ttl time.Duration, now func() time.Time) *SessionDirectory {
	return &SessionDirectory{
		ttl:     ttl,
		clock:   now,
		entries: make(map[string]sessionEntry),
	}
}

func (d *SessionDirectory) Put(_ context.Context, connID string, session app.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[connID] = sessionEntry{session: session, expiresAt: d.clock().Add(d.ttl)}
	return nil
}

func (d *SessionDirectory) Get(_ context.Context, connID string) (app.Session, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[connID]
	if !ok || !entry.expiresAt.After(d.clock()) {
		delete(d.entries, connID)
		return app.Session{}, false, nil
	}
	return entry.session, true, nil
}

func (d *SessionDirectory) Touch(_ context.Context, connID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[connID]
	if !ok || !entry.expiresAt.After(d.clock()) {
		delete(d.entries, connID)
		return false, nil
	}
	entry.expiresAt = d.clock().Add(d.ttl)
	d.entries[connID] = entry
	return true, nil
}

func (d *SessionDirectory) Delete(_ context.Context, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, connID)
	return nil
}
