package tokenstore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	subject string
	expires time.Time
}

// Memory is a process-local Store. Expired entries are dropped lazily on
// lookup and on every save.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Save records id for subject until ttl elapses.
func (m *Memory) Save(_ context.Context, id, subject string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[id] = entry{subject: subject, expires: now.Add(ttl)}
	return nil
}

// Lookup returns the subject of a live id.
func (m *Memory) Lookup(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(id)
}

// Consume returns the subject of a live id and forgets it.
func (m *Memory) Consume(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subject, err := m.liveLocked(id)
	delete(m.entries, id)
	return subject, err
}

func (m *Memory) liveLocked(id string) (string, error) {
	e, ok := m.entries[id]
	if !ok {
		return "", ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return "", ErrNotFound
	}
	return e.subject, nil
}

// Revoke forgets id. Unknown ids are ignored.
func (m *Memory) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
