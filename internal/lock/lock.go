package lock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"housekeeping/internal/apperr"
)

const DefaultTimeout = 2 * time.Second

// Manager hands out exclusive per-entity locks. Keys look like "room:<id>".
// Acquisition is bounded by the manager timeout; running out of time
// yields an apperr Busy error so the caller can retry with fresh state.
type Manager struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout, entries: map[string]*entry{}}
}

func Key(kind, id string) string { return kind + ":" + id }

// Acquire blocks until the lock for key is held, the manager timeout elapses,
// or ctx is done. The returned release func is safe to call more than once.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	e := m.ref(key)

	acqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := e.sem.Acquire(acqCtx, 1); err != nil {
		m.unref(key, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Busy("%s is held by another command", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.unref(key, e)
		})
	}, nil
}

// Do runs fn while holding the lock for key.
func (m *Manager) Do(ctx context.Context, key string, fn func() error) error {
	release, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
