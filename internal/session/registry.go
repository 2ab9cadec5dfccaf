package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Factory builds the manager of one session key
type Factory func(key string) (*Manager, error)

type entry struct {
	once     sync.Once
	m        *Manager
	err      error
	lastSeen time.Time
}

// Registry hands out one Manager per session key. A manager is created on
// first use and restored once right after creation.
type Registry struct {
	factory Factory

	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Get returns the manager for key, creating and restoring it if needed.
// Restoration failures are left in the manager's state, not returned.
func (r *Registry) Get(ctx context.Context, key string) (*Manager, error) {
	if key == "" {
		return nil, fmt.Errorf("empty session key")
	}

	r.mu.Lock()
	e, ok := r.sessions[key]
	if !ok {
		e = &entry{}
		r.sessions[key] = e
	}
	e.lastSeen = r.now()
	r.mu.Unlock()

	e.once.Do(func() {
		e.m, e.err = r.factory(key)
		if e.err != nil {
			return
		}
		e.m.RestoreSession(ctx)
	})

	if e.err != nil {
		r.mu.Lock()
		if r.sessions[key] == e {
			delete(r.sessions, key)
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create session %s: %w", key, e.err)
	}
	return e.m, nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Forget drops the manager of key. The next Get creates a new one and
// restores it from local storage.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Cleanup drops managers not used for longer than maxIdle and returns how
// many were dropped. Session data survives in local storage.
func (r *Registry) Cleanup(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for key, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until stop is closed
func (r *Registry) StartCleanup(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Cleanup(maxIdle)
			}
		}
	}()
}
