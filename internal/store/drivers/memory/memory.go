// Package memory is a process-local session store, used by tests and by
// one-shot runs that should not touch disk.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/prepadmin/internal/store"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	session apiclient.Session
}

// New returns a store seeded with s.
func New(s apiclient.Session) *Store {
	return &Store{session: clone(s)}
}

func (m *Store) Load(ctx context.Context) (apiclient.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.session), nil
}

func (m *Store) Save(ctx context.Context, s apiclient.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = clone(s)
	return nil
}

// SetAccessToken returns store.ErrNotFound when there is no session to update.
func (m *Store) SetAccessToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Empty() {
		return store.ErrNotFound
	}
	m.session.AccessToken = token
	return nil
}

func (m *Store) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = apiclient.Session{}
	return nil
}

func (m *Store) ApplyMigrations() error         { return nil }
func (m *Store) Close() error                   { return nil }
func (m *Store) Ping(ctx context.Context) error { return nil }

// clone copies the profile so callers cannot mutate stored state.
func clone(s apiclient.Session) apiclient.Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
