// Package store persists the admin session between CLI invocations.
package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. Concrete drivers (memory, sqlite)
// implement it; the API client only sees the embedded SessionStore.
type Store interface {
	apiclient.SessionStore

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing storage is still reachable.
	Ping(ctx context.Context) error
}
