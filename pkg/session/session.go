// Package session keeps the connections an API client has opened.
//
// A Session binds an opaque id to a storage backend and the container filter
// chosen at connect time. Handlers receive the Store explicitly; there is no
// package-level registry.
package session

import (
	"context"
	"time"

	"github.com/3leaps/lakemap/pkg/backend"
)

// Session is one open connection.
type Session struct {
	// ID is the opaque token clients pass back on every request.
	ID string

	// Name is the client-supplied label.
	Name string

	// Target describes the account the backend was opened on.
	Target backend.Target

	// ContainerFilter limits which containers are visible. Empty shows all.
	ContainerFilter []string

	// Backend serves listings for this connection.
	Backend backend.StorageBackend

	// Pinned sessions come from configuration and never expire.
	Pinned bool

	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
}

// Expired reports whether s is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.Pinned && now.After(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID. Returns nil, nil if not found or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
	Touch(ctx context.Context, id string) error

	// Delete removes a session and closes its backend.
	Delete(ctx context.Context, id string) error

	// List returns all non-expired sessions.
	List(ctx context.Context) ([]*Session, error)

	// Cleanup removes expired sessions and closes their backends.
	Cleanup(ctx context.Context) error

	// Close stops background routines and closes every backend.
	Close() error
}
