package session

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Store using an in-memory map with TTL-based expiration.
// Sessions are copied on the way in and out, so callers never share the
// timestamps Touch rewrites.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates a new in-memory session store. A nil logger
// discards.
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// TTL returns the idle lifetime applied by Touch.
func (s *MemoryStore) TTL() time.Duration {
	return s.ttl
}

// Create persists a new session. Zero timestamps are filled in.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActiveAt.IsZero() {
		sess.LastActiveAt = now
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = clone(sess)
	return nil
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if sess.Expired(time.Now()) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for expired
	}
	return clone(sess), nil
}

// Touch updates LastActiveAt and extends ExpiresAt by the store's TTL.
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}

	now := time.Now()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	return nil
}

// Delete removes a session and closes its backend.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return closeBackend(sess)
}

// List returns all non-expired sessions, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			result = append(result, clone(sess))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Cleanup removes expired sessions.
func (s *MemoryStore) Cleanup(_ context.Context) error {
	s.mu.Lock()
	now := time.Now()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		if err := closeBackend(sess); err != nil {
			s.logger.Warn("Failed to close expired session backend", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		s.logger.Debug("Expired sessions removed", zap.Int("count", len(expired)))
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Cleanup(ctx)
			}
		}
	}()
}

// Close stops the cleanup goroutine, waits for it to exit, and closes every
// remaining backend. It is safe to call Close even if StartCleanupRoutine was
// never called.
func (s *MemoryStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}

	s.mu.Lock()
	remaining := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		remaining = append(remaining, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var firstErr error
	for _, sess := range remaining {
		if err := closeBackend(sess); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func clone(sess *Session) *Session {
	cp := *sess
	cp.ContainerFilter = append([]string(nil), sess.ContainerFilter...)
	return &cp
}

func closeBackend(sess *Session) error {
	if c, ok := sess.Backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
