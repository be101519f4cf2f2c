// Package memory is an in-process BlacklistStore and ReplayStore for tests and
// local development. Entries are lost on restart; the engine refuses it in
// staging and production.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store keeps blacklist and replay state in mutex-guarded maps.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
	users  map[string]struct{}
	replay map[string]time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tokens: make(map[string]struct{}),
		users:  make(map[string]struct{}),
		replay: make(map[string]time.Time),
	}
}

func (s *Store) AddToken(_ context.Context, key string) error {
	s.mu.Lock()
	s.tokens[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Store) AddUser(_ context.Context, subject string) error {
	s.mu.Lock()
	s.users[subject] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveToken(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.tokens, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveUser(_ context.Context, subject string) error {
	s.mu.Lock()
	delete(s.users, subject)
	s.mu.Unlock()
	return nil
}

func (s *Store) IsTokenBlacklisted(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.tokens[key]
	s.mu.RUnlock()
	return ok, nil
}

func (s *Store) IsUserBlacklisted(_ context.Context, subject string) (bool, error) {
	s.mu.RLock()
	_, ok := s.users[subject]
	s.mu.RUnlock()
	return ok, nil
}

// Consume records tokenID under the write lock; only the first call wins.
func (s *Store) Consume(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.replay[tokenID]; seen {
		return false, nil
	}
	s.replay[tokenID] = expiresAt
	return true, nil
}

// PruneExpired drops replay records whose token expired before now.
func (s *Store) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, exp := range s.replay {
		if !exp.After(now) {
			delete(s.replay, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) (time.Duration, error) { return 0, nil }

// Durable is false: state does not survive a restart.
func (s *Store) Durable() bool { return false }
