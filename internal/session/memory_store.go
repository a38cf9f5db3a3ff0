package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process stand-in used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	views   map[string]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		views:   make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiresAt.After(s.now()) {
		s.revoked[jti] = expiresAt
	}
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if !expiresAt.After(s.now()) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) IncrViews(_ context.Context, collection, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := collection + ":" + id
	s.views[key]++
	return s.views[key], nil
}

func (s *MemoryStore) Views(_ context.Context, collection, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[collection+":"+id], nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
