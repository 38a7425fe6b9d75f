package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MockStore is a hand-written, in-memory implementation of Store used in
// unit tests. Entries honour their TTLs against the wall clock.
type MockStore struct {
	mu      sync.Mutex
	values  map[string]entry
	counts  map[string]counter
	failAll bool
}

type entry struct {
	raw       []byte
	expiresAt time.Time
}

type counter struct {
	n         int64
	expiresAt time.Time
}

func NewMockStore() *MockStore {
	return &MockStore{
		values: make(map[string]entry),
		counts: make(map[string]counter),
	}
}

// FailAll makes every subsequent operation return an error, for exercising
// the admission controller's fail-open / fail-closed policies.
func (s *MockStore) FailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

var errMockStore = errors.New("mock store unavailable")

func (s *MockStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errMockStore
	}
	e, ok := s.values[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.values, key)
		return false, nil
	}
	return true, nil
}

func (s *MockStore) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errMockStore
	}
	s.values[key] = entry{raw: []byte("1"), expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MockStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errMockStore
	}
	e, ok := s.values[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.values, key)
		return false, nil
	}
	if err := json.Unmarshal(e.raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MockStore) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errMockStore
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = entry{raw: raw, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MockStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errMockStore
	}
	c, ok := s.counts[key]
	if !ok || time.Now().After(c.expiresAt) {
		c = counter{n: 0, expiresAt: time.Now().Add(ttl)}
	}
	c.n++
	s.counts[key] = c
	return c.n, nil
}

// Forget drops a key, simulating cache eviction or TTL expiry.
func (s *MockStore) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.counts, key)
}

var _ Store = (*MockStore)(nil)
