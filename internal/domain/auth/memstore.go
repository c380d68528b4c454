package auth

import (
	"context"
	"sync"
	"time"
)

// MemStore is the zero-infrastructure Store: a mutex-guarded map with expiry
// timestamps. Correctness never depends on the optional eviction goroutine;
// it only bounds memory for phone numbers that never verify.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	code      string
	expiresAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]memEntry)}
}

// Put stores or replaces the code for a phone number.
func (s *MemStore) Put(_ context.Context, phone, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phone] = memEntry{code: code, expiresAt: expiresAt}
	return nil
}

// Get returns the stored code and its expiry, or ErrOTPNotFound.
func (s *MemStore) Get(_ context.Context, phone string) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[phone]
	if !ok {
		return "", time.Time{}, ErrOTPNotFound
	}
	return e.code, e.expiresAt, nil
}

// Delete removes the entry for a phone number, if any.
func (s *MemStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}

// StartEviction launches a goroutine that periodically drops expired entries.
// It stops when ctx is cancelled.
func (s *MemStore) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.evict(now)
			}
		}
	}()
}

func (s *MemStore) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for phone, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, phone)
		}
	}
}
