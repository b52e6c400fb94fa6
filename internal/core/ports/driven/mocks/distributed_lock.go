package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLock is a mock implementation of DistributedLock for testing.
// It simulates lock behavior with in-memory state and supports custom behavior injection.
type MockDistributedLock struct {
	mu    sync.Mutex
	locks map[string]lockEntry

	// Custom behavior hooks (optional)
	AcquireFn func(name string, ttl time.Duration) (bool, error)
	ReleaseFn func(name string) error
}

type lockEntry struct {
	expiry time.Time
}

// NewMockDistributedLock creates a new mock distributed lock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		locks: make(map[string]lockEntry),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.locks[name]; exists && time.Now().Before(entry.expiry) {
		return false, nil
	}
	m.locks[name] = lockEntry{expiry: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	if m.ReleaseFn != nil {
		return m.ReleaseFn(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, name)
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[name]; exists {
		m.locks[name] = lockEntry{expiry: time.Now().Add(ttl)}
	}
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return nil
}

// Held reports whether a lock is currently held
func (m *MockDistributedLock) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, exists := m.locks[name]
	return exists && time.Now().Before(entry.expiry)
}
