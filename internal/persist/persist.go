// Package persist is the durable key/value port for per-shopper state.
//
// Values are opaque strings. Callers own the encoding (the cart id is stored
// raw, the wishlist as a JSON array).
package persist

import (
	"context"
	"sync"
)

// Store reads and writes string values by key.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Clear removes a key. Clearing an absent key is not an error.
	Clear(ctx context.Context, key string) error
}

// Memory is an in-process Store. Contents do not survive a restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len reports the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// scoped prefixes every key of an underlying store.
type scoped struct {
	store  Store
	prefix string
}

// Scoped returns a Store that namespaces keys under prefix.
func Scoped(store Store, prefix string) Store {
	return &scoped{store: store, prefix: prefix}
}

func (s *scoped) key(k string) string {
	return s.prefix + k
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}

func (s *scoped) Clear(ctx context.Context, key string) error {
	return s.store.Clear(ctx, s.key(key))
}

// SessionPrefix is the key namespace of one shopper session.
func SessionPrefix(sessionID string) string {
	return "session:" + sessionID + ":"
}
