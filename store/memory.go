package store

import (
	"context"
	"sync"
)

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[Kind]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[Kind]string, len(Kinds))}
}

func (m *MemoryStore) Get(_ context.Context, kind Kind) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tokens[kind]
	return v, ok && v != ""
}

func (m *MemoryStore) Set(_ context.Context, kind Kind, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		delete(m.tokens, kind)
		return
	}
	m.tokens[kind] = token
}

func (m *MemoryStore) SetPair(_ context.Context, pair Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(AccessToken, pair.AccessToken)
	m.put(RefreshToken, pair.RefreshToken)
}

func (m *MemoryStore) Clear(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.tokens)
}

func (m *MemoryStore) put(kind Kind, token string) {
	if token == "" {
		delete(m.tokens, kind)
		return
	}
	m.tokens[kind] = token
}
