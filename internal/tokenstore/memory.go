// ABOUTME: In-memory token store for tests and sessions that should not persist
// ABOUTME: Holds the encoded entry so it behaves like the durable backends

package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the entry in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	entry []byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return Tokens{}, ErrNotFound
	}
	return decode(s.entry)
}

func (s *MemoryStore) Save(_ context.Context, t Tokens) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = data
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	return nil
}

// SetRaw stores data verbatim, bypassing validation.
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = append([]byte(nil), data...)
}

func (s *MemoryStore) Close() error {
	return nil
}
