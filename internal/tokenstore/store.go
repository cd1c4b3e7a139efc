// ABOUTME: Token pair type and the Store interface for session persistence
// ABOUTME: Backend selection by name plus the shared JSON encoding of the stored entry

package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EntryKey names the single persisted entry.
const EntryKey = "auth_tokens"

var (
	// ErrNotFound means no tokens are stored.
	ErrNotFound = errors.New("no stored tokens")
	// ErrCorrupt means the stored entry is unreadable or only half present.
	ErrCorrupt = errors.New("stored tokens are corrupt")
	// ErrIncomplete is returned by Save for a pair missing either half.
	ErrIncomplete = errors.New("access and refresh tokens are both required")
)

// Tokens is the access/refresh pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Valid reports whether both halves are present.
func (t Tokens) Valid() bool {
	return t.Access != "" && t.Refresh != ""
}

// Store persists one Tokens value.
type Store interface {
	// Load returns ErrNotFound when nothing is stored and ErrCorrupt when the
	// entry cannot be used.
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	// Clear removes the entry. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the store for backend. path is ignored for memory and
// defaults to DefaultPath for file.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		if path == "" {
			p, err := DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path), nil
	case BackendSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite token store requires a path")
		}
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", backend)
	}
}

func encode(t Tokens) ([]byte, error) {
	if !t.Valid() {
		return nil, ErrIncomplete
	}
	return json.Marshal(t)
}

func decode(data []byte) (Tokens, error) {
	var t Tokens
	if err := json.Unmarshal(data, &t); err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !t.Valid() {
		return Tokens{}, ErrCorrupt
	}
	return t, nil
}
