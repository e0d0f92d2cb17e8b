// Package asset stores binary media produced or referenced during
// conversations. Models can emit images, audio or files as message parts;
// the store keeps those payloads addressable across turns without bloating
// the conversation history itself.
package asset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/parley-ai/parley/core"
)

// ErrNotFound is returned when no asset exists for the given conversation
// and id pair.
var ErrNotFound = errors.New("asset not found")

// Asset is a stored media payload.
type Asset struct {
	ID       string
	MIMEType string
	Name     string
	Data     []byte
}

// Store keeps media assets keyed by conversation and asset id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores (or overwrites) the asset under the given conversation.
	Save(conversationID string, a Asset) error

	// Get returns the stored asset or ErrNotFound.
	Get(conversationID, assetID string) (Asset, error)

	// List returns the asset ids stored for the conversation.
	List(conversationID string) ([]string, error)

	// Delete removes the asset if present or returns ErrNotFound.
	Delete(conversationID, assetID string) error
}

// InMemoryStore is a trivial in-process Store implementation useful for
// tests, examples and single-process prototypes. It keeps all assets in a
// nested map guarded by an RWMutex. Data is copied on save and retrieval so
// callers cannot mutate internal buffers.
//
// Layout: conversationID -> assetID -> asset
type InMemoryStore struct {
	mu     sync.RWMutex
	assets map[string]map[string]Asset
}

// NewInMemoryStore returns an empty in-memory asset store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{assets: make(map[string]map[string]Asset)}
}

// Save implements Store. The payload slice is copied before storage.
func (s *InMemoryStore) Save(conversationID string, a Asset) error {
	if a.ID == "" {
		return fmt.Errorf("asset id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assets[conversationID]; !exists {
		s.assets[conversationID] = make(map[string]Asset)
	}
	cp := make([]byte, len(a.Data))
	copy(cp, a.Data)
	a.Data = cp
	s.assets[conversationID][a.ID] = a
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(conversationID, assetID string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.assets[conversationID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	a, ok := m[assetID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	cp := make([]byte, len(a.Data))
	copy(cp, a.Data)
	a.Data = cp
	return a, nil
}

// List implements Store. The slice is a snapshot and safe for caller
// mutation.
func (s *InMemoryStore) List(conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.assets[conversationID]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(conversationID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.assets[conversationID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[assetID]; !ok {
		return ErrNotFound
	}
	delete(m, assetID)
	return nil
}

// PersistParts saves every inline media part to the store under fresh ids
// and returns the stored assets. Link parts are skipped since their payload
// lives elsewhere.
func PersistParts(store Store, conversationID string, parts []core.Part) ([]Asset, error) {
	var saved []Asset
	for _, p := range parts {
		dp, ok := p.(core.DataPart)
		if !ok {
			continue
		}
		a := Asset{
			ID:       core.NewID(),
			MIMEType: dp.MIMEType,
			Name:     dp.Name,
			Data:     dp.Bytes,
		}
		if err := store.Save(conversationID, a); err != nil {
			return saved, fmt.Errorf("failed to persist asset %q: %w", a.Name, err)
		}
		saved = append(saved, a)
	}
	return saved, nil
}
