package memory

import (
	"sync"

	"github.com/parley-ai/parley/core"
)

// Store persists conversation history keyed by conversation id. Unknown ids
// behave as empty conversations; implementations must be safe for concurrent
// use.
type Store interface {
	// History returns the stored messages for the conversation, oldest first.
	History(conversationID string) ([]core.ChatMessage, error)

	// Append adds messages to the end of the conversation, creating it if
	// needed.
	Append(conversationID string, msgs ...core.ChatMessage) error

	// Clear removes the conversation entirely.
	Clear(conversationID string) error
}

// InMemoryStore is a volatile Store implementation keeping conversations in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demos. Returned slices are copies so callers cannot
// mutate internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]core.ChatMessage
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string][]core.ChatMessage)}
}

// History implements Store. A missing conversation yields an empty slice.
func (s *InMemoryStore) History(conversationID string) ([]core.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.conversations[conversationID]
	cp := make([]core.ChatMessage, len(msgs))
	copy(cp, msgs)
	return cp, nil
}

// Append implements Store.
func (s *InMemoryStore) Append(conversationID string, msgs ...core.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], msgs...)
	return nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}
