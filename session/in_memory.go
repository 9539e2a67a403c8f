package session

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// InMemoryStore is a volatile Store keeping histories in a process local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral servers. Returned slices are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Item
	maxItems int
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryOptions configure an InMemoryStore.
type InMemoryOptions struct {
	// MaxItems keeps only the newest items per session. Zero keeps all.
	MaxItems int
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{sessions: make(map[string][]core.Item), maxItems: opts.MaxItems}
}

// Items returns a copy of the stored history.
func (s *InMemoryStore) Items(_ context.Context, sessionID string) ([]core.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.sessions[sessionID]), nil
}

// Append adds items to the session, creating it lazily.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, items ...core.Item) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], items...)
	if s.maxItems > 0 && len(history) > s.maxItems {
		history = slices.Clone(history[len(history)-s.maxItems:])
	}
	s.sessions[sessionID] = history

	return nil
}

// Clear removes the session.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)

	return nil
}

// Sessions returns the IDs of all sessions with history.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}
