package testutil

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/session"
)

// SessionBuilder pre-populates a session store for tests.
// Example:
//
//	err := NewSessionBuilder("sess-1").Items(history...).Seed(ctx, store)
type SessionBuilder struct {
	id    string
	items []core.Item
}

// NewSessionBuilder creates a builder for the session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// Items appends items to the session history (chainable).
func (b *SessionBuilder) Items(items ...core.Item) *SessionBuilder {
	b.items = append(b.items, items...)
	return b
}

// History appends the items of a HistoryBuilder (chainable).
func (b *SessionBuilder) History(h *HistoryBuilder) *SessionBuilder {
	return b.Items(h.Build()...)
}

// Seed writes the history into store, replacing what was stored before.
func (b *SessionBuilder) Seed(ctx context.Context, store session.Store) error {
	if err := store.Clear(ctx, b.id); err != nil {
		return err
	}
	return store.Append(ctx, b.id, b.items...)
}

// Build returns an in-memory store holding the session.
func (b *SessionBuilder) Build() *session.InMemoryStore {
	s := session.NewInMemoryStore()
	_ = b.Seed(context.Background(), s)
	return s
}
