package session

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
)

// Store persists the items of a conversation.
type Store interface {
	// Items returns the stored history in insertion order. An unknown
	// session has no items.
	Items(ctx context.Context, sessionID string) ([]core.Item, error)
	// Append adds items to the end of the history.
	Append(ctx context.Context, sessionID string, items ...core.Item) error
	// Clear removes the history.
	Clear(ctx context.Context, sessionID string) error
}
