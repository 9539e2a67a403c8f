package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configure a RedisStore.
type RedisOptions struct {
	// KeyPrefix is prepended to the session ID.
	KeyPrefix string
	// TTL expires a session after the last append. Zero keeps it forever.
	TTL time.Duration
	// MaxItems keeps only the newest items per session. Zero keeps all.
	MaxItems int64
}

// RedisStore keeps each session as a Redis list of encoded items.
type RedisStore struct {
	client redis.Cmdable
	opts   RedisOptions
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on top of client.
func NewRedisStore(client redis.Cmdable, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: "agentrelay:session:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisStore{client: client, opts: opts}
}

// Key returns the Redis key of a session.
func (s *RedisStore) Key(sessionID string) string { return s.opts.KeyPrefix + sessionID }

// Items loads and decodes the session list.
func (s *RedisStore) Items(ctx context.Context, sessionID string) ([]core.Item, error) {
	raw, err := s.client.LRange(ctx, s.Key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	items := make([]core.Item, 0, len(raw))
	for i, r := range raw {
		it, err := core.UnmarshalItem([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("decode session %s item %d: %w", sessionID, i, err)
		}
		items = append(items, it)
	}

	return items, nil
}

// Append encodes items and pushes them in one transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, items ...core.Item) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]any, 0, len(items))
	for _, it := range items {
		b, err := core.MarshalItem(it)
		if err != nil {
			return fmt.Errorf("encode session %s item: %w", sessionID, err)
		}
		values = append(values, b)
	}

	key := s.Key(sessionID)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.opts.MaxItems > 0 {
		pipe.LTrim(ctx, key, -s.opts.MaxItems, -1)
	}
	if s.opts.TTL > 0 {
		pipe.Expire(ctx, key, s.opts.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}

	return nil
}

// Clear deletes the session list.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.Key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}
