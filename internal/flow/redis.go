package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps flow state in Redis with a TTL, so in-progress wizards
// survive process restarts and expire server-side without a janitor.
type RedisStore struct {
	client *redis.Client
	ttl    int64 // seconds
}

// NewRedisStore wraps an already connected client. ttlSeconds bounds how
// long an abandoned wizard lives.
func NewRedisStore(client *redis.Client, ttlSeconds int64) *RedisStore {
	if ttlSeconds <= 0 {
		ttlSeconds = 1800
	}
	return &RedisStore{client: client, ttl: ttlSeconds}
}

func flowKey(chatID int64) string { return fmt.Sprintf("flow:%d", chatID) }

func (r *RedisStore) Get(ctx context.Context, chatID int64) (*State, error) {
	raw, err := r.client.Get(ctx, flowKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flow get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// Corrupt state is unrecoverable; drop it so the user can restart
		// the command.
		_ = r.client.Del(ctx, flowKey(chatID)).Err()
		return nil, nil
	}
	if st.Fields == nil {
		st.Fields = make(map[string]string)
	}
	return &st, nil
}

func (r *RedisStore) Put(ctx context.Context, chatID int64, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("flow put: %w", err)
	}
	if err := r.client.Set(ctx, flowKey(chatID), raw, time.Duration(r.ttl)*time.Second).Err(); err != nil {
		return fmt.Errorf("flow put: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, flowKey(chatID)).Err(); err != nil {
		return fmt.Errorf("flow clear: %w", err)
	}
	return nil
}
