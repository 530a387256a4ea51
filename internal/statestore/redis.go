// Package statestore caches conversation transcripts in Redis with a fixed
// TTL measured from the last write.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"restaurant-agent/internal/domain"
)

// redisAPI is the subset of the go-redis client used by RedisStore.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// ErrVersionConflict is returned by PutIfVersion when the stored state has
// moved on since the caller read it.
var ErrVersionConflict = domain.ErrStateConflict

// RedisStore reads and overwrites whole conversation states. It does no
// locking; callers serialize writers per key.
type RedisStore struct {
	client redisAPI
}

func NewRedisStore(client redisAPI) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("statestore: redis client must not be nil")
	}
	return &RedisStore{client: client}, nil
}

// Get returns the stored state for key. The boolean is false when no entry
// exists or the entry has expired.
func (s *RedisStore) Get(ctx context.Context, key domain.StateKey) (domain.ConversationState, bool, error) {
	raw, err := s.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ConversationState{}, false, nil
	}
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("statestore: get %s: %w", key, err)
	}

	state, err := decode(key, raw)
	if err != nil {
		return domain.ConversationState{}, false, err
	}
	return state, true, nil
}

func decode(key domain.StateKey, raw []byte) (domain.ConversationState, error) {
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.ConversationState{}, fmt.Errorf("statestore: decode %s: %w", key, err)
	}
	if state.Key() != key {
		return domain.ConversationState{}, fmt.Errorf("statestore: entry under %s belongs to %s", key, state.Key())
	}
	if state.Messages == nil {
		state.Messages = []domain.Message{}
	}
	return state, nil
}

// Put overwrites the state stored under key and restarts its TTL.
func (s *RedisStore) Put(ctx context.Context, key domain.StateKey, state domain.ConversationState, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("statestore: put %s: ttl must be positive", key)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("statestore: set %s: %w", key, err)
	}
	return nil
}

// PutIfVersion stores state as version expected+1, but only if the entry
// under key is still at version expected (0 meaning absent). Otherwise it
// returns ErrVersionConflict and writes nothing.
func (s *RedisStore) PutIfVersion(ctx context.Context, key domain.StateKey, state domain.ConversationState, expected int64, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("statestore: put %s: ttl must be positive", key)
	}
	state.Version = expected + 1
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", key, err)
	}

	k := key.String()
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("statestore: get %s: %w", key, err)
		default:
			stored, err := decode(key, raw)
			if err != nil {
				return err
			}
			current = stored.Version
		}
		if current != expected {
			return fmt.Errorf("%w: %s at version %d, expected %d", ErrVersionConflict, key, current, expected)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, ttl)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s changed during write", ErrVersionConflict, key)
	}
	if err != nil && !errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("statestore: set %s: %w", key, err)
	}
	return err
}
