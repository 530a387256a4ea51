package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only while it still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker backed by a Redis lease (SET NX PX). It serializes work
// across processes sharing the same Redis.
type Redis struct {
	client       redis.Scripter
	setter       redisSetNX
	lease        time.Duration
	pollInterval time.Duration
	prefix       string
	logger       zerolog.Logger
}

type redisSetNX interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisClient is what NewRedis needs from go-redis; *redis.Client satisfies it.
type RedisClient interface {
	redis.Scripter
	redisSetNX
}

type RedisOption func(*Redis)

func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithLogger(l zerolog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis returns a Redis lease lock. lease bounds how long a crashed holder
// can block the key.
func NewRedis(client RedisClient, lease time.Duration, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock: redis client must not be nil")
	}
	if lease <= 0 {
		return nil, errors.New("lock: lease must be positive")
	}
	r := &Redis{
		client:       client,
		setter:       client,
		lease:        lease,
		pollInterval: 50 * time.Millisecond,
		prefix:       "lock:",
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.setter.SetNX(ctx, lockKey, token, r.lease).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("lock: setnx %s: %w", lockKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(context.WithoutCancel(ctx), lockKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release even if the turn's context was cancelled.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{lockKey}, token).Err(); err != nil {
				r.logger.Warn().Err(err).Str("key", lockKey).Msg("lock release failed; lease will expire")
			}
		})
	}, nil
}

// keepAlive extends the lease every third of its length until stop is closed
// or the lease turns out to belong to someone else.
func (r *Redis) keepAlive(ctx context.Context, lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.lease / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		rctx, cancel := context.WithTimeout(ctx, interval)
		n, err := refreshScript.Run(rctx, r.client, []string{lockKey}, token, r.lease.Milliseconds()).Int64()
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("key", lockKey).Msg("lock refresh failed")
			continue
		}
		if n == 0 {
			r.logger.Warn().Str("key", lockKey).Msg("lock lease lost")
			return
		}
	}
}
