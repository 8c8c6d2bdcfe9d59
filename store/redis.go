package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [TokenStore] backed by a Redis hash. All three fields are
// written in a single HSET so the swap is atomic on the server side. Meant
// for server-rendered deployments where several frontend processes share one
// visitor session, keyed by a per-visitor identifier.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedis creates a Redis store. prefix namespaces the session key
// ("ca:session" when empty); sessionKey distinguishes visitors. A positive
// ttl bounds how long an untouched session survives.
func NewRedis(client redis.UniversalClient, prefix, sessionKey string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "ca:session"
	}
	return &Redis{
		client: client,
		key:    prefix + ":" + sessionKey,
		ttl:    ttl,
	}
}

// Save describes the save operation and its observable behavior.
func (r *Redis) Save(ctx context.Context, state State) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key,
			FieldUser, string(state.User),
			FieldAccessToken, state.AccessToken,
			FieldRefreshToken, state.RefreshToken,
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
func (r *Redis) Load(ctx context.Context) (*State, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	state := State{
		User:         []byte(fields[FieldUser]),
		AccessToken:  fields[FieldAccessToken],
		RefreshToken: fields[FieldRefreshToken],
	}
	if !state.Complete() {
		return nil, nil
	}
	return cloneState(state), nil
}

// Clear describes the clear operation and its observable behavior.
func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
