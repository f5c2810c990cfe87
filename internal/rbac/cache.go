package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const actorKeyPrefix = "rbac:actor:"

// CachedSource caches actor grants in Redis and collapses concurrent loads
// for the same actor.
type CachedSource struct {
	next   ActorSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedSource wraps next. A nil client or non-positive ttl disables caching.
func NewCachedSource(next ActorSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl, logger: logger}
}

// LoadActor returns the cached actor or loads it from the wrapped source.
func (c *CachedSource) LoadActor(ctx context.Context, id int64) (Actor, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.next.LoadActor(ctx, id)
	}
	key := actorKey(id)
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(ctx, key, id)
	})
	select {
	case <-ctx.Done():
		return Actor{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Actor{}, res.Err
		}
		return res.Val.(Actor), nil
	}
}

func (c *CachedSource) fetch(ctx context.Context, key string, id int64) (Actor, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var actor Actor
		decodeErr := json.Unmarshal(payload, &actor)
		if decodeErr == nil {
			return actor, nil
		}
		c.warn("rbac cache decode", key, decodeErr)
	case !errors.Is(err, redis.Nil):
		c.warn("rbac cache get", key, err)
	}
	actor, err := c.next.LoadActor(ctx, id)
	if err != nil {
		return Actor{}, err
	}
	raw, err := json.Marshal(actor)
	if err != nil {
		return Actor{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn("rbac cache set", key, err)
	}
	return actor, nil
}

// Invalidate drops the cached grants of an actor so the next load reads
// the wrapped source.
func (c *CachedSource) Invalidate(ctx context.Context, id int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, actorKey(id)).Err()
}

func (c *CachedSource) warn(msg, key string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.String("key", key), slog.Any("error", err))
	}
}

func actorKey(id int64) string {
	return actorKeyPrefix + strconv.FormatInt(id, 10)
}

var _ ActorSource = (*CachedSource)(nil)
