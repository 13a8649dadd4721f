package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/shared/util"
)

// redisClient is the subset of redis.Cmdable the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache memoizes successful profiles per company. Cache failures never fail research.
type RedisCache struct {
	Next   Researcher
	Client redisClient
	TTL    time.Duration
	Prefix string
}

// NewRedisCache wraps next with a Redis-backed cache.
func NewRedisCache(next Researcher, client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{Next: next, Client: client, TTL: ttl, Prefix: "research:"}
}

func (c *RedisCache) key(q Query) string {
	name := strings.ToLower(strings.TrimSpace(q.CompanyName))
	u := strings.ToLower(strings.TrimSpace(q.CompanyURL))
	return c.Prefix + util.HashString(name+"|"+u)
}

// Research implements Researcher.
func (c *RedisCache) Research(ctx context.Context, q Query) (Profile, error) {
	key := c.key(q)
	raw, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Profile
		if jerr := json.Unmarshal(raw, &p); jerr == nil && !p.Empty() {
			return p, nil
		}
		telemetry.Warn("research.cache_corrupt", map[string]any{"key": key})
	case errors.Is(err, redis.Nil):
	default:
		telemetry.Warn("research.cache_get_failed", map[string]any{"key": key, "error": err})
	}

	p, err := c.Next.Research(ctx, q)
	if err != nil {
		return Profile{}, err
	}
	if payload, jerr := json.Marshal(p); jerr == nil {
		if serr := c.Client.Set(ctx, key, payload, c.TTL).Err(); serr != nil {
			telemetry.Warn("research.cache_set_failed", map[string]any{"key": key, "error": serr})
		}
	}
	return p, nil
}
