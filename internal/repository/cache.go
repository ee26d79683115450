package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kata_analysis/internal/adapters"
	"kata_analysis/internal/domain/katago"
)

const cacheKeyPrefix = "katago:analysis:"

// ResultCache stores final analysis results in Redis, keyed by position
// rather than by request: the digest is computed over the query with its id
// stripped, so the same position asked under different request ids hits the
// same entry. All failures are soft; a broken cache degrades to a miss.
type ResultCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

func NewResultCache(redisAdapter *adapters.AdapterRedis, ttl time.Duration, log *zap.SugaredLogger) *ResultCache {
	return &ResultCache{
		redis: redisAdapter.GetClient(),
		ttl:   ttl,
		log:   log,
	}
}

func (c *ResultCache) Get(ctx context.Context, q *katago.Query) (*katago.Result, bool) {
	key, err := cacheKey(q)
	if err != nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("result cache get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var result katago.Result
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		c.log.Warnw("result cache holds undecodable entry", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *ResultCache) Set(ctx context.Context, q *katago.Query, result *katago.Result) {
	key, err := cacheKey(q)
	if err != nil {
		c.log.Warnw("result cache key failed", "id", q.ID, "error", err)
		return
	}

	buf, err := json.Marshal(result)
	if err != nil {
		c.log.Warnw("result cache marshal failed", "id", q.ID, "error", err)
		return
	}

	if err := c.redis.Set(ctx, key, buf, c.ttl).Err(); err != nil {
		c.log.Warnw("result cache set failed", "key", key, "error", err)
	}
}

func cacheKey(q *katago.Query) (string, error) {
	// The id is per-request, the result is per-position.
	stripped := *q
	stripped.ID = ""

	buf, err := json.Marshal(&stripped)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}
