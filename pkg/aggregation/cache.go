package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

const (
	generationKey = "rx:stats:gen"
	topKeyPrefix  = "rx:stats:top:"
)

// Cache holds top-n rollups in a redis hash keyed by n. Each hash belongs to
// one generation; Invalidate moves readers to a fresh generation, so a rollup
// computed before the bump can only land in a hash nobody reads again. A nil
// Cache is a valid no-op cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func topKey(gen int64) string {
	return topKeyPrefix + strconv.FormatInt(gen, 10)
}

// Generation reports the current cache generation. ok is false when the
// cache is disabled or unreachable.
func (c *Cache) Generation(ctx context.Context) (gen int64, ok bool) {
	if c == nil {
		return 0, false
	}
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

func (c *Cache) GetTop(ctx context.Context, gen int64, n int) ([]models.MedicineStat, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.HGet(ctx, topKey(gen), strconv.Itoa(n)).Bytes()
	if err != nil {
		return nil, false
	}
	var stats []models.MedicineStat
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false
	}
	return stats, true
}

// SetTop stores stats under gen, which must be the generation read before the
// rollup was computed.
func (c *Cache) SetTop(ctx context.Context, gen int64, n int, stats []models.MedicineStat) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	key := topKey(gen)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(n), payload)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate retires the current generation. Its hash expires on its own TTL.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, generationKey).Err()
}
