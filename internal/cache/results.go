package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfolio/allocengine/internal/engine"
	"github.com/quantfolio/allocengine/internal/models"
)

// ResultCache memoizes optimization results in Redis. The engine is
// deterministic, so a result stored under the hash of its request can
// be replayed verbatim. Entries expire; nothing here is a system of
// record.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		client: client,
		ttl:    ttl,
	}
}

// Key derives a stable cache key from a run's inputs. Asset order is
// part of the key: the engine's output ordering follows input
// ordering, so differently ordered universes are distinct requests.
func Key(assets []models.Asset, pref models.Preference) string {
	payload := struct {
		Assets     []models.Asset    `json:"assets"`
		Preference models.Preference `json:"preference"`
	}{Assets: assets, Preference: pref}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("alloc:result:%s", hex.EncodeToString(sum[:]))
}

// Get returns the cached result for a key, or nil on a miss.
func (c *ResultCache) Get(ctx context.Context, key string) (*engine.Result, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Set stores a result under the key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, result *engine.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}
