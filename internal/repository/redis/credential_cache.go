package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

// CredentialCache stores JSON encoded values in Redis. Keys are used as given unless a
// prefix is configured.
type CredentialCache struct {
	client *red.Client
	prefix string
}

// NewCredentialCache wires a Redis client into a credential cache.
func NewCredentialCache(client *red.Client, keyPrefix string) *CredentialCache {
	return &CredentialCache{client: client, prefix: strings.TrimSpace(keyPrefix)}
}

// Save stores value without an expiration. Existing TTLs on key are discarded.
func (c *CredentialCache) Save(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	if err := c.client.Set(ctx, c.key(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// SaveWithExpiration stores value with ttl using a single SET.
func (c *CredentialCache) SaveWithExpiration(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := c.client.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Replace overwrites key only if it exists (SET XX KEEPTTL).
func (c *CredentialCache) Replace(ctx context.Context, key string, value any) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode cache value: %w", err)
	}

	err = c.client.SetArgs(ctx, c.key(key), payload, red.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis set xx: %w", err)
	}
	return true, nil
}

// Get decodes the stored value into dest.
func (c *CredentialCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode cache value: %w", err)
	}

	return true, nil
}

// GetExistingKeys returns the raw values of the keys that are present, in request order.
func (c *CredentialCache) GetExistingKeys(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.client.MGet(ctx, c.keys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	existing := make([][]byte, 0, len(values))
	for _, v := range values {
		switch raw := v.(type) {
		case string:
			existing = append(existing, []byte(raw))
		case []byte:
			existing = append(existing, raw)
		}
	}

	return existing, nil
}

// SetExpiration sets a TTL on key and reports whether the key existed.
func (c *CredentialCache) SetExpiration(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.Expire(ctx, c.key(key), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis expire: %w", err)
	}
	return ok, nil
}

// Delete removes key and returns the number of removed keys.
func (c *CredentialCache) Delete(ctx context.Context, key string) (int64, error) {
	return c.DeleteKeys(ctx, []string{key})
}

// DeleteKeys removes all given keys.
func (c *CredentialCache) DeleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := c.client.Del(ctx, c.keys(keys)...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return removed, nil
}

// TimeToLive returns the remaining TTL of key.
func (c *CredentialCache) TimeToLive(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	switch ttl {
	case -2:
		return 0, repository.ErrNotFound
	case -1:
		return port.NoExpiration, nil
	}
	return ttl, nil
}

// Exists returns how many of the given keys are present.
func (c *CredentialCache) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.client.Exists(ctx, c.keys(keys)...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists: %w", err)
	}
	return n, nil
}

// GetHash decodes one hash field into dest.
func (c *CredentialCache) GetHash(ctx context.Context, key, field string, dest any) (bool, error) {
	payload, err := c.client.HGet(ctx, c.key(key), field).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis hget: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode hash value: %w", err)
	}

	return true, nil
}

// SetHash stores one hash field.
func (c *CredentialCache) SetHash(ctx context.Context, key, field string, value any) error {
	return c.SetMHash(ctx, key, map[string]any{field: value})
}

// SetMHash stores several hash fields at once.
func (c *CredentialCache) SetMHash(ctx context.Context, key string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	encoded := make(map[string]any, len(values))
	for field, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode hash field %s: %w", field, err)
		}
		encoded[field] = payload
	}

	if err := c.client.HSet(ctx, c.key(key), encoded).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}

	return nil
}

// DeleteHash removes hash fields.
func (c *CredentialCache) DeleteHash(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}

	removed, err := c.client.HDel(ctx, c.key(key), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}
	return removed, nil
}

// HealthCheck pings the cache server.
func (c *CredentialCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *CredentialCache) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *CredentialCache) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.key(k)
	}
	return out
}

var _ port.CredentialCache = (*CredentialCache)(nil)
