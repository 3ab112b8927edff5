package port

import (
	"context"
	"time"
)

// NoExpiration is returned by TimeToLive for keys without a TTL.
const NoExpiration time.Duration = -1

// CredentialCache is a TTL-capable key-value store holding JSON encoded values.
type CredentialCache interface {
	Save(ctx context.Context, key string, value any) error
	// SaveWithExpiration stores value and its TTL in one write. A non-positive ttl stores
	// the value without expiration.
	SaveWithExpiration(ctx context.Context, key string, value any, ttl time.Duration) error
	// Replace overwrites an existing key and keeps its remaining TTL. It writes nothing
	// and reports false when the key is absent.
	Replace(ctx context.Context, key string, value any) (bool, error)
	// Get decodes the value into dest. It reports false when the key is absent.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// GetExistingKeys returns the raw values of the keys that exist, skipping absent ones.
	GetExistingKeys(ctx context.Context, keys []string) ([][]byte, error)
	SetExpiration(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (int64, error)
	DeleteKeys(ctx context.Context, keys []string) (int64, error)
	// TimeToLive returns NoExpiration for persistent keys and repository.ErrNotFound for absent ones.
	TimeToLive(ctx context.Context, key string) (time.Duration, error)
	Exists(ctx context.Context, keys ...string) (int64, error)

	GetHash(ctx context.Context, key, field string, dest any) (bool, error)
	SetHash(ctx context.Context, key, field string, value any) error
	SetMHash(ctx context.Context, key string, values map[string]any) error
	DeleteHash(ctx context.Context, key string, fields ...string) (int64, error)
}
