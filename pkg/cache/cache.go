// Package cache provides an expiring key/value store used to avoid redundant
// chain reads. Entries live for a caller-chosen TTL and are treated as absent
// once expired; there is no size bound or LRU, cached objects are small and
// short-lived. Concurrent populations of the same key race and the last write
// wins.
package cache

import (
	"context"
	"time"
)

// DefaultTTL matches the repository-wide convention of caching chain-derived
// objects for one hour.
const DefaultTTL = time.Hour

// Cache is the expiring store. Set serializes the value; Get deserializes the
// stored value into out and reports whether a live entry was found. Keys are
// opaque strings composed by callers (e.g. "contract_abi_0x...").
type Cache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
