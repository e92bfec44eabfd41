// Package cache provides the key/value caching layer used by the conversion
// pipeline and the artifact store.
//
// Two implementations are provided:
//   - [MemoryCache]: an in-process map with per-entry expiry
//   - [NullCache]: never stores anything, used when caching is disabled
//
// Keys are produced by a [Keyer] so that every caller derives identical keys
// for identical inputs. [ScopedKeyer] namespaces keys when several processes
// share one backend.
//
// Nothing is written to disk: cached values are transient vectorizer output
// and live only as long as the process.
package cache

import (
	"context"
	"time"
)

// Default TTLs for cached values.
const (
	// TTLVectorize bounds how long traced markup is reused for identical input.
	TTLVectorize = 30 * time.Minute

	// TTLArtifact bounds how long a download handle stays resolvable.
	TTLArtifact = 15 * time.Minute
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// Sweeper is implemented by caches that must drop expired entries
// themselves. Redis expires keys on its own.
type Sweeper interface {
	Cleanup() int
}

// Sweep drops expired entries from c when it is a Sweeper and returns how
// many were removed.
func Sweep(c Cache) int {
	if s, ok := c.(Sweeper); ok {
		return s.Cleanup()
	}
	return 0
}

// Keyer derives cache keys.
type Keyer interface {
	// VectorizeKey identifies traced markup for one image and option set.
	VectorizeKey(imageHash string, opts VectorizeKeyOpts) string

	// ArtifactKey identifies the payload behind a download handle.
	ArtifactKey(handle string) string
}

// VectorizeKeyOpts holds everything besides the image bytes that changes
// vectorizer output.
type VectorizeKeyOpts struct {
	Tracer  string `json:"tracer"`
	Options any    `json:"options"`
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// VectorizeKey returns "vectorize:<sha256>" over the image hash and options.
func (DefaultKeyer) VectorizeKey(imageHash string, opts VectorizeKeyOpts) string {
	return hashKey("vectorize", imageHash, opts)
}

// ArtifactKey returns "artifact:<handle>".
func (DefaultKeyer) ArtifactKey(handle string) string {
	return "artifact:" + handle
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = DefaultKeyer{}
