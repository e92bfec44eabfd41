// Package artifact stores revocable download payloads.
//
// An artifact is created from the current conversion when a download is
// requested and is addressed by an opaque handle. Handles expire after a TTL
// and can be released early. The store sits on any cache.Cache, so the same
// code serves the in-memory CLI case and a shared redis.
package artifact

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/observability"
)

// Artifact is a download payload.
type Artifact struct {
	Handle    string    `json:"handle"`
	Filename  string    `json:"filename"`
	MediaType string    `json:"media_type"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps artifacts in a cache.
type Store struct {
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration
}

// NewStore returns a store on c. A nil cache uses a fresh MemoryCache, a nil
// keyer the default keyer, and a non-positive ttl cache.TTLArtifact.
func NewStore(c cache.Cache, keyer cache.Keyer, ttl time.Duration) *Store {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if ttl <= 0 {
		ttl = cache.TTLArtifact
	}
	return &Store{cache: c, keyer: keyer, ttl: ttl}
}

// Create stores a new artifact and returns it with its handle set.
func (s *Store) Create(ctx context.Context, filename, mediaType string, data []byte) (*Artifact, error) {
	a := &Artifact{
		Handle:    uuid.NewString(),
		Filename:  filename,
		MediaType: mediaType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode artifact")
	}
	if err := s.cache.Set(ctx, s.keyer.ArtifactKey(a.Handle), payload, s.ttl); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store artifact")
	}
	observability.Cache().OnCacheSet(ctx, "artifact", len(payload))
	return a, nil
}

// Get resolves a handle. Unknown, expired and released handles are
// ARTIFACT_NOT_FOUND.
func (s *Store) Get(ctx context.Context, handle string) (*Artifact, error) {
	payload, hit, err := s.cache.Get(ctx, s.keyer.ArtifactKey(handle))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load artifact")
	}
	if !hit {
		observability.Cache().OnCacheMiss(ctx, "artifact")
		return nil, errors.New(errors.ErrCodeArtifactNotFound, "download %s is no longer available", handle)
	}
	observability.Cache().OnCacheHit(ctx, "artifact")
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode artifact")
	}
	return &a, nil
}

// Release revokes a handle. Releasing an unknown handle is not an error.
func (s *Store) Release(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, s.keyer.ArtifactKey(handle)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "release artifact")
	}
	return nil
}

// Cleanup drops expired artifacts from caches that do not expire keys
// themselves.
func (s *Store) Cleanup() int {
	return cache.Sweep(s.cache)
}

// Close closes the underlying cache.
func (s *Store) Close() error {
	return s.cache.Close()
}
