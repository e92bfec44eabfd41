package cache

// ScopedKeyer wraps a Keyer with a prefix for namespace isolation.
// The server uses it when several tracekit instances share one redis.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "tracekit:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// VectorizeKey generates a prefixed key for traced markup.
func (k *ScopedKeyer) VectorizeKey(imageHash string, opts VectorizeKeyOpts) string {
	return k.prefix + k.inner.VectorizeKey(imageHash, opts)
}

// ArtifactKey generates a prefixed key for a download artifact.
func (k *ScopedKeyer) ArtifactKey(handle string) string {
	return k.prefix + k.inner.ArtifactKey(handle)
}
