package cache

import "time"

// ScopedKeyer wraps a Keyer with a prefix so several generator directories
// or API tenants can share one backend without colliding.
//
//	projectKeyer := NewScopedKeyer(NewDefaultKeyer(), "project:web:")
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

// ManifestKey generates a prefixed manifest key.
func (k *ScopedKeyer) ManifestKey(path string, modTime time.Time, size int64) string {
	return k.prefix + k.inner.ManifestKey(path, modTime, size)
}

// PlanKey generates a prefixed plan key.
func (k *ScopedKeyer) PlanKey(specHash, registryFingerprint string) string {
	return k.prefix + k.inner.PlanKey(specHash, registryFingerprint)
}
