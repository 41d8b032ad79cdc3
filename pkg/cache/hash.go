package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Keyer derives cache keys for the values stackforge caches.
type Keyer interface {
	// ManifestKey identifies a parsed manifest file. Including the file's
	// modification time and size invalidates the entry when the file changes.
	ManifestKey(path string, modTime time.Time, size int64) string

	// PlanKey identifies a resolved execution plan for a composition spec
	// against a registry whose content hashes to registryFingerprint.
	PlanKey(specHash, registryFingerprint string) string
}

// DefaultKeyer hashes key components with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ManifestKey implements Keyer.
func (DefaultKeyer) ManifestKey(path string, modTime time.Time, size int64) string {
	return hashKey("manifest", path, modTime.UnixNano(), size)
}

// PlanKey implements Keyer.
func (DefaultKeyer) PlanKey(specHash, registryFingerprint string) string {
	return hashKey("plan", specHash, registryFingerprint)
}
