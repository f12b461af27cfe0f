// Package sha256 provides SHA-256 digests used to derive cache file names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key digests a cache key into a deterministic filesystem-safe name.
func Key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
