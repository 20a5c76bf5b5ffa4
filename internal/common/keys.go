package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashedKey builds a Redis key under namespace from the SHA-256 of parts.
// Parts are NUL separated so ("ab", "c") and ("a", "bc") never collide.
func HashedKey(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
