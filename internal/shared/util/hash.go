package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns the hex SHA-256 of s. Used for prompt hashes and storage namespaces.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
