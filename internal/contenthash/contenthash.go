// Package contenthash computes the normalized content hash used for
// exact-duplicate detection.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lowercases content and collapses all whitespace runs into
// single spaces so trivially reformatted text hashes identically.
func Normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// Sum returns the hex SHA-256 of the normalized content.
func Sum(content string) string {
	h := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(h[:])
}
