// Package fingerprint computes content fingerprints for uploaded files.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the SHA-256 hex digest of content. Byte-identical
// inputs always produce the same fingerprint, which is what the
// document store deduplicates on.
func Sum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
