// Package docid generates public identifiers for policy documents.
package docid

import (
	"crypto/rand"
	"fmt"
)

const (
	// Prefix marks every policy document identifier.
	Prefix = "pol_"
	// randomLen is the length of the random part after the prefix.
	randomLen = 12

	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// New returns a fresh identifier of the form pol_<12 random
// lowercase-alphanumeric chars>, e.g. "pol_a1b2c3d4e5f6".
func New() (string, error) {
	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate document id: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return Prefix + string(buf), nil
}
