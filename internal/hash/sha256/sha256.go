// Package sha256 derives dedup keys with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// sep cannot occur in normalized URLs and is unlikely in field text.
const sep = 0x1f

// Hasher implements scraper.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Key joins parts with a unit separator and hashes the result, so ("ab", "c")
// and ("a", "bc") produce different keys.
func Key(parts ...string) []byte {
	n := len(parts)
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, sep)
		}
		buf = append(buf, p...)
	}
	return buf
}
