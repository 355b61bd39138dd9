package crypto

import (
	"crypto/rand"
	"crypto/subtle"
)

// SaltSize and KeySize are the conventional lengths for Random's two named
// helpers, per spec.md section 4.1.
const (
	SaltSize = 16
	KeySize  = 32
)

// Random returns n cryptographically strong random bytes.
func Random(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomSalt returns a 16-byte random salt.
func RandomSalt() ([]byte, error) {
	return Random(SaltSize)
}

// RandomKey returns a 32-byte random key, suitable as a UserKey or
// ProtectionKey.
func RandomKey() ([]byte, error) {
	return Random(KeySize)
}

// ConstantTimeEqual reports whether a and b hold the same bytes, in time
// independent of where they first differ. Unequal-length slices are never
// equal but are still compared in constant time relative to their shared
// prefix.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// subtle.ConstantTimeCompare already handles a length mismatch by
		// returning 0 without touching memory beyond each slice's own
		// length, so no separate branch is needed here for correctness;
		// the explicit check only avoids allocating a padded copy.
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites buf with zero bytes. Best-effort: the Go memory model
// does not guarantee the compiler cannot elide a dead store, but keeping a
// plain byte-by-byte loop is the same best-effort the ecosystem uses in the
// absence of a pinned-memory allocator.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
