package gate

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecureCompare reports whether two strings are equal without leaking their
// length or any common-prefix length through timing. Both inputs are reduced
// to canonical-length digests before the constant-time comparison, so the
// work performed is independent of input shape.
func SecureCompare(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
