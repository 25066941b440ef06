// Package sharelink manages per-slug access grants: opaque tokens with
// optional PIN protection, a hard expiry, and explicit revocation. Records
// keep only a hash of the token; the raw value is returned exactly once at
// mint time. Bound access tokens embed a fingerprint of the link so any
// security-relevant edit invalidates them without a blacklist.
package sharelink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Link is the stored shape of a share grant. TokenHash is the only
// token-derived artifact the store keeps.
type Link struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	TokenHash   string    `json:"token_hash"`
	PINRequired bool      `json:"pin_required"`
	PINHash     string    `json:"pin_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Revoked     bool      `json:"revoked"`
}

// Expired reports whether the link's expiry has passed at the given instant.
func (l *Link) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Active reports whether the link still grants access at the given instant.
func (l *Link) Active(now time.Time) bool {
	return !l.Revoked && !l.Expired(now)
}

// Fingerprint digests every mutable security-relevant field. Each field is
// length-prefixed so adjacent values cannot collide by concatenation. Bound
// access tokens carry this value and go stale the moment any input changes.
func (l *Link) Fingerprint() string {
	h := sha256.New()
	for _, field := range []string{
		l.TokenHash,
		strconv.FormatBool(l.PINRequired),
		l.PINHash,
		strconv.FormatInt(l.ExpiresAt.Unix(), 10),
	} {
		h.Write([]byte(strconv.Itoa(len(field))))
		h.Write([]byte(":"))
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashToken reduces a raw token to its stored artifact.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newLinkID() string {
	return uuid.New().String()
}

func newRawToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
