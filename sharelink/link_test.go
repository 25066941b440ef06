package sharelink_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-gate/sharelink"
)

func baseLink() *sharelink.Link {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &sharelink.Link{
		ID:          "link-1",
		Slug:        "spring-recital",
		TokenHash:   sharelink.HashToken("raw-token"),
		PINRequired: false,
		CreatedAt:   created,
		ExpiresAt:   created.AddDate(0, 0, 7),
	}
}

// Every mutable security-relevant field must move the fingerprint; a field
// that does not would let stale bound tokens survive an edit.
func TestFingerprintCoversEveryMutableField(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(l *sharelink.Link)
	}{
		{"token hash", func(l *sharelink.Link) { l.TokenHash = sharelink.HashToken("other-token") }},
		{"pin required", func(l *sharelink.Link) { l.PINRequired = true }},
		{"pin hash", func(l *sharelink.Link) { l.PINHash = "$2a$10$different" }},
		{"expires at", func(l *sharelink.Link) { l.ExpiresAt = l.ExpiresAt.Add(24 * time.Hour) }},
	}

	base := baseLink().Fingerprint()
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			link := baseLink()
			tt.mutate(link)
			assert.NotEqual(t, base, link.Fingerprint())
		})
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t, baseLink().Fingerprint(), baseLink().Fingerprint())
}

func TestFingerprintFieldsDoNotCollide(t *testing.T) {
	// length-prefixing keeps adjacent fields from bleeding into each other
	a := baseLink()
	a.TokenHash = "ab"
	a.PINHash = "c"

	b := baseLink()
	b.TokenHash = "a"
	b.PINHash = "bc"

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestLinkLifecyclePredicates(t *testing.T) {
	link := baseLink()
	now := link.CreatedAt

	assert.True(t, link.Active(now))
	assert.False(t, link.Expired(now))

	at := link.ExpiresAt
	assert.True(t, link.Expired(at))
	assert.False(t, link.Active(at))

	link = baseLink()
	link.Revoked = true
	assert.False(t, link.Active(now))
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, sharelink.HashToken("x"), sharelink.HashToken("x"))
	assert.NotEqual(t, sharelink.HashToken("x"), sharelink.HashToken("y"))
	assert.Len(t, sharelink.HashToken("x"), 64)
}
