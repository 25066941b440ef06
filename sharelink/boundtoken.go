package sharelink

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate"
)

type accessClaims struct {
	jwt.RegisteredClaims
	Slug        string `json:"slug"`
	Fingerprint string `json:"fp"`
}

// TokenSigner mints and checks bound access tokens. A token carries the
// slug and the link's fingerprint at signing time; it stays valid only
// while the link's current fingerprint still matches, so edits to the link
// invalidate outstanding tokens with no store write.
type TokenSigner struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewTokenSigner builds a signer from the shared signing key.
func NewTokenSigner(signingKey []byte, issuer string) *TokenSigner {
	return &TokenSigner{
		signingKey: signingKey,
		issuer:     issuer,
		now:        time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (t *TokenSigner) WithNow(now func() time.Time) *TokenSigner {
	if now != nil {
		t.now = now
	}
	return t
}

// Sign issues a bound token for the link. The token never outlives the
// link itself.
func (t *TokenSigner) Sign(link *Link) (string, error) {
	now := t.now()
	if !link.Active(now) {
		return "", gate.ErrLinkNotActive
	}

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(link.ExpiresAt),
		},
		Slug:        link.Slug,
		Fingerprint: link.Fingerprint(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}
	return signed, nil
}

// Verify reports whether a raw token is valid for the slug and the given
// current fingerprint.
func (t *TokenSigner) Verify(slug, raw, fingerprint string) bool {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth)
		}
		return t.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return false
	}

	if claims.ExpiresAt == nil || !t.now().Before(claims.ExpiresAt.Time) {
		return false
	}
	if claims.Slug != slug {
		return false
	}
	return gate.SecureCompare(claims.Fingerprint, fingerprint)
}

// SignAccessToken mints a bound token for a verified link.
func (s *Store) SignAccessToken(link *Link) (string, error) {
	if s.signer == nil {
		return "", gate.ErrConfigMissing
	}
	return s.signer.Sign(link)
}

// VerifyAccessToken reports whether a previously issued bound token still
// matches one of the slug's active links. Store failures fail closed.
func (s *Store) VerifyAccessToken(ctx context.Context, slug, raw string) bool {
	if s.signer == nil {
		return false
	}

	links, err := s.List(ctx, slug)
	if err != nil {
		s.log().Warn("access token check failed to list links for %s: %v", slug, err)
		return false
	}

	now := s.now()
	for _, link := range links {
		if !link.Active(now) {
			continue
		}
		if s.signer.Verify(slug, raw, link.Fingerprint()) {
			return true
		}
	}
	return false
}
