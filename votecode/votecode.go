// Package votecode issues short-lived numeric codes that grant a single
// redemption against a content slug. Codes are minted with a set-if-absent
// write so concurrent mints never collide, and redeeming a code consumes it.
package votecode

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate"
)

const (
	keyCodePrefix  = "gate:vote:code:"
	keyIndexPrefix = "gate:vote:index:"

	defaultCodeLength = 6
	mintAttempts      = 10
)

func keyCode(slug, code string) string { return keyCodePrefix + slug + ":" + code }
func keyIndex(slug string) string      { return keyIndexPrefix + slug }

// Codes mints and redeems one-time numeric codes.
type Codes struct {
	kv      gate.KV
	logger  gate.Logger
	now     func() time.Time
	codeLen int
}

// New builds a code issuer over the given KV.
func New(kv gate.KV) *Codes {
	return &Codes{
		kv:      kv,
		now:     time.Now,
		codeLen: defaultCodeLength,
	}
}

// WithLogger sets the logger.
func (c *Codes) WithLogger(logger gate.Logger) *Codes {
	c.logger = logger
	return c
}

// WithCodeLength overrides the number of digits, for tests exercising a
// near-exhausted code space.
func (c *Codes) WithCodeLength(n int) *Codes {
	if n > 0 {
		c.codeLen = n
	}
	return c
}

func (c *Codes) log() gate.Logger {
	if c.logger == nil {
		return gate.DefaultLogger()
	}
	return c.logger
}

// Mint issues a fresh code for the slug, valid for ttl. The set-if-absent
// claim guarantees two concurrent mints never produce the same code; after
// bounded retries in an exhausted code space it reports a mint conflict.
func (c *Codes) Mint(ctx context.Context, slug string, ttl time.Duration) (string, error) {
	for i := 0; i < mintAttempts; i++ {
		code, err := randomDigits(c.codeLen)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate code")
		}

		ok, err := c.kv.SetNX(ctx, keyCode(slug, code), "1", ttl)
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to claim code")
		}
		if !ok {
			continue
		}

		if err := c.kv.SAdd(ctx, keyIndex(slug), code); err != nil {
			c.log().Warn("failed to index vote code for %s: %v", slug, err)
		}
		return code, nil
	}
	return "", gate.ErrMintConflict
}

// Redeem consumes a code. It succeeds at most once per minted code; expired
// and unknown codes are indistinguishable.
func (c *Codes) Redeem(ctx context.Context, slug, code string) (bool, error) {
	_, ok, err := c.kv.Get(ctx, keyCode(slug, code))
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to check code")
	}
	if !ok {
		// expired codes leave a stale index member behind; prune it here
		if err := c.kv.SRem(ctx, keyIndex(slug), code); err != nil {
			c.log().Warn("failed to unindex vote code for %s: %v", slug, err)
		}
		return false, nil
	}

	if err := c.kv.Del(ctx, keyCode(slug, code)); err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to consume code")
	}
	if err := c.kv.SRem(ctx, keyIndex(slug), code); err != nil {
		c.log().Warn("failed to unindex vote code for %s: %v", slug, err)
	}
	return true, nil
}

// RevokeAll invalidates every outstanding code for a slug.
func (c *Codes) RevokeAll(ctx context.Context, slug string) error {
	codes, err := c.kv.SMembers(ctx, keyIndex(slug))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to list codes")
	}

	for _, code := range codes {
		if err := c.kv.Del(ctx, keyCode(slug, code)); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to revoke code")
		}
		if err := c.kv.SRem(ctx, keyIndex(slug), code); err != nil {
			c.log().Warn("failed to unindex vote code for %s: %v", slug, err)
		}
	}
	return nil
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = '0' + b%10
	}
	return string(out), nil
}
