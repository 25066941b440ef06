package sharelink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-gate"
	"github.com/goliatone/go-gate/sharelink"
)

func TestSignAndVerifyAccessToken(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "recital", sharelink.CreateInput{ExpiresInDays: 7})
	require.NoError(t, err)

	bound, err := store.SignAccessToken(link)
	require.NoError(t, err)
	require.NotEmpty(t, bound)

	assert.True(t, store.VerifyAccessToken(ctx, "recital", bound))
	assert.False(t, store.VerifyAccessToken(ctx, "other-slug", bound))
	assert.False(t, store.VerifyAccessToken(ctx, "recital", "garbage"))
}

func TestBoundTokenInvalidatedByPINToggle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "gala", sharelink.CreateInput{ExpiresInDays: 7})
	require.NoError(t, err)

	bound, err := store.SignAccessToken(link)
	require.NoError(t, err)
	require.True(t, store.VerifyAccessToken(ctx, "gala", bound))

	_, _, err = store.Update(ctx, "gala", link.ID, sharelink.UpdateInput{
		PINRequired: boolPtr(true),
		PIN:         strPtr("2468"),
	})
	require.NoError(t, err)

	// no store write touched the token; validity is derived from the
	// fingerprint alone
	assert.False(t, store.VerifyAccessToken(ctx, "gala", bound))
}

func TestBoundTokenInvalidatedByRotation(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "gala", sharelink.CreateInput{ExpiresInDays: 7})
	require.NoError(t, err)

	bound, err := store.SignAccessToken(link)
	require.NoError(t, err)
	require.True(t, store.VerifyAccessToken(ctx, "gala", bound))

	rotated, _, err := store.Update(ctx, "gala", link.ID, sharelink.UpdateInput{RotateToken: true})
	require.NoError(t, err)

	assert.False(t, store.VerifyAccessToken(ctx, "gala", bound))

	fresh, err := store.SignAccessToken(rotated)
	require.NoError(t, err)
	assert.True(t, store.VerifyAccessToken(ctx, "gala", fresh))
}

func TestBoundTokenNeverOutlivesLink(t *testing.T) {
	store, tick := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "gala", sharelink.CreateInput{ExpiresInDays: 1})
	require.NoError(t, err)

	bound, err := store.SignAccessToken(link)
	require.NoError(t, err)
	require.True(t, store.VerifyAccessToken(ctx, "gala", bound))

	tick.Advance(48 * time.Hour)
	assert.False(t, store.VerifyAccessToken(ctx, "gala", bound))
}

func TestSignAccessTokenRejectsDeadLink(t *testing.T) {
	store, tick := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "gala", sharelink.CreateInput{ExpiresInDays: 1})
	require.NoError(t, err)

	tick.Advance(48 * time.Hour)
	_, err = store.SignAccessToken(link)
	assert.ErrorIs(t, err, gate.ErrLinkNotActive)
}

func TestSignAccessTokenRequiresSigner(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	link, _, err := store.Create(ctx, "gala", sharelink.CreateInput{ExpiresInDays: 7})
	require.NoError(t, err)

	bare := sharelink.NewStore(nil)
	_, err = bare.SignAccessToken(link)
	assert.ErrorIs(t, err, gate.ErrConfigMissing)
	assert.False(t, bare.VerifyAccessToken(ctx, "gala", "anything"))
}

// Full grant lifecycle across a clock advance: expiry kills both access
// paths, a renewing rotation revives the link, and only the fresh token
// grants afterward.
func TestShareLinkLifecycleEndToEnd(t *testing.T) {
	store, tick := newStore(t)
	ctx := context.Background()

	link, oldToken, err := store.Create(ctx, "season-finale", sharelink.CreateInput{ExpiresInDays: 1})
	require.NoError(t, err)

	decision, err := store.VerifyAccess(ctx, sharelink.AccessRequest{Slug: "season-finale", Token: oldToken})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	bound, err := store.SignAccessToken(decision.Link)
	require.NoError(t, err)
	require.True(t, store.VerifyAccessToken(ctx, "season-finale", bound))

	tick.Advance(48 * time.Hour)

	decision, err = store.VerifyAccess(ctx, sharelink.AccessRequest{Slug: "season-finale", Token: oldToken})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.False(t, store.VerifyAccessToken(ctx, "season-finale", bound))

	_, _, err = store.Update(ctx, "season-finale", link.ID, sharelink.UpdateInput{PINRequired: boolPtr(true), PIN: strPtr("1234")})
	assert.ErrorIs(t, err, gate.ErrLinkNotActive)

	renewed, newToken, err := store.Update(ctx, "season-finale", link.ID, sharelink.UpdateInput{
		RotateToken:   true,
		ExpiresInDays: intPtr(7),
	})
	require.NoError(t, err)
	require.NotEmpty(t, newToken)
	assert.True(t, renewed.Active(tick.Now()))

	decision, err = store.VerifyAccess(ctx, sharelink.AccessRequest{Slug: "season-finale", Token: newToken})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = store.VerifyAccess(ctx, sharelink.AccessRequest{Slug: "season-finale", Token: oldToken})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
