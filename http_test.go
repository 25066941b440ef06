package gate_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-gate"
	"github.com/goliatone/go-gate/kvstore"
)

func newRouteGuard(t *testing.T) (*gate.Gatekeeper, *gate.RouteGuard) {
	t.Helper()
	gk, err := gate.New(testConfig(), kvstore.NewMemory())
	require.NoError(t, err)
	return gk, gate.NewRouteGuard(gk)
}

func TestRouteGuardErrorMapping(t *testing.T) {
	_, rg := newRouteGuard(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "rate limited maps to 429",
			err:        gate.ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantBody:   "Too Many Requests",
		},
		{
			name:       "missing config maps to 503",
			err:        gate.ErrConfigMissing,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "Service Unavailable",
		},
		{
			name:       "session denial maps to opaque 401",
			err:        gate.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Unauthorized",
		},
		{
			name:       "credential denial maps to opaque 401",
			err:        gate.ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Unauthorized",
		},
		{
			name:       "plain error maps to opaque 401",
			err:        assert.AnError,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Unauthorized",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := router.NewMockContext()

			require.NoError(t, rg.ErrorHandler(ctx, tc.err))
			assert.Equal(t, tc.wantStatus, ctx.StatusCodeM)
			assert.Equal(t, tc.wantBody, ctx.ResponseBodyM)
		})
	}
}

func TestRouteGuardProtected(t *testing.T) {
	gk, rg := newRouteGuard(t)

	token, _, err := gk.VerifyCredential(context.Background(), gate.RoleStaff, "staff-secret", gate.SessionMeta{})
	require.NoError(t, err)

	handler := rg.Protected(gate.RoleStaff)(func(ctx router.Context) error {
		return ctx.Next()
	})

	t.Run("valid session cookie admits", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("Context").Return(context.Background())
		ctx.On("GetString", "Authorization", "").Return("")
		ctx.On("Locals", "session", mock.Anything).Return(nil)
		ctx.CookiesM[gate.SessionCookieName] = token

		require.NoError(t, handler(ctx))
		assert.True(t, ctx.NextCalled)

		claims, ok := gate.GetRouterClaims(ctx, "session")
		require.True(t, ok)
		assert.Equal(t, gate.RoleStaff, claims.Role())
	})

	t.Run("garbage token gets opaque 401", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("Context").Return(context.Background())
		ctx.On("GetString", "Authorization", "").Return("")
		ctx.CookiesM[gate.SessionCookieName] = "not-a-session"

		require.NoError(t, handler(ctx))
		assert.False(t, ctx.NextCalled)
		assert.Equal(t, http.StatusUnauthorized, ctx.StatusCodeM)
		assert.Equal(t, "Unauthorized", ctx.ResponseBodyM)
	})

	t.Run("missing token gets opaque 401", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("GetString", "Authorization", "").Return("")

		require.NoError(t, handler(ctx))
		assert.False(t, ctx.NextCalled)
		assert.Equal(t, http.StatusUnauthorized, ctx.StatusCodeM)
		assert.Equal(t, "Unauthorized", ctx.ResponseBodyM)
	})
}

func TestRouteGuardCookies(t *testing.T) {
	_, rg := newRouteGuard(t)

	t.Run("session cookie round trip", func(t *testing.T) {
		ctx := router.NewMockContext()

		rg.SetSessionCookie(ctx, "session-token", time.Hour)
		assert.Equal(t, "session-token", ctx.Cookies(gate.SessionCookieName))
		assert.NotEmpty(t, ctx.ResponseHeadersM.Get("Set-Cookie"))

		rg.ClearSessionCookie(ctx)
		assert.Empty(t, ctx.Cookies(gate.SessionCookieName))
	})

	t.Run("access cookies are per slug", func(t *testing.T) {
		ctx := router.NewMockContext()

		rg.SetAccessCookie(ctx, "spring-recital", "bound-a", time.Hour)
		rg.SetAccessCookie(ctx, "winter-gala", "bound-b", time.Hour)

		assert.Equal(t, "bound-a", rg.AccessCookie(ctx, "spring-recital"))
		assert.Equal(t, "bound-b", rg.AccessCookie(ctx, "winter-gala"))

		rg.ClearAccessCookie(ctx, "spring-recital")
		assert.Empty(t, rg.AccessCookie(ctx, "spring-recital"))
		assert.Equal(t, "bound-b", rg.AccessCookie(ctx, "winter-gala"))
	})
}
