package gate

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate/middleware/guardware"
	"github.com/goliatone/go-router"
)

// Cookie names used by the route layer. Access cookies are per-slug so one
// browser can hold grants for several content items at once.
const (
	SessionCookieName  = "gate_session"
	AccessCookiePrefix = "gate_access_"
)

// RouteGuard adapts the Gatekeeper for go-router route layers: protected
// route middleware, cookie handling, and uniform error mapping.
type RouteGuard struct {
	gk           *Gatekeeper
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewRouteGuard wraps a Gatekeeper for HTTP wiring.
func NewRouteGuard(gk *Gatekeeper) *RouteGuard {
	a := &RouteGuard{
		gk:     gk,
		Logger: defLogger{},
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

// Protected returns middleware that admits only sessions satisfying the
// required role. Claims are stored under the "session" context key.
func (a *RouteGuard) Protected(required Role) router.MiddlewareFunc {
	return guardware.New(guardware.Config{
		Verifier:     a.gk,
		RequiredRole: string(required),
		TokenLookup:  "header:" + router.HeaderAuthorization + ",cookie:" + SessionCookieName,
		ErrorHandler: a.ErrorHandler,
	})
}

// ProtectedStepUp returns middleware for destructive operations: a valid
// session and a fresh step-up proof bound to it.
func (a *RouteGuard) ProtectedStepUp(required Role) router.MiddlewareFunc {
	return guardware.New(guardware.Config{
		Verifier:     a.gk,
		RequiredRole: string(required),
		TokenLookup:  "header:" + router.HeaderAuthorization + ",cookie:" + SessionCookieName,
		StepUp:       a.requireStepUp,
		ErrorHandler: a.ErrorHandler,
	})
}

func (a *RouteGuard) requireStepUp(_ context.Context, proof string, claims any) error {
	session, ok := claims.(*SessionClaims)
	if !ok {
		return ErrUnauthorized
	}
	return a.gk.TokenService().RequireStepUp(proof, session)
}

// SetSessionCookie stores a freshly minted session token.
func (a *RouteGuard) SetSessionCookie(c router.Context, token string, ttl time.Duration) {
	a.setCookie(c, SessionCookieName, token, ttl)
}

// ClearSessionCookie removes the session cookie.
func (a *RouteGuard) ClearSessionCookie(c router.Context) {
	a.delCookie(c, SessionCookieName)
}

// SetAccessCookie stores a bound access token for one content slug.
func (a *RouteGuard) SetAccessCookie(c router.Context, slug, token string, ttl time.Duration) {
	a.setCookie(c, AccessCookiePrefix+slug, token, ttl)
}

// AccessCookie reads the bound access token for a slug, empty when absent.
func (a *RouteGuard) AccessCookie(c router.Context, slug string) string {
	return c.Cookies(AccessCookiePrefix + slug)
}

// ClearAccessCookie removes the bound access cookie for a slug.
func (a *RouteGuard) ClearAccessCookie(c router.Context, slug string) {
	a.delCookie(c, AccessCookiePrefix+slug)
}

func (a *RouteGuard) setCookie(c router.Context, name, val string, ttl time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteGuard) delCookie(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// defaultErrHandler resolves every guard failure into an opaque response.
// Only the category picks the status; internal reasons were already logged
// where they arose and are never echoed.
func (a *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		a.Logger.Info("guard denied request: %s", err.Error())
		return c.Status(router.StatusUnauthorized).SendString("Unauthorized")
	}

	a.Logger.Info("guard denied request: category=%s text_code=%s", richErr.Category, richErr.TextCode)

	switch richErr.Category {
	case errors.CategoryRateLimit:
		return c.Status(http.StatusTooManyRequests).SendString("Too Many Requests")
	case errors.CategoryOperation:
		return c.Status(http.StatusServiceUnavailable).SendString("Service Unavailable")
	default:
		return c.Status(router.StatusUnauthorized).SendString("Unauthorized")
	}
}
