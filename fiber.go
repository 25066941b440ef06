package gate

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// FiberGuard returns a fiber middleware guarding routes with the required
// role, for hosts that mount the gatekeeper on fiber directly instead of
// go-router. Verified claims are stored under the "session" local.
func FiberGuard(gk *Gatekeeper, required Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := fiberToken(c)

		claims, err := gk.Guard(c.UserContext(), raw, required)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		c.Locals("session", claims)
		return c.Next()
	}
}

// SessionFromFiber reads the claims a FiberGuard stored for this request.
func SessionFromFiber(c *fiber.Ctx) (*SessionClaims, bool) {
	claims, ok := c.Locals("session").(*SessionClaims)
	return claims, ok
}

func fiberToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header != "" {
		const scheme = "Bearer"
		if len(header) > len(scheme)+1 && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}
	return c.Cookies(SessionCookieName)
}
