package gate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed payload of a role session. Claims are
// immutable once signed; a session ends at its expiry or earlier through
// revocation (version bump or jti marker).
type SessionClaims struct {
	jwt.RegisteredClaims
	UserRole     string `json:"role,omitempty"`
	TokenVersion int64  `json:"tkv,omitempty"`
	IP           string `json:"ip,omitempty"`
	UA           string `json:"ua,omitempty"`
}

// Role returns the session's role.
func (c *SessionClaims) Role() Role {
	return Role(c.UserRole)
}

// JTI returns the unique session identifier used for individual revocation
// and audit listing.
func (c *SessionClaims) JTI() string {
	return c.RegisteredClaims.ID
}

// Satisfies reports whether the session's role passes a guard requiring
// the given role.
func (c *SessionClaims) Satisfies(required Role) bool {
	return c.Role().Satisfies(required)
}

// Expires returns the expiration time, zero when unset.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedTime returns the issued-at time, zero when unset.
func (c *SessionClaims) IssuedTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// StepUpClaims is the signed payload of a step-up proof: a short-lived
// elevated assertion bound to the jti of the session it elevates.
type StepUpClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}
