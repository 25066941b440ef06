package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DenyReason is the internal label of the first failing session check. It is
// logged with context and never surfaces externally: every denial leaves the
// package as ErrUnauthorized so callers cannot distinguish expired from
// revoked sessions.
type DenyReason string

const (
	DenyMissing      DenyReason = "missing"
	DenyMalformed    DenyReason = "malformed"
	DenyExpired      DenyReason = "expired"
	DenyRevoked      DenyReason = "revoked"
	DenyRoleMismatch DenyReason = "role-mismatch"
)

// TokenService signs and verifies role session tokens.
type TokenService interface {
	IssueSession(ctx context.Context, role Role, meta SessionMeta) (string, *SessionClaims, error)
	VerifySession(ctx context.Context, raw string, required Role) (*SessionClaims, error)
}

// TokenServiceImpl implements TokenService over a shared HS256 signing key
// and the durable revocation state.
type TokenServiceImpl struct {
	signingKey  []byte
	issuer      string
	sessionTTL  time.Duration
	stepUpTTL   time.Duration
	revocations *Revocations
	logger      Logger
	now         func() time.Time
}

// NewTokenService creates a TokenService bound to the given config and
// revocation state.
func NewTokenService(cfg *Config, revocations *Revocations, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:  cfg.SigningKey,
		issuer:      cfg.Issuer,
		sessionTTL:  cfg.SessionTTL,
		stepUpTTL:   cfg.StepUpTTL,
		revocations: revocations,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (ts *TokenServiceImpl) WithNow(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
		ts.revocations.WithNow(now)
	}
	return ts
}

// IssueSession mints a session for role: it generates a fresh jti, stamps the
// role's current token version into the claims, signs them, and registers the
// jti in the session index with the session's lifetime.
func (ts *TokenServiceImpl) IssueSession(ctx context.Context, role Role, meta SessionMeta) (string, *SessionClaims, error) {
	if !role.IsValid() {
		return "", nil, errors.New("cannot issue session for unknown role", errors.CategoryBadInput)
	}

	version, err := ts.revocations.RoleVersion(ctx, role)
	if err != nil {
		return "", nil, err
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   string(role),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.sessionTTL)),
		},
		UserRole:     string(role),
		TokenVersion: version,
		IP:           meta.IP,
		UA:           meta.UA,
	}

	signed, err := ts.sign(claims)
	if err != nil {
		return "", nil, err
	}

	if err := ts.revocations.RegisterSession(ctx, claims); err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

// VerifySession checks a raw session token against the required role. All
// failures collapse into ErrUnauthorized; the first failing check's reason is
// logged, never returned.
func (ts *TokenServiceImpl) VerifySession(ctx context.Context, raw string, required Role) (*SessionClaims, error) {
	claims, reason, err := ts.verifySession(ctx, raw, required)
	if reason != "" || err != nil {
		ts.logger.Debug("session denied: reason=%s required=%s err=%v", reason, required, err)
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// verifySession runs the check pipeline in its fixed order: syntax,
// signature, role satisfaction, expiry, version match, jti marker. Store
// errors on this path deny; verification never degrades open.
func (ts *TokenServiceImpl) verifySession(ctx context.Context, raw string, required Role) (*SessionClaims, DenyReason, error) {
	if raw == "" {
		return nil, DenyMissing, nil
	}

	// Claims validation is deferred so expiry and revocation run in the
	// documented order below; the parser only checks syntax and signature.
	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, ts.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, DenyMalformed, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, DenyMalformed, nil
	}

	if !claims.Satisfies(required) {
		return nil, DenyRoleMismatch, nil
	}

	if claims.RegisteredClaims.ExpiresAt == nil || !ts.now().Before(claims.Expires()) {
		return nil, DenyExpired, nil
	}

	version, err := ts.revocations.RoleVersion(ctx, claims.Role())
	if err != nil {
		return nil, DenyRevoked, err
	}
	if claims.TokenVersion != version {
		return nil, DenyRevoked, nil
	}

	revoked, err := ts.revocations.IsSessionRevoked(ctx, claims.JTI())
	if err != nil {
		return nil, DenyRevoked, err
	}
	if revoked {
		return nil, DenyRevoked, nil
	}

	return claims, "", nil
}

// IssueStepUp mints a short-lived elevated proof bound to the given session's
// jti. Proofs are only reachable through the credential verify flow, so a
// stolen long-lived session alone cannot produce one.
func (ts *TokenServiceImpl) IssueStepUp(session *SessionClaims) (string, error) {
	if session == nil || session.JTI() == "" {
		return "", errors.New("step-up requires an active session", errors.CategoryBadInput)
	}

	now := ts.now()
	claims := &StepUpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   session.UserRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.stepUpTTL)),
		},
		SessionID: session.JTI(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign step-up proof")
	}
	return signed, nil
}

// RequireStepUp verifies that raw is a fresh step-up proof bound to the same
// jti as the active session. Like session verification, every failure is an
// opaque ErrUnauthorized.
func (ts *TokenServiceImpl) RequireStepUp(raw string, session *SessionClaims) error {
	if session == nil || raw == "" {
		return ErrUnauthorized
	}

	token, err := jwt.ParseWithClaims(raw, &StepUpClaims{}, ts.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil {
		ts.logger.Debug("step-up denied: reason=%s err=%v", DenyMalformed, err)
		return ErrUnauthorized
	}

	claims, ok := token.Claims.(*StepUpClaims)
	if !ok {
		return ErrUnauthorized
	}

	if claims.RegisteredClaims.ExpiresAt == nil || !ts.now().Before(claims.RegisteredClaims.ExpiresAt.Time) {
		ts.logger.Debug("step-up denied: reason=%s", DenyExpired)
		return ErrUnauthorized
	}

	if !SecureCompare(claims.SessionID, session.JTI()) {
		ts.logger.Debug("step-up denied: reason=%s", DenyRoleMismatch)
		return ErrUnauthorized
	}

	return nil
}

func (ts *TokenServiceImpl) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session")
	}
	return signed, nil
}

func (ts *TokenServiceImpl) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("token verification met unexpected signing method: %v", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return ts.signingKey, nil
}
