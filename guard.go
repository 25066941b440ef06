package gate

import (
	"context"
	"time"
)

// Gatekeeper composes the token service, revocation state, and credential
// verifier behind the operations route layers consume. Construct it once at
// startup and share it across handlers; it holds no per-request state.
type Gatekeeper struct {
	cfg         *Config
	kv          KV
	revocations *Revocations
	tokens      *TokenServiceImpl
	verifier    *CredentialVerifier
	logger      Logger
	audit       AuditSink
}

// New validates cfg and wires a Gatekeeper over the given store. A config
// missing any secret or the signing key is rejected outright.
func New(cfg *Config, kv KV) (*Gatekeeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := Logger(defLogger{})
	revocations := NewRevocations(kv).WithLogger(logger)
	tokens := NewTokenService(cfg, revocations, logger)

	return &Gatekeeper{
		cfg:         cfg,
		kv:          kv,
		revocations: revocations,
		tokens:      tokens,
		verifier:    NewCredentialVerifier(cfg, kv, tokens),
		logger:      logger,
		audit:       noopAuditSink{},
	}, nil
}

// WithLogger replaces the logger on the gatekeeper and its components.
func (g *Gatekeeper) WithLogger(logger Logger) *Gatekeeper {
	if logger == nil {
		return g
	}
	g.logger = logger
	g.revocations.WithLogger(logger)
	g.tokens.logger = logger
	g.verifier.WithLogger(logger)
	return g
}

// WithAuditSink configures an AuditSink for auth events.
func (g *Gatekeeper) WithAuditSink(sink AuditSink) *Gatekeeper {
	g.audit = normalizeAuditSink(sink)
	g.verifier.WithAuditSink(g.audit)
	return g
}

// WithNow replaces the clock on every component, for tests.
func (g *Gatekeeper) WithNow(now func() time.Time) *Gatekeeper {
	if now == nil {
		return g
	}
	g.tokens.WithNow(now)
	g.verifier.now = now
	return g
}

// TokenService exposes the underlying token service.
func (g *Gatekeeper) TokenService() *TokenServiceImpl {
	return g.tokens
}

// Revocations exposes the underlying revocation state.
func (g *Gatekeeper) Revocations() *Revocations {
	return g.revocations
}

// Guard is the per-request gate: it verifies the raw token against the
// required role and returns the session claims, or an opaque denial. Store
// failures on this path deny.
func (g *Gatekeeper) Guard(ctx context.Context, raw string, required Role) (*SessionClaims, error) {
	return g.tokens.VerifySession(ctx, raw, required)
}

// GuardStepUp gates destructive operations: the session must verify against
// the required role and the proof must be a fresh step-up bound to that
// session's jti.
func (g *Gatekeeper) GuardStepUp(ctx context.Context, rawSession, rawProof string, required Role) (*SessionClaims, error) {
	claims, err := g.tokens.VerifySession(ctx, rawSession, required)
	if err != nil {
		return nil, err
	}
	if err := g.tokens.RequireStepUp(rawProof, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyCredential checks a role's shared secret and mints a session.
func (g *Gatekeeper) VerifyCredential(ctx context.Context, role Role, secret string, meta SessionMeta) (string, *SessionClaims, error) {
	return g.verifier.VerifyCredential(ctx, role, secret, meta)
}

// ElevateCredential re-verifies the credential for an active session and
// issues a step-up proof.
func (g *Gatekeeper) ElevateCredential(ctx context.Context, session *SessionClaims, secret string) (string, error) {
	return g.verifier.ElevateCredential(ctx, session, secret)
}

// RevokeTarget is accepted by Revoke alongside the role names.
const RevokeTargetAll = "all"

// Revoke mass-invalidates sessions: a role name bumps that role's version,
// "all" bumps every role.
func (g *Gatekeeper) Revoke(ctx context.Context, target string) error {
	if target == RevokeTargetAll {
		if err := g.revocations.RevokeAll(ctx); err != nil {
			return err
		}
		g.emit(ctx, AuditRoleRevoked, "", "", map[string]any{"target": RevokeTargetAll})
		return nil
	}

	role, ok := ParseRole(target)
	if !ok {
		return ErrNotFound
	}
	if _, err := g.revocations.RevokeRole(ctx, role); err != nil {
		return err
	}
	g.emit(ctx, AuditRoleRevoked, role, "", nil)
	return nil
}

// RevokeSession revokes a single session by jti. The marker's lifetime is
// derived from the registered session record so it covers exactly the
// session's remaining validity plus margin.
func (g *Gatekeeper) RevokeSession(ctx context.Context, jti string) error {
	remaining, err := g.revocations.SessionRemaining(ctx, jti)
	if err != nil {
		return err
	}
	if err := g.revocations.RevokeSession(ctx, jti, remaining); err != nil {
		return err
	}
	g.emit(ctx, AuditSessionRevoked, "", jti, nil)
	return nil
}

// ListSessions returns the best-effort audit view of registered sessions.
func (g *Gatekeeper) ListSessions(ctx context.Context) []SessionInfo {
	return g.revocations.ListSessions(ctx)
}

// Verify adapts the token service for the guardware middleware: it checks
// raw against requiredRole and returns the claims as an opaque value.
func (g *Gatekeeper) Verify(ctx context.Context, raw, requiredRole string) (any, error) {
	claims, err := g.tokens.VerifySession(ctx, raw, Role(requiredRole))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (g *Gatekeeper) emit(ctx context.Context, eventType AuditEventType, role Role, jti string, metadata map[string]any) {
	event := AuditEvent{
		EventType:  eventType,
		Role:       role,
		JTI:        jti,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := g.audit.Record(ctx, event); err != nil {
		g.logger.Warn("audit sink record error: %v", err)
	}
}
