package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
)

const keyRateLimitPrefix = "gate:ratelimit:verify:"

// CredentialVerifier is the sole path that mints primary sessions and
// step-up proofs. It rate limits before doing any comparison work, then
// compares the presented secret against the configured one over
// canonical-length digests so failure latency is uniform.
type CredentialVerifier struct {
	cfg    *Config
	kv     KV
	tokens *TokenServiceImpl
	logger Logger
	audit  AuditSink
	now    func() time.Time
}

// NewCredentialVerifier wires the verify endpoint core.
func NewCredentialVerifier(cfg *Config, kv KV, tokens *TokenServiceImpl) *CredentialVerifier {
	return &CredentialVerifier{
		cfg:    cfg,
		kv:     kv,
		tokens: tokens,
		logger: defLogger{},
		audit:  noopAuditSink{},
		now:    time.Now,
	}
}

// WithLogger replaces the default logger.
func (v *CredentialVerifier) WithLogger(logger Logger) *CredentialVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithAuditSink configures an AuditSink for verify outcomes.
func (v *CredentialVerifier) WithAuditSink(sink AuditSink) *CredentialVerifier {
	v.audit = normalizeAuditSink(sink)
	return v
}

// VerifyCredential checks the role's shared secret and mints a session on
// match. Bursts are rejected before any comparison happens; a mismatch has
// no side effect beyond the limiter counter.
func (v *CredentialVerifier) VerifyCredential(ctx context.Context, role Role, secret string, meta SessionMeta) (string, *SessionClaims, error) {
	if err := v.checkSecret(ctx, role, secret, meta); err != nil {
		return "", nil, err
	}

	token, claims, err := v.tokens.IssueSession(ctx, role, meta)
	if err != nil {
		return "", nil, err
	}

	v.emit(ctx, AuditVerifySuccess, role, claims.JTI(), nil)
	return token, claims, nil
}

// ElevateCredential re-verifies the role credential for an already active
// session and issues a step-up proof bound to that session's jti. This is
// the only way to (re)acquire step-up.
func (v *CredentialVerifier) ElevateCredential(ctx context.Context, session *SessionClaims, secret string) (string, error) {
	if session == nil {
		return "", ErrUnauthorized
	}

	role := session.Role()
	if err := v.checkSecret(ctx, role, secret, SessionMeta{IP: session.IP, UA: session.UA}); err != nil {
		return "", err
	}

	proof, err := v.tokens.IssueStepUp(session)
	if err != nil {
		return "", err
	}

	v.emit(ctx, AuditStepUpIssued, role, session.JTI(), nil)
	return proof, nil
}

func (v *CredentialVerifier) checkSecret(ctx context.Context, role Role, secret string, meta SessionMeta) error {
	if !role.IsValid() {
		return ErrUnauthenticated
	}

	if err := v.allow(ctx, role, meta.IP); err != nil {
		return err
	}

	want, ok := v.cfg.Secret(role)
	if !ok {
		// missing secret is a configuration defect; deny
		return ErrConfigMissing
	}

	if !SecureCompare(want, secret) {
		v.emit(ctx, AuditVerifyFailure, role, "", map[string]any{"ip": meta.IP})
		return ErrUnauthenticated
	}

	return nil
}

// allow enforces a fixed-window limit per (role, ip). The counter is the only
// state failed attempts touch. Store errors deny: this path is
// authorization-critical and must fail closed.
func (v *CredentialVerifier) allow(ctx context.Context, role Role, ip string) error {
	key := fmt.Sprintf("%s%s:%s", keyRateLimitPrefix, role, ip)

	count, err := v.kv.Incr(ctx, key)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "rate limiter unavailable")
	}

	if count == 1 {
		if err := v.kv.Expire(ctx, key, v.cfg.RateLimitWindow); err != nil {
			// the counter persists past its window, which only over-limits
			v.logger.Warn("could not set rate limit window: %v", err)
		}
	}

	if count > int64(v.cfg.RateLimitMax) {
		v.emit(ctx, AuditVerifyFailure, role, "", map[string]any{"ip": ip, "rate_limited": true})
		return ErrRateLimited
	}

	return nil
}

func (v *CredentialVerifier) emit(ctx context.Context, eventType AuditEventType, role Role, jti string, metadata map[string]any) {
	event := AuditEvent{
		EventType:  eventType,
		Role:       role,
		JTI:        jti,
		Metadata:   metadata,
		OccurredAt: v.now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := v.audit.Record(ctx, event); err != nil {
		v.logger.Warn("audit sink record error: %v", err)
	}
}
