package gate

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
)

// Revocation markers outlive the sessions they cover by this margin so a
// marker can never lapse while its session is still inside clock skew.
const revokeMargin = 5 * time.Minute

const (
	keyRoleVersionPrefix = "gate:role:version:"
	keyRevokedJTIPrefix  = "gate:session:revoked:"
	keySessionPrefix     = "gate:session:record:"
	keySessionIndex      = "gate:session:index"
)

// SessionStatus labels a session in audit listings.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionExpired     SessionStatus = "expired"
	SessionRevoked     SessionStatus = "revoked"
	SessionInvalidated SessionStatus = "invalidated"
)

// RevocationCause is the tagged reason a session is no longer valid, so
// audit code never infers cause from marker/version combinations.
type RevocationCause string

const (
	// CauseNone marks a live session.
	CauseNone RevocationCause = ""
	// CauseExpired: the validity window elapsed.
	CauseExpired RevocationCause = "expired"
	// CauseJTIMarker: the session was individually revoked.
	CauseJTIMarker RevocationCause = "jti-marker"
	// CauseVersionBump: a role-wide version bump invalidated it.
	CauseVersionBump RevocationCause = "version-bump"
)

// SessionRecord is the durable descriptor registered at issue time. It is
// audit metadata only; authorization always re-derives validity from the
// version counter and jti markers.
type SessionRecord struct {
	JTI          string    `json:"jti"`
	Role         Role      `json:"role"`
	TokenVersion int64     `json:"token_version"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IP           string    `json:"ip,omitempty"`
	UA           string    `json:"ua,omitempty"`
}

// SessionInfo is a listed session cross-referenced with revocation state.
type SessionInfo struct {
	SessionRecord
	Status SessionStatus   `json:"status"`
	Cause  RevocationCause `json:"cause,omitempty"`
}

// Revocations owns the durable revocation state: per-role version counters,
// revoked-jti markers, and the session index. Each invariant is mutated
// through exactly one operation here.
type Revocations struct {
	kv     KV
	logger Logger
	now    func() time.Time
}

// NewRevocations returns revocation state backed by kv.
func NewRevocations(kv KV) *Revocations {
	return &Revocations{
		kv:     kv,
		logger: defLogger{},
		now:    time.Now,
	}
}

// WithLogger replaces the default logger.
func (r *Revocations) WithLogger(logger Logger) *Revocations {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithNow replaces the clock, for tests.
func (r *Revocations) WithNow(now func() time.Time) *Revocations {
	if now != nil {
		r.now = now
	}
	return r
}

// RoleVersion returns the current token version for role. The stored value
// is a zero-based bump counter; the live version is counter+1 so a role
// that has never been revoked sits at version 1 without any store write.
func (r *Revocations) RoleVersion(ctx context.Context, role Role) (int64, error) {
	raw, ok, err := r.kv.Get(ctx, keyRoleVersionPrefix+string(role))
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to read role version")
	}
	if !ok {
		return 1, nil
	}
	bumps, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "corrupt role version counter")
	}
	return bumps + 1, nil
}

// RevokeRole atomically bumps the role's version, mass-invalidating every
// outstanding session for that role in O(1). Returns the new live version.
func (r *Revocations) RevokeRole(ctx context.Context, role Role) (int64, error) {
	if !role.IsValid() {
		return 0, ErrNotFound
	}
	bumps, err := r.kv.Incr(ctx, keyRoleVersionPrefix+string(role))
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to bump role version")
	}
	return bumps + 1, nil
}

// RevokeAll bumps every role's version.
func (r *Revocations) RevokeAll(ctx context.Context) error {
	for _, role := range AllRoles() {
		if _, err := r.RevokeRole(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

// RevokeSession writes a revoked-jti marker that lives exactly as long as
// the session it covers plus the margin, so it never outlives nor underlives
// the session.
func (r *Revocations) RevokeSession(ctx context.Context, jti string, remaining time.Duration) error {
	if jti == "" {
		return ErrNotFound
	}
	if remaining < 0 {
		remaining = 0
	}
	err := r.kv.SetTTL(ctx, keyRevokedJTIPrefix+jti, "1", remaining+revokeMargin)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write revocation marker")
	}
	return nil
}

// IsSessionRevoked reports whether an individual revocation marker exists
// for jti. Errors propagate so authorization paths can fail closed.
func (r *Revocations) IsSessionRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := r.kv.Exists(ctx, keyRevokedJTIPrefix+jti)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to check revocation marker")
	}
	return revoked, nil
}

// RegisterSession records a newly issued session in the index. The record
// expires with the session (plus margin); ListSessions prunes index members
// whose record is gone, which keeps the index bounded by live sessions.
func (r *Revocations) RegisterSession(ctx context.Context, claims *SessionClaims) error {
	record := SessionRecord{
		JTI:          claims.JTI(),
		Role:         claims.Role(),
		TokenVersion: claims.TokenVersion,
		IssuedAt:     claims.IssuedTime(),
		ExpiresAt:    claims.Expires(),
		IP:           claims.IP,
		UA:           claims.UA,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode session record")
	}

	ttl := record.ExpiresAt.Sub(r.now()) + revokeMargin
	if err := r.kv.SetTTL(ctx, keySessionPrefix+record.JTI, string(payload), ttl); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store session record")
	}
	if err := r.kv.SAdd(ctx, keySessionIndex, record.JTI); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to index session")
	}
	return nil
}

// SessionRemaining returns how long a registered session still has to live.
// Unknown sessions report zero remaining, not an error, so revocation of an
// unindexed jti still writes a minimum-lifetime marker.
func (r *Revocations) SessionRemaining(ctx context.Context, jti string) (time.Duration, error) {
	raw, ok, err := r.kv.Get(ctx, keySessionPrefix+jti)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to read session record")
	}
	if !ok {
		return 0, nil
	}
	var record SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return 0, nil
	}
	remaining := record.ExpiresAt.Sub(r.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ListSessions returns a best-effort view of registered sessions labeled with
// their derived status. It is audit output only and must never be consulted
// for authorization; store errors degrade to partial or empty results.
func (r *Revocations) ListSessions(ctx context.Context) []SessionInfo {
	jtis, err := r.kv.SMembers(ctx, keySessionIndex)
	if err != nil {
		r.logger.Warn("session listing degraded: %v", err)
		return nil
	}

	versions := map[Role]int64{}
	now := r.now()

	sessions := make([]SessionInfo, 0, len(jtis))
	for _, jti := range jtis {
		raw, ok, err := r.kv.Get(ctx, keySessionPrefix+jti)
		if err != nil {
			r.logger.Warn("session listing skipped record %s: %v", jti, err)
			continue
		}
		if !ok {
			// record expired out from under the index entry; prune it so
			// the index stays bounded by live sessions
			if err := r.kv.SRem(ctx, keySessionIndex, jti); err != nil {
				r.logger.Warn("session listing could not prune stale index entry %s: %v", jti, err)
			}
			continue
		}

		var record SessionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			r.logger.Warn("session listing skipped corrupt record %s", jti)
			continue
		}

		info := SessionInfo{SessionRecord: record, Status: SessionActive, Cause: CauseNone}

		switch {
		case r.markerPresent(ctx, jti):
			info.Status = SessionRevoked
			info.Cause = CauseJTIMarker
		case now.After(record.ExpiresAt):
			info.Status = SessionExpired
			info.Cause = CauseExpired
		case record.TokenVersion != r.cachedVersion(ctx, versions, record.Role):
			info.Status = SessionInvalidated
			info.Cause = CauseVersionBump
		}

		sessions = append(sessions, info)
	}

	return sessions
}

func (r *Revocations) markerPresent(ctx context.Context, jti string) bool {
	revoked, err := r.IsSessionRevoked(ctx, jti)
	if err != nil {
		r.logger.Warn("session listing could not check marker for %s: %v", jti, err)
		return false
	}
	return revoked
}

func (r *Revocations) cachedVersion(ctx context.Context, cache map[Role]int64, role Role) int64 {
	if v, ok := cache[role]; ok {
		return v
	}
	v, err := r.RoleVersion(ctx, role)
	if err != nil {
		r.logger.Warn("session listing could not read role version for %s: %v", role, err)
		v = 1
	}
	cache[role] = v
	return v
}
