package gate

import (
	"github.com/goliatone/go-errors"
)

// Text codes surfaced alongside error categories. API layers key their
// responses off these, never off internal denial reasons.
const (
	TextCodeConfigMissing   = "SERVICE_UNAVAILABLE"
	TextCodeUnauthenticated = "INVALID_CREDENTIALS"
	TextCodeUnauthorized    = "UNAUTHORIZED"
	TextCodeRateLimited     = "TOO_MANY_ATTEMPTS"
	TextCodeNotFound        = "NOT_FOUND"
	TextCodeLinkNotActive   = "LINK_NOT_ACTIVE"
	TextCodeMintConflict    = "MINT_CONFLICT"
)

// ErrConfigMissing signals required configuration (secrets, signing key) was
// not resolved at startup. Callers must treat it as service-unavailable,
// never as a prompt to fall back to defaults.
var ErrConfigMissing = errors.New("required configuration is missing", errors.CategoryOperation).
	WithTextCode(TextCodeConfigMissing)

// ErrUnauthenticated is returned when a presented credential does not match.
var ErrUnauthenticated = errors.New("invalid credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthenticated)

// ErrUnauthorized is the single external face of every session denial:
// missing, malformed, expired, revoked, and role mismatches all surface as
// this error so callers cannot distinguish them.
var ErrUnauthorized = errors.New("unauthorized", errors.CategoryAuthz).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthorized)

// ErrRateLimited rejects a burst of verify attempts before any comparison
// work happens.
var ErrRateLimited = errors.New("too many attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrNotFound covers unknown links, slugs, and session ids.
var ErrNotFound = errors.New("record not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound).
	WithTextCode(TextCodeNotFound)

// ErrLinkNotActive rejects mutations of expired or revoked share links.
// The record is immutable in those states except via delete.
var ErrLinkNotActive = errors.New("link is expired or revoked", errors.CategoryConflict).
	WithTextCode(TextCodeLinkNotActive)

// ErrMintConflict is surfaced after bounded retries when token or code
// minting keeps colliding on set-if-absent.
var ErrMintConflict = errors.New("could not mint a unique token", errors.CategoryConflict).
	WithCode(errors.CodeConflict).
	WithTextCode(TextCodeMintConflict)

// IsRateLimited reports whether err carries the rate-limit category.
func IsRateLimited(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryRateLimit
}

// IsDenied reports whether err is an authentication or authorization denial.
func IsDenied(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth || richErr.Category == errors.CategoryAuthz
}
