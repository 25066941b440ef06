// Package guardware provides the role-guard middleware for go-router
// applications. It extracts a bearer session token, delegates verification
// to the auth core, and resolves every failure into an opaque denial at the
// middleware boundary.
package guardware

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup      = "header:" + router.HeaderAuthorization
	ErrTokenMissingOrBroken = errors.New("missing or malformed session token")
)

// Verifier checks a raw session token against a required role, returning the
// verified claims. It mirrors the core's Gatekeeper.Verify method so this
// package never imports it.
type Verifier interface {
	Verify(ctx context.Context, raw, requiredRole string) (any, error)
}

// StepUpFunc verifies a step-up proof against already verified claims.
type StepUpFunc func(ctx context.Context, proof string, claims any) error

type Config struct {
	// Filter skips the guard entirely when it returns true.
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// Verifier is required.
	Verifier Verifier
	// RequiredRole is the role the verified session must satisfy.
	RequiredRole string

	// StepUp, when set, additionally requires a fresh elevated proof. The
	// proof is read from StepUpLookup (same syntax as TokenLookup).
	StepUp       StepUpFunc
	StepUpLookup string

	ContextKey  string
	TokenLookup string
	AuthScheme  string
}

// New builds the guard middleware. Handlers behind it can read the verified
// claims from ctx.Locals(cfg.ContextKey).
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawToken(ctx, cfg.getExtractors())
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.Verifier.Verify(ctx.Context(), raw, cfg.RequiredRole)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if cfg.StepUp != nil {
				proof, err := ExtractRawToken(ctx, GetExtractors(cfg.StepUpLookup, cfg.AuthScheme))
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
				if err := cfg.StepUp(ctx.Context(), proof, claims); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			ctx.Locals(cfg.ContextKey, claims)

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Verifier == nil {
		panic("GATE: guard middleware configuration: Verifier is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		// opaque by default: no distinction between missing, expired, and
		// revoked sessions leaves this boundary
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.Status(router.StatusUnauthorized).SendString("Unauthorized")
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.StepUpLookup == "" {
		cfg.StepUpLookup = "header:X-Step-Up-Proof"
	}

	return cfg
}

// Extractor pulls a raw token out of the request context.
type Extractor func(c router.Context) (string, error)

// ExtractRawToken runs the extractors in order, returning the first hit.
func ExtractRawToken(ctx router.Context, extractors []Extractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func (cfg *Config) getExtractors() []Extractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// GetExtractors parses a lookup string such as
// "header:Authorization,cookie:session" into extractors.
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

// tokenFromHeader returns an extractor that reads the request header,
// stripping the auth scheme when present.
func tokenFromHeader(header string, authScheme string) Extractor {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		if a == "" {
			return "", ErrTokenMissingOrBroken
		}
		scheme := strings.TrimSpace(authScheme)
		l := len(scheme)
		if l == 0 {
			return strings.TrimSpace(a), nil
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], scheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissingOrBroken
	}
}

// tokenFromQuery returns an extractor that reads the query string.
func tokenFromQuery(param string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrTokenMissingOrBroken
		}
		return token, nil
	}
}

// tokenFromCookie returns an extractor that reads the named cookie.
func tokenFromCookie(name string) Extractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrBroken
		}
		return token, nil
	}
}
