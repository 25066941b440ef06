package gate

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

// Default windows. Session and step-up lifetimes are deliberately far apart:
// a stolen session alone must never unlock destructive operations.
const (
	DefaultSessionTTL      = 12 * time.Hour
	DefaultStepUpTTL       = 5 * time.Minute
	DefaultRateLimitMax    = 10
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultIssuer          = "go-gate"
)

// Environment variable names resolved by ConfigFromEnv.
const (
	EnvSigningKey   = "GATE_SIGNING_KEY"
	EnvSecretAdmin  = "GATE_SECRET_ADMIN"
	EnvSecretStaff  = "GATE_SECRET_STAFF"
	EnvSecretUpload = "GATE_SECRET_UPLOAD"
	EnvSecretCron   = "GATE_SECRET_CRON"
	EnvSessionTTL   = "GATE_SESSION_TTL"
	EnvStepUpTTL    = "GATE_STEPUP_TTL"
	EnvIssuer       = "GATE_ISSUER"
)

// Config holds everything the core resolves once at process start. It is
// treated as immutable after Validate passes; components receive it by
// injection and never read the environment themselves.
type Config struct {
	// SigningKey signs sessions, step-up proofs, and bound access tokens.
	SigningKey []byte
	// Secrets maps each role to its shared credential.
	Secrets map[Role]string
	// Issuer is stamped into every signed token.
	Issuer string
	// SessionTTL bounds primary sessions.
	SessionTTL time.Duration
	// StepUpTTL bounds step-up proofs.
	StepUpTTL time.Duration
	// RateLimitMax attempts per RateLimitWindow per (role, ip) on the
	// verify endpoint.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Validate checks the configuration is complete. A failing config is a
// hard, service-unavailable class error: the core refuses to run with an
// insecure default in place of a missing secret.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Secrets, validation.Required, validation.By(validateSecrets)),
		validation.Field(&c.SessionTTL, validation.Required),
		validation.Field(&c.StepUpTTL, validation.Required),
		validation.Field(&c.RateLimitMax, validation.Required, validation.Min(1)),
		validation.Field(&c.RateLimitWindow, validation.Required),
	)
	if err != nil {
		return errors.Wrap(err, ErrConfigMissing.Category, ErrConfigMissing.Message).
			WithTextCode(ErrConfigMissing.TextCode)
	}
	return nil
}

func validateSecrets(value any) error {
	secrets, ok := value.(map[Role]string)
	if !ok {
		return fmt.Errorf("secrets must map roles to credentials")
	}
	for _, role := range AllRoles() {
		if secrets[role] == "" {
			return fmt.Errorf("missing credential for role %q", role)
		}
	}
	return nil
}

// ConfigFromEnv resolves the configuration from the environment exactly
// once. Every secret is mandatory; durations fall back to defaults when
// their variables are unset.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{
		SigningKey: []byte(os.Getenv(EnvSigningKey)),
		Secrets: map[Role]string{
			RoleAdmin:  os.Getenv(EnvSecretAdmin),
			RoleStaff:  os.Getenv(EnvSecretStaff),
			RoleUpload: os.Getenv(EnvSecretUpload),
			RoleCron:   os.Getenv(EnvSecretCron),
		},
		Issuer:          DefaultIssuer,
		SessionTTL:      DefaultSessionTTL,
		StepUpTTL:       DefaultStepUpTTL,
		RateLimitMax:    DefaultRateLimitMax,
		RateLimitWindow: DefaultRateLimitWindow,
	}

	if issuer := os.Getenv(EnvIssuer); issuer != "" {
		cfg.Issuer = issuer
	}

	var err error
	if cfg.SessionTTL, err = durationFromEnv(EnvSessionTTL, DefaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.StepUpTTL, err = durationFromEnv(EnvStepUpTTL, DefaultStepUpTTL); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationFromEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryOperation, "invalid duration in "+name).
			WithTextCode(TextCodeConfigMissing)
	}
	return d, nil
}

// Secret returns the credential configured for role.
func (c *Config) Secret(role Role) (string, bool) {
	secret, ok := c.Secrets[role]
	return secret, ok && secret != ""
}
