package sharelink

import (
	"context"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate"
)

const (
	keyLinkPrefix  = "gate:share:link:"
	keyIndexPrefix = "gate:share:index:"
	keyTrackedSet  = "gate:share:tracked"
	keyTokenClaim  = "gate:share:token:"

	// bounded retries for the set-if-absent token mint
	mintAttempts = 5
)

func keyLink(slug, id string) string { return keyLinkPrefix + slug + ":" + id }
func keyIndex(slug string) string    { return keyIndexPrefix + slug }
func keyClaim(hash string) string    { return keyTokenClaim + hash }

// Store owns share link records and their indexes. All state lives in the
// injected KV; multi-step sequences rely on single-key atomicity, with the
// token claim (SetNX) as the only true compare-and-swap.
type Store struct {
	kv     gate.KV
	logger gate.Logger
	signer *TokenSigner
	now    func() time.Time
}

// NewStore builds a share link store over the given KV.
func NewStore(kv gate.KV) *Store {
	return &Store{
		kv:  kv,
		now: time.Now,
	}
}

// WithLogger sets the logger for the store.
func (s *Store) WithLogger(logger gate.Logger) *Store {
	s.logger = logger
	return s
}

// WithSigner attaches a bound access token signer.
func (s *Store) WithSigner(signer *TokenSigner) *Store {
	s.signer = signer
	return s
}

// WithNow replaces the clock, for tests.
func (s *Store) WithNow(now func() time.Time) *Store {
	if now != nil {
		s.now = now
		if s.signer != nil {
			s.signer.WithNow(now)
		}
	}
	return s
}

func (s *Store) log() gate.Logger {
	if s.logger == nil {
		return gate.DefaultLogger()
	}
	return s.logger
}

// CreateInput describes a new share link grant.
type CreateInput struct {
	ExpiresInDays int    `json:"expires_in_days"`
	PINRequired   bool   `json:"pin_required"`
	PIN           string `json:"pin,omitempty"`
}

// Validate implements the input rules for link creation.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ExpiresInDays, validation.Required, validation.Min(1)),
		validation.Field(&in.PIN, validation.By(func(value interface{}) error {
			pin, _ := value.(string)
			if in.PINRequired && pin == "" {
				return validation.NewError("validation_pin_required", "pin must be set when pin protection is enabled")
			}
			if !in.PINRequired && pin != "" {
				return validation.NewError("validation_pin_unexpected", "pin must be empty when pin protection is disabled")
			}
			return nil
		})),
	)
}

// UpdateInput describes a partial link edit. Nil fields are left untouched.
type UpdateInput struct {
	PINRequired   *bool   `json:"pin_required,omitempty"`
	PIN           *string `json:"pin,omitempty"`
	ExpiresInDays *int    `json:"expires_in_days,omitempty"`
	RotateToken   bool    `json:"rotate_token,omitempty"`
}

// Validate implements the input rules for link updates.
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ExpiresInDays, validation.By(func(value interface{}) error {
			days, ok := value.(*int)
			if !ok || days == nil {
				return nil
			}
			if *days < 1 {
				return validation.NewError("validation_expiry", "expires_in_days must be at least 1")
			}
			return nil
		})),
	)
}

// Create mints a new link for the slug. The raw token is returned exactly
// once; the store keeps only its hash.
func (s *Store) Create(ctx context.Context, slug string, in CreateInput) (*Link, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryValidation, "invalid share link input").
			WithTextCode("INVALID_INPUT")
	}

	var pinHash string
	if in.PINRequired {
		hash, err := HashPIN(in.PIN)
		if err != nil {
			return nil, "", err
		}
		pinHash = hash
	}

	raw, tokenHash, err := s.mintToken(ctx)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	link := &Link{
		ID:          newLinkID(),
		Slug:        slug,
		TokenHash:   tokenHash,
		PINRequired: in.PINRequired,
		PINHash:     pinHash,
		CreatedAt:   now,
		ExpiresAt:   now.AddDate(0, 0, in.ExpiresInDays),
	}

	if err := s.persist(ctx, link); err != nil {
		s.releaseClaim(ctx, tokenHash)
		return nil, "", err
	}

	if err := s.kv.SAdd(ctx, keyIndex(slug), link.ID); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to index share link")
	}
	if err := s.kv.SAdd(ctx, keyTrackedSet, slug); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to track slug")
	}

	return link, raw, nil
}

// Get loads a single link record.
func (s *Store) Get(ctx context.Context, slug, id string) (*Link, error) {
	raw, ok, err := s.kv.Get(ctx, keyLink(slug, id))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load share link")
	}
	if !ok {
		return nil, gate.ErrNotFound
	}

	var link Link
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "corrupt share link record")
	}
	return &link, nil
}

// Update edits a link in place. Revoked links are immutable. Expired links
// reject edits unless the update itself carries a renewing expiry, so a
// grant can be extended but never silently resurrected. A rotation returns
// the fresh raw token exactly once.
func (s *Store) Update(ctx context.Context, slug, id string, in UpdateInput) (*Link, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryValidation, "invalid share link update").
			WithTextCode("INVALID_INPUT")
	}

	link, err := s.Get(ctx, slug, id)
	if err != nil {
		return nil, "", err
	}

	if link.Revoked {
		return nil, "", gate.ErrLinkNotActive
	}

	now := s.now()
	expiresAt := link.ExpiresAt
	if in.ExpiresInDays != nil {
		expiresAt = now.AddDate(0, 0, *in.ExpiresInDays)
	}
	if !now.Before(expiresAt) {
		return nil, "", gate.ErrLinkNotActive
	}

	next := *link
	next.ExpiresAt = expiresAt

	switch {
	case in.PINRequired != nil && *in.PINRequired:
		pin := ""
		if in.PIN != nil {
			pin = *in.PIN
		}
		if pin == "" && next.PINHash == "" {
			return nil, "", errors.New("pin must be set when enabling pin protection", errors.CategoryValidation).
				WithTextCode("INVALID_INPUT")
		}
		next.PINRequired = true
		if pin != "" {
			hash, err := HashPIN(pin)
			if err != nil {
				return nil, "", err
			}
			next.PINHash = hash
		}
	case in.PINRequired != nil:
		next.PINRequired = false
		next.PINHash = ""
	case in.PIN != nil:
		if !next.PINRequired {
			return nil, "", errors.New("pin set on a link without pin protection", errors.CategoryValidation).
				WithTextCode("INVALID_INPUT")
		}
		hash, err := HashPIN(*in.PIN)
		if err != nil {
			return nil, "", err
		}
		next.PINHash = hash
	}

	var rawToken string
	oldHash := ""
	if in.RotateToken {
		raw, tokenHash, err := s.mintToken(ctx)
		if err != nil {
			return nil, "", err
		}
		rawToken = raw
		oldHash = next.TokenHash
		next.TokenHash = tokenHash
	}

	if err := s.persist(ctx, &next); err != nil {
		if in.RotateToken {
			s.releaseClaim(ctx, next.TokenHash)
		}
		return nil, "", err
	}

	if oldHash != "" {
		s.releaseClaim(ctx, oldHash)
	}

	return &next, rawToken, nil
}

// Revoke marks a link revoked. It reports false when the link is missing or
// already revoked, which makes sweeps and double-clicks harmless.
func (s *Store) Revoke(ctx context.Context, slug, id string) (bool, error) {
	link, err := s.Get(ctx, slug, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if link.Revoked {
		return false, nil
	}

	link.Revoked = true
	if err := s.persist(ctx, link); err != nil {
		return false, err
	}
	return true, nil
}

// List returns every link recorded for the slug. Index entries whose record
// disappeared are skipped; a later cleanup pass prunes them.
func (s *Store) List(ctx context.Context, slug string) ([]*Link, error) {
	ids, err := s.kv.SMembers(ctx, keyIndex(slug))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list share links")
	}

	links := make([]*Link, 0, len(ids))
	for _, id := range ids {
		link, err := s.Get(ctx, slug, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

// DeleteAllForSlug removes every link, index entry, and token claim for a
// slug. Called when the owning content item goes away.
func (s *Store) DeleteAllForSlug(ctx context.Context, slug string) error {
	run := func(kv gate.KV) error {
		ids, err := kv.SMembers(ctx, keyIndex(slug))
		if err != nil {
			return err
		}

		for _, id := range ids {
			raw, ok, err := kv.Get(ctx, keyLink(slug, id))
			if err != nil {
				return err
			}
			if ok {
				var link Link
				if err := json.Unmarshal([]byte(raw), &link); err == nil && link.TokenHash != "" {
					if err := kv.Del(ctx, keyClaim(link.TokenHash)); err != nil {
						return err
					}
				}
			}
			if err := kv.Del(ctx, keyLink(slug, id)); err != nil {
				return err
			}
			if err := kv.SRem(ctx, keyIndex(slug), id); err != nil {
				return err
			}
		}

		return kv.SRem(ctx, keyTrackedSet, slug)
	}

	var err error
	if batch, ok := s.kv.(gate.BatchKV); ok {
		err = batch.Batch(ctx, run)
	} else {
		err = run(s.kv)
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete share links")
	}
	return nil
}

// TrackedSlugs lists every slug that currently has (or recently had) links,
// feeding the external cleanup sweep.
func (s *Store) TrackedSlugs(ctx context.Context) ([]string, error) {
	slugs, err := s.kv.SMembers(ctx, keyTrackedSet)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list tracked slugs")
	}
	return slugs, nil
}

// CleanupResult reports what a sweep over one slug did.
type CleanupResult struct {
	Scanned           int `json:"scanned"`
	RemovedExpired    int `json:"removed_expired"`
	RemovedRevoked    int `json:"removed_revoked"`
	StaleIndexRemoved int `json:"stale_index_removed"`
	Remaining         int `json:"remaining"`
}

// Cleanup purges expired and revoked records for a slug and prunes any
// index entry whose record is gone. Every deletion is independent, so a
// sweep interrupted mid-pass or run concurrently stays correct; running it
// twice removes nothing extra the second time.
func (s *Store) Cleanup(ctx context.Context, slug string) (CleanupResult, error) {
	var result CleanupResult

	ids, err := s.kv.SMembers(ctx, keyIndex(slug))
	if err != nil {
		return result, errors.Wrap(err, errors.CategoryInternal, "failed to scan share links")
	}

	now := s.now()
	for _, id := range ids {
		result.Scanned++

		link, err := s.Get(ctx, slug, id)
		if err != nil {
			if errors.IsNotFound(err) {
				if err := s.kv.SRem(ctx, keyIndex(slug), id); err != nil {
					s.log().Warn("cleanup: failed to prune stale index entry: %v", err)
					continue
				}
				result.StaleIndexRemoved++
				continue
			}
			s.log().Warn("cleanup: failed to load link %s/%s: %v", slug, id, err)
			continue
		}

		switch {
		case link.Revoked:
			if s.remove(ctx, link) {
				result.RemovedRevoked++
			}
		case link.Expired(now):
			if s.remove(ctx, link) {
				result.RemovedExpired++
			}
		default:
			result.Remaining++
		}
	}

	if result.Remaining == 0 {
		if err := s.kv.SRem(ctx, keyTrackedSet, slug); err != nil {
			s.log().Warn("cleanup: failed to untrack slug %s: %v", slug, err)
		}
	}

	return result, nil
}

func (s *Store) remove(ctx context.Context, link *Link) bool {
	if err := s.kv.Del(ctx, keyLink(link.Slug, link.ID), keyClaim(link.TokenHash)); err != nil {
		s.log().Warn("cleanup: failed to delete link %s/%s: %v", link.Slug, link.ID, err)
		return false
	}
	if err := s.kv.SRem(ctx, keyIndex(link.Slug), link.ID); err != nil {
		s.log().Warn("cleanup: failed to unindex link %s/%s: %v", link.Slug, link.ID, err)
	}
	return true
}

// mintToken generates an opaque token and claims its hash with a
// set-if-absent write so two concurrent mints can never land on the same
// value. Retries are bounded; exhaustion is an operational conflict.
func (s *Store) mintToken(ctx context.Context) (string, string, error) {
	for i := 0; i < mintAttempts; i++ {
		raw, err := newRawToken()
		if err != nil {
			return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token")
		}

		hash := HashToken(raw)
		ok, err := s.kv.SetNX(ctx, keyClaim(hash), "1", 0)
		if err != nil {
			return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to claim token")
		}
		if ok {
			return raw, hash, nil
		}
	}
	return "", "", gate.ErrMintConflict
}

func (s *Store) persist(ctx context.Context, link *Link) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode share link")
	}
	if err := s.kv.Set(ctx, keyLink(link.Slug, link.ID), string(payload)); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store share link")
	}
	return nil
}

func (s *Store) releaseClaim(ctx context.Context, hash string) {
	if hash == "" {
		return
	}
	if err := s.kv.Del(ctx, keyClaim(hash)); err != nil {
		s.log().Warn("failed to release token claim: %v", err)
	}
}
