package sharelink

import (
	"context"
	"crypto/subtle"
)

// AccessRequest is one attempt to open a shared resource.
type AccessRequest struct {
	Slug  string `json:"slug"`
	Token string `json:"token"`
	PIN   string `json:"pin,omitempty"`
	IP    string `json:"-"`
}

// AccessDecision is the outcome of an access attempt. PINRequired is
// surfaced even on failure so clients can prompt, but expired and revoked
// links are indistinguishable from missing ones.
type AccessDecision struct {
	Allowed     bool  `json:"allowed"`
	Status      int   `json:"status"`
	PINRequired bool  `json:"pin_required"`
	Link        *Link `json:"-"`
}

// VerifyAccess checks a (slug, token, pin) triple against the stored links.
// The token is compared against every candidate for the slug in constant
// time with no early exit, so response latency cannot distinguish a token
// that matches nothing from one that matches a dead link.
func (s *Store) VerifyAccess(ctx context.Context, req AccessRequest) (AccessDecision, error) {
	links, err := s.List(ctx, req.Slug)
	if err != nil {
		return AccessDecision{Status: 503}, err
	}

	candidate := []byte(HashToken(req.Token))

	var matched *Link
	for _, link := range links {
		if subtle.ConstantTimeCompare(candidate, []byte(link.TokenHash)) == 1 {
			matched = link
		}
	}

	if matched == nil {
		return AccessDecision{Status: 404}, nil
	}

	if !matched.Active(s.now()) {
		return AccessDecision{Status: 404, PINRequired: matched.PINRequired}, nil
	}

	if matched.PINRequired {
		if req.PIN == "" || !ComparePIN(matched.PINHash, req.PIN) {
			return AccessDecision{Status: 401, PINRequired: true}, nil
		}
	}

	return AccessDecision{Allowed: true, Status: 200, PINRequired: matched.PINRequired, Link: matched}, nil
}
