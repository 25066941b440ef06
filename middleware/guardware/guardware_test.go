package guardware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-gate/middleware/guardware"
)

var errDenied = errors.New("unauthorized")

// fakeVerifier accepts exactly one raw token for one role.
type fakeVerifier struct {
	token  string
	role   string
	claims any
}

func (f *fakeVerifier) Verify(_ context.Context, raw, requiredRole string) (any, error) {
	if raw == f.token && requiredRole == f.role {
		return f.claims, nil
	}
	return nil, errDenied
}

func noopNext(ctx router.Context) error {
	return ctx.Next()
}

func TestGuardware_HeaderExtraction(t *testing.T) {
	verifier := &fakeVerifier{token: "valid-session", role: "staff", claims: "claims"}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "staff",
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
	handler := middleware(noopNext)

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer valid-session"
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "Authorization", "").Return("Bearer valid-session")
	ctx.On("Locals", "session", "claims").Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("unexpected error for valid token: %v", err)
	}
	if !ctx.NextCalled {
		t.Errorf("expected Next to be invoked for valid token")
	}
}

func TestGuardware_MissingToken(t *testing.T) {
	verifier := &fakeVerifier{token: "valid-session", role: "staff"}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "staff",
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
	handler := middleware(noopNext)

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")

	err := handler(ctx)
	if err == nil {
		t.Fatal("expected error for missing token, got nil")
	}
	if !errors.Is(err, guardware.ErrTokenMissingOrBroken) {
		t.Errorf("expected missing token error, got: %v", err)
	}
	if ctx.NextCalled {
		t.Errorf("expected Next not to be invoked")
	}
}

func TestGuardware_DeniedToken(t *testing.T) {
	verifier := &fakeVerifier{token: "valid-session", role: "staff"}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "staff",
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
	handler := middleware(noopNext)

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer stolen-session"
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "Authorization", "").Return("Bearer stolen-session")

	err := handler(ctx)
	if !errors.Is(err, errDenied) {
		t.Fatalf("expected verifier denial, got: %v", err)
	}
	if ctx.NextCalled {
		t.Errorf("expected Next not to be invoked")
	}
}

func TestGuardware_CookieLookup(t *testing.T) {
	verifier := &fakeVerifier{token: "cookie-session", role: "admin", claims: "claims"}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "admin",
		TokenLookup:  "header:Authorization,cookie:gate_session",
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
	handler := middleware(noopNext)

	ctx := router.NewMockContext()
	ctx.CookiesM["gate_session"] = "cookie-session"
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "Authorization", "").Return("")
	ctx.On("Locals", "session", "claims").Return(nil)

	if err := handler(ctx); err != nil {
		t.Fatalf("unexpected error for cookie token: %v", err)
	}
	if !ctx.NextCalled {
		t.Errorf("expected Next to be invoked")
	}
}

func TestGuardware_StepUp(t *testing.T) {
	verifier := &fakeVerifier{token: "valid-session", role: "admin", claims: "claims"}

	stepUp := func(_ context.Context, proof string, claims any) error {
		if proof == "fresh-proof" && claims == "claims" {
			return nil
		}
		return errDenied
	}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "admin",
		StepUp:       stepUp,
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
	handler := middleware(noopNext)

	t.Run("valid proof passes", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer valid-session"
		ctx.On("Context").Return(context.Background())
		ctx.On("GetString", "Authorization", "").Return("Bearer valid-session")
		ctx.On("GetString", "X-Step-Up-Proof", "").Return("Bearer fresh-proof")
		ctx.On("Locals", "session", "claims").Return(nil)

		if err := handler(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ctx.NextCalled {
			t.Errorf("expected Next to be invoked")
		}
	})

	t.Run("missing proof is denied", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer valid-session"
		ctx.On("Context").Return(context.Background())
		ctx.On("GetString", "Authorization", "").Return("Bearer valid-session")
		ctx.On("GetString", "X-Step-Up-Proof", "").Return("")

		if err := handler(ctx); err == nil {
			t.Fatal("expected error for missing proof, got nil")
		}
		if ctx.NextCalled {
			t.Errorf("expected Next not to be invoked")
		}
	})

	t.Run("stale proof is denied", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer valid-session"
		ctx.On("Context").Return(context.Background())
		ctx.On("GetString", "Authorization", "").Return("Bearer valid-session")
		ctx.On("GetString", "X-Step-Up-Proof", "").Return("Bearer stale-proof")

		err := handler(ctx)
		if !errors.Is(err, errDenied) {
			t.Fatalf("expected step-up denial, got: %v", err)
		}
	})
}

func TestGuardware_Filter(t *testing.T) {
	verifier := &fakeVerifier{token: "valid-session", role: "staff"}

	middleware := guardware.New(guardware.Config{
		Verifier:     verifier,
		RequiredRole: "staff",
		Filter: func(ctx router.Context) bool {
			return true
		},
	})
	handler := middleware(noopNext)

	ctx := router.NewMockContext()

	if err := handler(ctx); err != nil {
		t.Fatalf("expected filter to skip the guard, got %v", err)
	}
	if !ctx.NextCalled {
		t.Errorf("expected Next to be invoked on filtered routes")
	}
}

func TestGetDefaultConfigPanicsWithoutVerifier(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing Verifier")
		}
	}()
	guardware.GetDefaultConfig(guardware.Config{})
}

func TestGetExtractors(t *testing.T) {
	extractors := guardware.GetExtractors("header:Authorization,query:token,cookie:session")
	if len(extractors) != 3 {
		t.Fatalf("expected 3 extractors, got %d", len(extractors))
	}

	ctx := router.NewMockContext()
	ctx.QueriesM["token"] = "query-token"
	ctx.On("GetString", "Authorization", "").Return("")

	raw, err := guardware.ExtractRawToken(ctx, extractors)
	if err != nil {
		t.Fatalf("unexpected extraction error: %v", err)
	}
	if raw != "query-token" {
		t.Errorf("expected query token, got %q", raw)
	}
}
