package auth

import (
	"context"
	"errors"
	"testing"
)

func TestCallerRoundTrip(t *testing.T) {
	ctx := WithCaller(context.Background(), "  Alice ")
	if got := CallerFromContext(ctx); got != "alice" {
		t.Fatalf("expected normalised caller alice, got %q", got)
	}

	if got := CallerFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty caller, got %q", got)
	}

	// 空调用方不污染上下文。
	ctx = WithCaller(context.Background(), "   ")
	if got := CallerFromContext(ctx); got != "" {
		t.Fatalf("expected empty caller for blank input, got %q", got)
	}
}

func TestCallerAuthorizer(t *testing.T) {
	authorizer := NewCallerAuthorizer()

	if err := authorizer.RequireAuth(context.Background(), "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing caller: expected unauthorized, got %v", err)
	}

	ctx := WithCaller(context.Background(), "alice")
	if err := authorizer.RequireAuth(ctx, "ALICE"); err != nil {
		t.Fatalf("case-insensitive match should pass: %v", err)
	}
	if err := authorizer.RequireAuth(ctx, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mismatched owner: expected unauthorized, got %v", err)
	}
}

func TestAllowAll(t *testing.T) {
	if err := (AllowAll{}).RequireAuth(context.Background(), "anyone"); err != nil {
		t.Fatalf("allow all rejected: %v", err)
	}
}
