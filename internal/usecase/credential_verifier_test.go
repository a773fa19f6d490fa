package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

func TestCredentialVerifierClassify(t *testing.T) {
	verifier := NewCredentialVerifier(newMemAccountRepo(), &spyHasher{}, nil)

	cases := map[string]domain.LoginIdentifierField{
		"cashier@store.example": domain.LoginFieldEmail,
		"Cashier@Store.Example": domain.LoginFieldEmail,
		"cashier01":             domain.LoginFieldHandle,
		"cashier@":              domain.LoginFieldHandle,
		"@store.example":        domain.LoginFieldHandle,
		"not an email@":         domain.LoginFieldHandle,
	}

	for identifier, expected := range cases {
		if got := verifier.Classify(identifier); got != expected {
			t.Fatalf("Classify(%q) = %s, want %s", identifier, got, expected)
		}
	}
}

func TestCredentialVerifierResolveByEmailAndHandle(t *testing.T) {
	accounts := newMemAccountRepo(testAccount())
	verifier := NewCredentialVerifier(accounts, &spyHasher{}, nil)
	ctx := context.Background()

	for _, identifier := range []string{"cashier@store.example", "  CASHIER@store.example ", "cashier01"} {
		account, err := verifier.Resolve(ctx, identifier)
		if err != nil {
			t.Fatalf("Resolve(%q) returned error: %v", identifier, err)
		}
		if account.ID != "acc-1" {
			t.Fatalf("Resolve(%q) returned account %s", identifier, account.ID)
		}
	}
}

func TestCredentialVerifierNoFallbackBetweenFields(t *testing.T) {
	account := testAccount()
	account.Handle = "owner@store.example"
	accounts := newMemAccountRepo(account)
	verifier := NewCredentialVerifier(accounts, &spyHasher{}, nil)

	if _, err := verifier.Resolve(context.Background(), "owner@store.example"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when email-shaped identifier only matches a handle, got %v", err)
	}
}

func TestCredentialVerifierResolveErrors(t *testing.T) {
	accounts := newMemAccountRepo(testAccount())
	verifier := NewCredentialVerifier(accounts, &spyHasher{}, nil)
	ctx := context.Background()

	if _, err := verifier.Resolve(ctx, "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty identifier, got %v", err)
	}
	if _, err := verifier.Resolve(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown handle, got %v", err)
	}

	accounts.lookupErr = errStoreDown
	_, err := verifier.Resolve(ctx, "cashier01")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected underlying cause to be preserved, got %v", err)
	}
}

func TestCredentialVerifierVerify(t *testing.T) {
	hasher := &spyHasher{}
	verifier := NewCredentialVerifier(newMemAccountRepo(), hasher, nil)
	account := testAccount()

	if err := verifier.Verify(account, "correct-password"); err != nil {
		t.Fatalf("expected password to verify, got %v", err)
	}
	if err := verifier.Verify(account, "wrong"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}

	account.PasswordHash = "garbage"
	if err := verifier.Verify(account, "correct-password"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword for unusable hash, got %v", err)
	}
	if hasher.verifies.Load() != 3 {
		t.Fatalf("expected 3 verifications, got %d", hasher.verifies.Load())
	}
}

func TestCredentialVerifierResolveAndVerify(t *testing.T) {
	verifier := NewCredentialVerifier(newMemAccountRepo(testAccount()), &spyHasher{}, nil)
	ctx := context.Background()

	if _, err := verifier.ResolveAndVerify(ctx, "cashier01", "correct-password"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, err := verifier.ResolveAndVerify(ctx, "cashier01", "nope"); !errors.Is(err, ErrBadPassword) {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if _, err := verifier.ResolveAndVerify(ctx, "nobody", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
