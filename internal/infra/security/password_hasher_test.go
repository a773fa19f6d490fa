package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	hasher, err := NewPasswordHasher(port.Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return hasher
}

func TestPasswordHasherHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	encoded, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected prefix: %s$%s", parts[0], parts[1])
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("unexpected params segment: %s", parts[2])
	}

	ok, err := hasher.Verify(password, encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestPasswordHasherSaltsEveryHash(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct hashes for repeated input")
	}
}

func TestPasswordHasherVerifiesLegacyBcrypt(t *testing.T) {
	hasher := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}

	ok, err := hasher.Verify("legacy-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("wrong", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, ok=%v err=%v", ok, err)
	}
}

func TestPasswordHasherRejectsMalformedHash(t *testing.T) {
	hasher := newTestHasher(t)

	for _, encoded := range []string{
		"plain-text",
		"argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA",
		"argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	} {
		if _, err := hasher.Verify("secret", encoded); !errors.Is(err, ErrInvalidHashFormat) {
			t.Fatalf("expected ErrInvalidHashFormat for %q, got %v", encoded, err)
		}
	}
}

func TestPasswordHasherEmptyInputs(t *testing.T) {
	hasher := newTestHasher(t)

	if ok, err := hasher.Verify("", "argon2id$whatever"); ok || err != nil {
		t.Fatalf("expected false,nil for empty password, got %v,%v", ok, err)
	}
	if ok, err := hasher.Verify("secret", ""); ok || err != nil {
		t.Fatalf("expected false,nil for empty hash, got %v,%v", ok, err)
	}
}

func TestNewPasswordHasherValidatesParams(t *testing.T) {
	params := DefaultArgon2Params()
	params.Memory = 1024
	if _, err := NewPasswordHasher(params); !errors.Is(err, ErrInvalidHasherConfig) {
		t.Fatalf("expected ErrInvalidHasherConfig, got %v", err)
	}

	params = DefaultArgon2Params()
	params.KeyLength = 8
	if _, err := NewPasswordHasher(params); !errors.Is(err, ErrInvalidHasherConfig) {
		t.Fatalf("expected ErrInvalidHasherConfig for short key, got %v", err)
	}
}

func TestGenerateSecureTokenAndHash(t *testing.T) {
	first, err := GenerateSecureToken(SessionTokenBytes)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	second, err := GenerateSecureToken(SessionTokenBytes)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected unique token values")
	}
	if len(first) != 43 {
		t.Fatalf("expected 43 base64url characters, got %d", len(first))
	}

	if HashToken(first) != HashToken(first) {
		t.Fatal("expected HashToken to be deterministic")
	}
	if len(HashToken(first)) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", HashToken(first))
	}

	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
