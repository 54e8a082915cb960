package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestIssueAndValidate(t *testing.T) {
	cfg := testConfig()

	token, err := NewIssuer(cfg).Issue("alice", "Alice Liddell")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "alice" || claims.FullName != "Alice Liddell" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(testConfig(), "alice", "", time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Secret = []byte("another-secret")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice", "", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice", "", time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Audience = "someone-else"
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("expected audience error")
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = nil
	if _, err := GenerateToken(cfg, "alice", "", time.Now()); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
