package core

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssueVerifyRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 30*time.Minute)

	token, err := svc.Issue("alice", RoleRegular)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if identity.Username != "alice" {
		t.Fatalf("username = %q, want alice", identity.Username)
	}
	if identity.Role != RoleRegular {
		t.Fatalf("role = %q, want %q", identity.Role, RoleRegular)
	}
}

func TestTokenExpiry(t *testing.T) {
	svc := NewTokenService("test-secret", 10*time.Minute)
	issuedAt := time.Now()
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue("bob", RoleSuperuser)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// Still valid just inside the window.
	svc.now = func() time.Time { return issuedAt.Add(9 * time.Minute) }
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("Verify inside window error: %v", err)
	}

	// Strictly after expiry it must fail as expired.
	svc.now = func() time.Time { return issuedAt.Add(10*time.Minute + time.Second) }
	if _, err := svc.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify after expiry = %v, want ErrTokenExpired", err)
	}
}

func TestTokenBadSignature(t *testing.T) {
	issuer := NewTokenService("secret-a", 30*time.Minute)
	verifier := NewTokenService("secret-b", 30*time.Minute)

	token, err := issuer.Issue("alice", RoleRegular)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify with wrong secret = %v, want ErrBadSignature", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	svc := NewTokenService("test-secret", 30*time.Minute)
	for _, tok := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := svc.Verify(tok); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Verify(%q) = %v, want ErrTokenMalformed", tok, err)
		}
	}
}
