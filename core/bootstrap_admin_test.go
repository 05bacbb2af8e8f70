package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBootstrapAdminCreatesSuperuser(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	path := filepath.Join(t.TempDir(), "secrets", "initial_admin_password.secret")
	cfg := Config{BootstrapAdminEnabled: true, InitialAdminPasswordPath: path}

	if err := BootstrapAdmin(ctx, repo, cfg); err != nil {
		t.Fatalf("BootstrapAdmin error: %v", err)
	}

	u, err := repo.FindByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	if !u.IsSuperuser || !u.IsActive {
		t.Fatalf("unexpected admin record: %+v", u)
	}

	// The password file must exist, even though the secrets dir did not.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("password file not written: %v", err)
	}
	password := strings.TrimSpace(string(data))
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		t.Fatal("stored password does not match written file")
	}

	// Idempotent: second call must not create another user or rewrite the file.
	if err := BootstrapAdmin(ctx, repo, cfg); err != nil {
		t.Fatalf("second BootstrapAdmin error: %v", err)
	}
	if len(repo.users) != 1 {
		t.Fatalf("expected 1 user after rerun, got %d", len(repo.users))
	}
}

func TestBootstrapAdminUnwritablePathDoesNotFail(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	// A path under a regular file can never be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	cfg := Config{
		BootstrapAdminEnabled:    true,
		InitialAdminPasswordPath: filepath.Join(blocker, "nested", "password.secret"),
	}

	// The admin row is created once and the write failure falls back to
	// logging; a boot loop would otherwise strand an account with an
	// unrecoverable password.
	if err := BootstrapAdmin(ctx, repo, cfg); err != nil {
		t.Fatalf("BootstrapAdmin error on unwritable path: %v", err)
	}
	if _, err := repo.FindByUsername(ctx, "admin"); err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	if err := BootstrapAdmin(ctx, repo, cfg); err != nil {
		t.Fatalf("rerun error: %v", err)
	}
}

func TestBootstrapAdminDisabled(t *testing.T) {
	repo := newMemUserRepo()
	if err := BootstrapAdmin(context.Background(), repo, Config{BootstrapAdminEnabled: false}); err != nil {
		t.Fatalf("BootstrapAdmin error: %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatalf("expected no users, got %d", len(repo.users))
	}
}
