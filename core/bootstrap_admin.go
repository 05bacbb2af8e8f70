package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"
)

// BootstrapAdmin creates an initial superuser when none exists.
// It is idempotent: if a superuser already exists, it does nothing.
// Replicas race on startup, but the username unique constraint makes
// the duplicate INSERT fail harmlessly.
func BootstrapAdmin(ctx context.Context, repo UserRepository, cfg Config) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := repo.HasSuperuser(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	username := "admin"
	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = repo.Create(ctx, UserRecord{
		Username:     username,
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		FullName:     "Admin User",
		IsSuperuser:  true,
		IsActive:     true,
	})
	if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
		// Another replica won the race.
		return nil
	}
	if err != nil {
		return err
	}

	// The account now exists, so the password must not be lost: a failed
	// file write falls back to logging instead of erroring out.
	if cfg.InitialAdminPasswordPath != "" {
		if err := writeAdminPassword(cfg.InitialAdminPasswordPath, password); err != nil {
			log.Printf("failed to write admin password to %s: %v", cfg.InitialAdminPasswordPath, err)
			log.Printf("initial admin created username=%s password=%s", username, password)
			return nil
		}
		log.Printf("initial admin created; credentials written to %s", cfg.InitialAdminPasswordPath)
	} else {
		log.Printf("initial admin created username=%s password=%s", username, password)
	}

	return nil
}

func writeAdminPassword(path, password string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(password+"\n"), 0o600)
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
