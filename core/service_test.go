package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memUserRepo is an in-memory UserRepository used across the package tests.
type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*UserRecord // keyed by username
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*UserRecord{}}
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) Create(_ context.Context, u UserRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return 0, ErrUsernameTaken
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return 0, ErrEmailTaken
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now()
	r.users[u.Username] = &u
	return u.ID, nil
}

func (r *memUserRepo) HasSuperuser(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.IsSuperuser {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) List(_ context.Context, page, perPage int) ([]UserSummary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]UserSummary, 0, len(r.users))
	for _, u := range r.users {
		items = append(items, UserSummary{
			ID: u.ID, Username: u.Username, Email: u.Email,
			FullName: u.FullName, IsSuperuser: u.IsSuperuser,
			IsActive: u.IsActive, CreatedAt: u.CreatedAt,
		})
	}
	return items, len(items), nil
}

func TestRegisterThenAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewRepositoryAuthService(newMemUserRepo())

	user, err := svc.Register(ctx, "alice@example.com", "alice", "s3cret", "Alice A")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Username != "alice" || user.IsSuperuser || !user.IsActive {
		t.Fatalf("unexpected registered user: %+v", user)
	}

	got, err := svc.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("authenticated username = %q", got.Username)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewRepositoryAuthService(newMemUserRepo())

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "pw", ""); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "other@example.com", "alice", "pw", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username = %v, want ErrUsernameTaken", err)
	}
	if _, err := svc.Register(ctx, "alice@example.com", "alice2", "pw", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email = %v, want ErrEmailTaken", err)
	}

	// A fresh username/email still registers and can log in.
	if _, err := svc.Register(ctx, "bob@example.com", "bob", "pw2", "Bob"); err != nil {
		t.Fatalf("second Register error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob", "pw2"); err != nil {
		t.Fatalf("Authenticate after register error: %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	svc := NewRepositoryAuthService(repo)

	if _, err := svc.Register(ctx, "carl@example.com", "carl", "pw", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	repo.mu.Lock()
	repo.users["carl"].IsActive = false
	repo.mu.Unlock()

	if _, err := svc.Authenticate(ctx, "carl", "pw"); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("inactive user = %v, want ErrInactiveUser", err)
	}
}

func TestRegisterRejectsBlankFields(t *testing.T) {
	ctx := context.Background()
	svc := NewRepositoryAuthService(newMemUserRepo())
	if _, err := svc.Register(ctx, "", "user", "pw", ""); err == nil {
		t.Fatal("expected error for empty email")
	}
	if _, err := svc.Register(ctx, "a@b.c", "  ", "pw", ""); err == nil {
		t.Fatal("expected error for blank username")
	}
	if _, err := svc.Register(ctx, "a@b.c", "user", "", ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
