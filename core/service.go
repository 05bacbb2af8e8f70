package core

import (
	"context"
	"errors"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RepositoryAuthService verifies and registers credentials against a UserRepository.
type RepositoryAuthService struct {
	users UserRepository
}

func NewRepositoryAuthService(users UserRepository) *RepositoryAuthService {
	return &RepositoryAuthService{users: users}
}

// Authenticate checks username/password. Unknown user and wrong password are
// indistinguishable to the caller; bcrypt comparison is constant-time.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) (User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil || u == nil {
		log.Printf("failed login attempt for username: %s", username)
		return User{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		log.Printf("invalid password for username: %s", username)
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		log.Printf("inactive user login attempt: %s", username)
		return User{}, ErrInactiveUser
	}
	return recordToUser(u), nil
}

// Register creates a new regular user with a bcrypt-hashed password.
// Duplicate username/email fails with the matching conflict error; the
// pre-checks give precise messages and the INSERT's unique constraints
// stay authoritative under concurrent registrations.
func (s *RepositoryAuthService) Register(ctx context.Context, email, username, password, fullName string) (User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return User{}, errors.New("email, username and password are required")
	}

	if existing, err := s.users.FindByUsername(ctx, username); err == nil && existing != nil {
		log.Printf("registration failed - username exists: %s", username)
		return User{}, ErrUsernameTaken
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		log.Printf("registration failed - email exists: %s", email)
		return User{}, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	rec := UserRecord{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		IsSuperuser:  false,
		IsActive:     true,
	}
	id, err := s.users.Create(ctx, rec)
	if err != nil {
		return User{}, err
	}
	rec.ID = id

	log.Printf("new user registered: %s", username)
	return recordToUser(&rec), nil
}

func recordToUser(u *UserRecord) User {
	return User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		IsSuperuser: u.IsSuperuser,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}
