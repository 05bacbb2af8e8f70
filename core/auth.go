package core

import (
	"context"
	"errors"
	"time"
)

// Roles carried inside access tokens.
const (
	RoleSuperuser = "superuser"
	RoleRegular   = "regular"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID          int64
	Username    string
	Email       string
	FullName    string
	IsSuperuser bool
	IsActive    bool
	CreatedAt   time.Time
}

// Role maps the superuser flag onto the token role claim.
func (u User) Role() string {
	if u.IsSuperuser {
		return RoleSuperuser
	}
	return RoleRegular
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveUser is returned when the account exists but has been deactivated.
	ErrInactiveUser = errors.New("inactive user")
	// ErrUsernameTaken is returned on registration with an existing username.
	ErrUsernameTaken = errors.New("username already registered")
	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// AuthService defines credential verification and registration behaviour.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (User, error)
	Register(ctx context.Context, email, username, password, fullName string) (User, error)
}
