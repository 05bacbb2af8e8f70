package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when the token's validity window has passed.
	ErrTokenExpired = errors.New("token has expired")
	// ErrBadSignature is returned when the signature does not verify under the shared secret.
	ErrBadSignature = errors.New("token signature mismatch")
	// ErrTokenMalformed is returned when the token cannot be parsed at all.
	ErrTokenMalformed = errors.New("malformed token")
)

// Identity is the resolved caller attached to authenticated requests.
type Identity struct {
	Username string
	Role     string
}

// AccessClaims is the self-contained claim set carried by access tokens.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed, time-bounded bearer tokens.
// Verification is a pure function of the shared secret and wall-clock time,
// so any replica can verify tokens issued by any other.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a claim set for the given user. No side effects beyond computation.
func (s *TokenService) Issue(username, role string) (string, error) {
	now := s.now()
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates signature and expiry and returns the embedded identity.
// It never consults the credential store.
func (s *TokenService) Verify(tokenString string) (Identity, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrBadSignature
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrBadSignature
		default:
			return Identity{}, ErrTokenMalformed
		}
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrTokenMalformed
	}
	return Identity{Username: claims.Subject, Role: claims.Role}, nil
}
