package admin

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long an admin token stays valid
const TokenTTL = 24 * time.Hour

var (
	// ErrDisabled is returned when no admin password is configured
	ErrDisabled = errors.New("admin access is not configured")

	// ErrInvalidPassword is returned for a wrong admin password
	ErrInvalidPassword = errors.New("Неверный пароль")

	// ErrInvalidToken is returned for a missing, forged or expired token
	ErrInvalidToken = errors.New("Unauthorized")
)

// Token is issued on a successful login
type Token struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth checks the admin password and issues HS256 tokens
type Auth struct {
	hash   []byte
	secret []byte
	now    func() time.Time
}

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return hashed, nil
}

// NewAuth creates an Auth for a bcrypt password hash. An empty hash disables login.
func NewAuth(hash []byte, secret string) *Auth {
	return NewAuthWithClock(hash, secret, time.Now)
}

// NewAuthWithClock creates an Auth with a custom clock (for testing)
func NewAuthWithClock(hash []byte, secret string, now func() time.Time) *Auth {
	return &Auth{
		hash:   hash,
		secret: []byte(secret),
		now:    now,
	}
}

// Login issues a token when password matches
func (a *Auth) Login(password string) (*Token, error) {
	if len(a.hash) == 0 || len(a.secret) == 0 {
		return nil, ErrDisabled
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return nil, ErrInvalidPassword
	}

	now := a.now()
	c := claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Token{Token: signed, ExpiresIn: int(TokenTTL.Seconds())}, nil
}

// Verify checks a token issued by Login
func (a *Auth) Verify(token string) error {
	if token == "" || len(a.secret) == 0 {
		return ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	parsed, err := parser.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if c, ok := parsed.Claims.(*claims); !ok || c.Role != "admin" {
		return ErrInvalidToken
	}
	return nil
}
