// Package auth is the identity provider: a bcrypt-hashed customer registry
// persisted through the record store, plus a fixed admin credential that
// bypasses the stored collection entirely. Sessions are stateless JWTs.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/andrescamacho/guiatrack/internal/model"
	"github.com/andrescamacho/guiatrack/internal/service"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail mirrors the service sentinel.
	ErrDuplicateEmail = service.ErrDuplicateEmail
	// ErrInvalidToken is returned for expired or tampered session tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// Directory is the slice of the service the provider needs: persisting and
// finding customer principals.
type Directory interface {
	AddUser(ctx context.Context, user model.User) error
	UserByEmail(email string) (model.User, error)
}

// Provider authenticates principals and issues session tokens.
type Provider struct {
	dir           Directory
	adminEmail    string
	adminPassword string
	jwtSecret     []byte
	tokenTTL      time.Duration
}

// NewProvider constructs a Provider. adminEmail/adminPassword form the
// distinguished staff credential; they are configuration, never stored.
func NewProvider(dir Directory, adminEmail, adminPassword string, jwtSecret []byte, tokenTTL time.Duration) *Provider {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Provider{
		dir:           dir,
		adminEmail:    model.NormalizeEmail(adminEmail),
		adminPassword: adminPassword,
		jwtSecret:     jwtSecret,
		tokenTTL:      tokenTTL,
	}
}

// Register creates a customer principal. The secret is bcrypt-hashed before it
// ever reaches the store.
func (p *Provider) Register(ctx context.Context, displayName, email, secret string) (model.Principal, error) {
	email = model.NormalizeEmail(email)
	if displayName == "" || email == "" || secret == "" {
		return model.Principal{}, fmt.Errorf("display name, email and password are required: %w", service.ErrInvalidInput)
	}
	if email == p.adminEmail {
		return model.Principal{}, fmt.Errorf("%q: %w", email, ErrDuplicateEmail)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return model.Principal{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleCustomer,
	}
	if err := p.dir.AddUser(ctx, user); err != nil {
		return model.Principal{}, err
	}
	return model.Principal{Email: email, DisplayName: displayName, Role: model.RoleCustomer}, nil
}

// Authenticate checks the admin credential first, then the stored registry.
func (p *Provider) Authenticate(ctx context.Context, identifier, secret string) (model.Principal, error) {
	identifier = model.NormalizeEmail(identifier)
	if p.adminEmail != "" && identifier == p.adminEmail {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(p.adminPassword)) == 1 {
			return model.Principal{Email: p.adminEmail, DisplayName: "Administrator", Role: model.RoleAdmin}, nil
		}
		return model.Principal{}, ErrInvalidCredentials
	}
	user, err := p.dir.UserByEmail(identifier)
	if err != nil {
		return model.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return model.Principal{}, ErrInvalidCredentials
	}
	return model.Principal{Email: user.Email, DisplayName: user.DisplayName, Role: user.Role}, nil
}

// claims carries the principal inside the JWT.
type claims struct {
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed session token for a principal.
func (p *Provider) IssueToken(principal model.Principal) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DisplayName: principal.DisplayName,
		Role:        string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
	})
	signed, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a session token back into a principal.
func (p *Provider) VerifyToken(raw string) (model.Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return model.Principal{}, ErrInvalidToken
	}
	return model.Principal{
		Email:       c.Subject,
		DisplayName: c.DisplayName,
		Role:        model.Role(c.Role),
	}, nil
}
