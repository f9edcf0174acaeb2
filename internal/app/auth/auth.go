// Package auth issues and verifies the bearer tokens used by the
// authenticated API. Identity stays external to the domain: services only
// ever see the owner id extracted from a verified token.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vanitypay/vanitypay/internal/app/core/service"
)

// User is a configured API user. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Claims are the JWT claims carried by issued tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens for the configured users.
type Manager struct {
	secret []byte
	ttl    time.Duration
	users  map[string]User
}

// NewManager builds a Manager. A non-positive ttl defaults to 24 hours.
func NewManager(secret string, ttl time.Duration, users []User) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	byName := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username != "" {
			byName[u.Username] = u
		}
	}
	return &Manager{secret: []byte(secret), ttl: ttl, users: byName}
}

// Login checks the credentials and returns a signed token. Unknown users and
// wrong passwords fail identically.
func (m *Manager) Login(username, password string) (string, error) {
	user, ok := m.users[strings.TrimSpace(username)]
	if !ok {
		return "", fmt.Errorf("invalid credentials: %w", service.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", service.ErrUnauthorized)
	}
	return m.Issue(user.Username)
}

// Issue signs a token identifying userID.
func (m *Manager) Issue(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", service.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: %w", service.ErrUnauthorized)
	}
	return claims, nil
}

// HashPassword produces a bcrypt hash for configuration files and tests.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
