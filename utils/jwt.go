package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrRefreshExpired = errors.New("refresh has expired")
)

type Claims struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	OrigIat int64  `json:"orig_iat"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 session tokens. A token can be
// refreshed while it is still valid and its original issue time lies within
// the refresh window.
type TokenManager struct {
	secret        []byte
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

func NewTokenManager(secret string, ttl, refreshWindow time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		ttl:           ttl,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

func (m *TokenManager) Generate(userID uint, email string) (string, error) {
	now := m.now()
	return m.sign(userID, email, now, now.Unix())
}

func (m *TokenManager) sign(userID uint, email string, now time.Time, origIat int64) (string, error) {
	claims := Claims{
		UserID:  userID,
		Email:   email,
		OrigIat: origIat,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "gullin",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Refresh issues a new token for a still valid one, keeping orig_iat.
func (m *TokenManager) Refresh(tokenString string) (string, *Claims, error) {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	if claims.OrigIat == 0 || now.After(time.Unix(claims.OrigIat, 0).Add(m.refreshWindow)) {
		return "", nil, ErrRefreshExpired
	}
	signed, err := m.sign(claims.UserID, claims.Email, now, claims.OrigIat)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}
