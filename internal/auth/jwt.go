// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/channelsync/internal/config"
)

// Operator roles. The casbin policy in internal/authz grants them
// permissions over the operator API.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// ErrUnknownRole is returned when a token is requested for a role the
// policy does not know.
var ErrUnknownRole = errors.New("unknown role")

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager creates a token manager signing with HMAC-SHA256.
// The secret must not be empty; config validation enforces its length.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	return &JWTManager{
		secret:  []byte(secret),
		timeout: cfg.TokenTTL,
	}, nil
}

// GenerateToken creates a signed operator token valid for the configured
// token TTL.
//
// Tokens are stateless and cannot be revoked before they expire. Rotate
// security.jwt_secret to invalidate every outstanding token.
func (m *JWTManager) GenerateToken(username, role string) (string, error) {
	if role != RoleOperator && role != RoleViewer {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and extracts the operator claims.
//
// Tokens signed with anything other than HMAC are rejected, which closes
// the "alg: none" and RS/HS confusion attacks. Expiry and not-before are
// checked against server time.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
