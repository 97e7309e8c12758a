// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the Role directly inside the JWT, the Authenticator can
// reconstruct the active principal WITHOUT querying the database on every
// single API request. This provides massive read-scalability.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Role is the RBAC role granted to the subject.
	Role string `json:"role"`
}

// TokenService handles generation and verification of JWT tokens using HS256.
//
// # Key Management
//
// The signing secret is symmetric and configured at startup. Secrets shorter
// than 32 bytes are rejected to keep brute-force resistance reasonable.
type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	expiration time.Duration
}

// NewTokenService creates a new TokenService.
func NewTokenService(secret, issuer, audience string, expiration time.Duration) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sec: JWT secret must be at least 32 bytes, got %d", len(secret))
	}

	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		expiration: expiration,
	}, nil
}

// Expiration returns the configured token lifetime.
func (service *TokenService) Expiration() time.Duration {
	return service.expiration
}

// GenerateAccessToken creates a new JWT access token for a user.
//
// # Returns
//   - The signed token string.
//   - The absolute expiration time, exposed to the login response.
func (service *TokenService) GenerateAccessToken(username, role string) (string, time.Time, error) {
	currentTime := time.Now()
	expiresAt := currentTime.Add(service.expiration)

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    service.issuer,
			Audience:  jwt.ClaimStrings{service.audience},
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// VerifyToken checks the signature, expiration, issuer, and audience of a JWT
// string and returns its claims.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&AuthClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.secret, nil
		},
		jwt.WithIssuer(service.issuer),
		jwt.WithAudience(service.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}
