// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package auth

import (
	"context"
	"time"
)

// User is one row of the users table.
//
// PasswordHash stores the Argon2id PHC string; APIKey is the opaque key
// issued to machine clients. Either credential may be empty when the user
// authenticates through the other carrier.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	APIKey       string     `json:"-"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// UserStore resolves credentials against persisted users.
//
// Implementations return apperr.NotFound when no matching active user
// exists; the authenticator maps that to a credential failure so the
// response does not reveal whether the username was valid.
type UserStore interface {
	// FindByUsername returns the active user with the given username.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByAPIKey returns the active user owning the given API key.
	FindByAPIKey(ctx context.Context, apiKey string) (*User, error)

	// TouchLastLogin records a successful login timestamp.
	TouchLastLogin(ctx context.Context, userID int64) error
}
