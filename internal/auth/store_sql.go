// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/database"
)

// userColumns is the fixed projection shared by every user query.
const userColumns = "id, username, email, password_hash, role, api_key, active, created_at, updated_at, last_login"

// SQLUserStore is the [UserStore] backed by the gateway's own users table.
type SQLUserStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLUserStore constructs a [SQLUserStore] over the shared pool.
func NewSQLUserStore(db *sql.DB, dialect database.Dialect) *SQLUserStore {
	return &SQLUserStore{db: db, dialect: dialect}
}

// FindByUsername implements [UserStore].
func (store *SQLUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM users WHERE username = %s AND active = %s",
		userColumns, store.dialect.Placeholder(1), store.dialect.Placeholder(2),
	)
	return store.queryUser(ctx, query, username, true)
}

// FindByAPIKey implements [UserStore].
func (store *SQLUserStore) FindByAPIKey(ctx context.Context, apiKey string) (*User, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM users WHERE api_key = %s AND active = %s",
		userColumns, store.dialect.Placeholder(1), store.dialect.Placeholder(2),
	)
	return store.queryUser(ctx, query, apiKey, true)
}

// TouchLastLogin implements [UserStore].
func (store *SQLUserStore) TouchLastLogin(ctx context.Context, userID int64) error {
	query := fmt.Sprintf(
		"UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = %s",
		store.dialect.Placeholder(1),
	)

	if _, err := store.db.ExecContext(ctx, query, userID); err != nil {
		return apperr.Upstream(fmt.Errorf("auth: last_login update failed: %w", err))
	}
	return nil
}

// queryUser runs a single-row user query and scans the shared projection.
func (store *SQLUserStore) queryUser(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	var email, apiKey sql.NullString
	var lastLogin sql.NullTime

	err := store.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Username,
		&email,
		&user.PasswordHash,
		&user.Role,
		&apiKey,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, apperr.NotFound("User")
	case err != nil:
		return nil, apperr.Upstream(fmt.Errorf("auth: user lookup failed: %w", err))
	}

	// email and api_key are nullable in the users schema.
	user.Email = email.String
	user.APIKey = apiKey.String
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}
