// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package auth resolves request credentials into a principal.

# Architecture

The Authenticator is the first pipeline stage of the gateway. It inspects
exactly one credential carrier per request, selected by configuration:

  - apikey: X-API-Key header or api_key query parameter, checked against
    the static key list and (optionally) the users table.
  - basic: the standard Authorization Basic header, checked against the
    users table (Argon2id) or the static user map.
  - jwt: Authorization Bearer token, verified by the token service. No
    database round-trip; the role travels inside the claims.

Failures are deliberately uniform: missing credentials yield AUTH_REQUIRED,
anything presented-but-wrong yields AUTH_INVALID, and neither message
reveals whether a username or key exists.
*/
package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/internal/platform/sec"
)

// bearerPrefix is the Authorization scheme consumed by the jwt method.
const bearerPrefix = "Bearer "

// Authenticator turns HTTP requests into principals.
type Authenticator struct {
	cfg    config.AuthConfig
	tokens *sec.TokenService // nil unless method is jwt or login is served
	store  UserStore         // nil unless database auth is enabled
	logger *slog.Logger

	// staticKeys indexes the configured API keys for O(1) lookup.
	staticKeys map[string]struct{}
}

// NewAuthenticator constructs an [Authenticator].
//
// tokens may be nil when the jwt method is unused; store may be nil when
// database auth is disabled.
func NewAuthenticator(cfg config.AuthConfig, tokens *sec.TokenService, store UserStore, logger *slog.Logger) *Authenticator {
	staticKeys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key != "" {
			staticKeys[key] = struct{}{}
		}
	}

	return &Authenticator{
		cfg:        cfg,
		tokens:     tokens,
		store:      store,
		logger:     logger.With(slog.String("component", "auth")),
		staticKeys: staticKeys,
	}
}

// Enabled reports whether authentication is active.
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

// # Request Authentication

// Authenticate resolves the request's principal.
//
// When authentication is disabled every request maps to the synthetic
// anonymous principal carrying the configured default role.
func (a *Authenticator) Authenticate(r *http.Request) (*sec.Principal, error) {
	if !a.cfg.Enabled {
		return sec.Anonymous(a.cfg.DefaultRole), nil
	}

	switch a.cfg.Method {
	case "apikey":
		return a.authenticateAPIKey(r)
	case "basic":
		return a.authenticateBasic(r)
	case "jwt":
		return a.authenticateJWT(r)
	default:
		return nil, apperr.Internal(nil)
	}
}

// authenticateAPIKey checks the X-API-Key header, falling back to the
// api_key query parameter.
func (a *Authenticator) authenticateAPIKey(r *http.Request) (*sec.Principal, error) {
	key := r.Header.Get(constants.HeaderXAPIKey)
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if key == "" {
		return nil, apperr.AuthRequired("Authentication credentials are required")
	}

	// 1. Static keys from configuration share one configured role.
	if _, ok := a.staticKeys[key]; ok {
		return &sec.Principal{
			Username: "apikey:" + sec.HashToken(key)[:12],
			Role:     a.cfg.APIKeyRole,
			Method:   sec.MethodAPIKey,
		}, nil
	}

	// 2. Database-issued keys resolve to their owning user.
	if a.cfg.UseDatabaseAuth && a.store != nil {
		user, err := a.store.FindByAPIKey(r.Context(), key)
		if err == nil {
			return &sec.Principal{
				Username: user.Username,
				Role:     user.Role,
				Method:   sec.MethodAPIKey,
			}, nil
		}
		if !apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, err
		}
	}

	a.logger.Warn("auth_failed", slog.String("method", "apikey"))
	return nil, apperr.AuthInvalid("Invalid credentials")
}

// authenticateBasic checks HTTP Basic credentials.
func (a *Authenticator) authenticateBasic(r *http.Request) (*sec.Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, apperr.AuthRequired("Authentication credentials are required")
	}

	user, err := a.verifyPassword(r.Context(), username, password)
	if err != nil {
		a.logger.Warn("auth_failed",
			slog.String("method", "basic"),
			slog.String("user", username))
		return nil, err
	}

	return &sec.Principal{
		Username: user.Username,
		Role:     user.Role,
		Method:   sec.MethodBasic,
	}, nil
}

// authenticateJWT checks the Authorization Bearer token.
func (a *Authenticator) authenticateJWT(r *http.Request) (*sec.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apperr.AuthRequired("Authentication credentials are required")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, apperr.AuthInvalid("Invalid credentials")
	}

	if a.tokens == nil {
		return nil, apperr.Internal(nil)
	}

	claims, err := a.tokens.VerifyToken(strings.TrimPrefix(header, bearerPrefix))
	if err != nil {
		a.logger.Warn("auth_failed", slog.String("method", "jwt"))
		return nil, apperr.AuthInvalid("Invalid or expired token").WithCause(err)
	}

	return &sec.Principal{
		Username: claims.Subject,
		Role:     claims.Role,
		Method:   sec.MethodJWT,
	}, nil
}

// # Login

// LoginResult is the payload of a successful login action. ExpiresAt is
// epoch seconds.
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	User      string `json:"user"`
	Role      string `json:"role"`
}

// Login verifies a username/password pair and issues a JWT access token.
//
// Requires the token service; callers route the login action only when the
// jwt method is configured.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if a.tokens == nil {
		return nil, apperr.Internal(nil)
	}
	if username == "" || password == "" {
		return nil, apperr.InvalidInput("username and password are required")
	}

	user, err := a.verifyPassword(ctx, username, password)
	if err != nil {
		a.logger.Warn("login_failed", slog.String("user", username))
		return nil, err
	}

	token, expiresAt, err := a.tokens.GenerateAccessToken(user.Username, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if a.cfg.UseDatabaseAuth && a.store != nil && user.ID > 0 {
		// Best-effort: a failed timestamp update must not fail the login.
		if err := a.store.TouchLastLogin(ctx, user.ID); err != nil {
			a.logger.Warn("last_login_update_failed", slog.String("user", user.Username))
		}
	}

	a.logger.Info("login_ok",
		slog.String("user", user.Username),
		slog.String("role", user.Role))

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		User:      user.Username,
		Role:      user.Role,
	}, nil
}

// # Credential Verification

// verifyPassword resolves a username/password pair against the users table
// or the static configuration map.
func (a *Authenticator) verifyPassword(ctx context.Context, username, password string) (*User, error) {
	if a.cfg.UseDatabaseAuth && a.store != nil {
		user, err := a.store.FindByUsername(ctx, username)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				return nil, apperr.AuthInvalid("Invalid credentials")
			}
			return nil, err
		}
		if !sec.CheckPasswordHash(password, user.PasswordHash) {
			return nil, apperr.AuthInvalid("Invalid credentials")
		}
		return user, nil
	}

	expected, ok := a.cfg.BasicUsers[username]
	if !ok || subtle.ConstantTimeCompare([]byte(expected), []byte(password)) != 1 {
		return nil, apperr.AuthInvalid("Invalid credentials")
	}

	role := a.cfg.UserRoles[username]
	if role == "" {
		role = a.cfg.DefaultRole
	}

	return &User{Username: username, Role: role, Active: true}, nil
}
