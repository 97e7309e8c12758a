// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

// Package sec provides cryptographic primitives and identity types.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the pipeline logic. It acts as an Infrastructure service injected into the
// Authenticator via small interfaces.
package sec

// AuthMethod identifies how a principal's credentials were presented.
type AuthMethod string

const (
	// MethodAPIKey marks principals resolved from X-API-Key or api_key.
	MethodAPIKey AuthMethod = "apikey"

	// MethodBasic marks principals resolved from HTTP Basic credentials.
	MethodBasic AuthMethod = "basic"

	// MethodJWT marks principals resolved from a Bearer token.
	MethodJWT AuthMethod = "jwt"

	// MethodAnonymous marks the synthetic principal used when auth is disabled.
	MethodAnonymous AuthMethod = "anonymous"
)

// Principal is the authenticated subject attached to every request.
//
// # Invariant
//
// A Principal always carries a non-empty Role. Anonymous principals exist
// only when authentication is disabled in configuration.
type Principal struct {
	// Username identifies the subject ("anonymous" for the synthetic principal).
	Username string

	// Role is the RBAC role bundle the subject acts under.
	Role string

	// Method records which credential carrier produced this principal.
	Method AuthMethod
}

// Anonymous constructs the synthetic principal used when auth is disabled.
func Anonymous(role string) *Principal {
	if role == "" {
		role = "admin"
	}
	return &Principal{
		Username: "anonymous",
		Role:     role,
		Method:   MethodAnonymous,
	}
}
