// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package constants provides centralized, immutable values for the entire gateway.

It defines default timeouts, pagination bounds, and cross-cutting header keys
that are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Pipeline: Rate-limit and cache response headers.
  - Security: Credential carrier headers and redaction sentinel.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "relata-api"
	AppVersion = "0.3.0"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request pipeline.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Request Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXAPIKey       = "X-API-Key"
	HeaderAuthorization = "Authorization"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
	HeaderOrigin        = "Origin"
	HeaderRetryAfter    = "Retry-After"
)

// # Rate Limit Headers

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitWindow    = "X-RateLimit-Window"
)

// # Cache Headers

const (
	HeaderCacheHit    = "X-Cache-Hit"
	HeaderCacheTTL    = "X-Cache-TTL"
	HeaderCacheStored = "X-Cache-Stored"
)

// # Pagination Bounds

const (
	// DefaultPage is the starting page (1-indexed).
	DefaultPage = 1

	// DefaultPageSize is the number of rows per page if not specified.
	DefaultPageSize = 20

	// MaxPageSize is the upper bound for rows per page to prevent system abuse.
	MaxPageSize = 100
)

// # Identifiers

const (
	// MaxIdentifierLength is the longest table or column name accepted,
	// matching the MySQL identifier limit.
	MaxIdentifierLength = 64
)

// # Redaction

const (
	// RedactedSentinel replaces sensitive values in request logs.
	RedactedSentinel = "[REDACTED]"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Shared Store Taxonomy

const (
	// CacheKeyPrefix namespaces every gateway cache entry in shared stores.
	CacheKeyPrefix = "relata:cache:"

	// RateLimitKeyPrefix namespaces sliding-window entries in shared stores.
	RateLimitKeyPrefix = "relata:ratelimit:"
)
