// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package reqlog

import (
	"strings"

	"github.com/relatadb/relata/internal/platform/constants"
)

// defaultSensitiveKeys are always redacted regardless of configuration.
var defaultSensitiveKeys = []string{
	"password", "token", "secret", "api_key", "apikey", "authorization",
}

// redactor replaces sensitive values before they reach the log file.
type redactor struct {
	keys map[string]struct{}
}

// newRedactor merges the built-in key list with configured additions.
// Matching is case-insensitive on the full key name.
func newRedactor(extra []string) *redactor {
	keys := make(map[string]struct{}, len(defaultSensitiveKeys)+len(extra))
	for _, key := range defaultSensitiveKeys {
		keys[key] = struct{}{}
	}
	for _, key := range extra {
		if key != "" {
			keys[strings.ToLower(key)] = struct{}{}
		}
	}
	return &redactor{keys: keys}
}

// sensitive reports whether the key names a credential field.
func (red *redactor) sensitive(key string) bool {
	_, ok := red.keys[strings.ToLower(key)]
	return ok
}

// Map returns a deep copy of value with sensitive entries replaced.
//
// Nested maps and slices are walked recursively so credentials inside
// compound bodies (bulk payloads, nested JSON objects) are caught too.
func (red *redactor) Map(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}

	clean := make(map[string]any, len(value))
	for key, entry := range value {
		if red.sensitive(key) {
			clean[key] = constants.RedactedSentinel
			continue
		}
		clean[key] = red.value(entry)
	}
	return clean
}

// value redacts one arbitrary JSON-shaped value.
func (red *redactor) value(entry any) any {
	switch typed := entry.(type) {
	case map[string]any:
		return red.Map(typed)
	case []any:
		clean := make([]any, len(typed))
		for i, element := range typed {
			clean[i] = red.value(element)
		}
		return clean
	default:
		return entry
	}
}

// Values redacts a string-list map (query parameters, headers).
func (red *redactor) Values(value map[string][]string) map[string][]string {
	if value == nil {
		return nil
	}

	clean := make(map[string][]string, len(value))
	for key, entries := range value {
		if red.sensitive(key) {
			clean[key] = []string{constants.RedactedSentinel}
			continue
		}
		clean[key] = append([]string(nil), entries...)
	}
	return clean
}
