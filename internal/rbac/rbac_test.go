// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRules() map[string]map[string][]string {
	return map[string]map[string][]string{
		"admin": {
			"*": {"list", "read", "create", "update", "delete"},
		},
		"readonly": {
			"*":     {"list", "read"},
			"users": {},
		},
		"editor": {
			"articles": {"list", "read", "create", "update"},
		},
	}
}

/*
TestIsAllowed covers the decision precedence: exact entry over wildcard,
empty set as explicit deny, unknown role denied.
*/
func TestIsAllowed(t *testing.T) {
	authorizer := New(testRules())

	tests := []struct {
		name   string
		role   string
		table  string
		action Action
		want   bool
	}{
		{"admin wildcard delete", "admin", "orders", ActionDelete, true},
		{"readonly wildcard read", "readonly", "orders", ActionRead, true},
		{"readonly wildcard write denied", "readonly", "orders", ActionCreate, false},
		{"readonly explicit deny beats wildcard", "readonly", "users", ActionRead, false},
		{"readonly explicit deny list", "readonly", "users", ActionList, false},
		{"editor exact table update", "editor", "articles", ActionUpdate, true},
		{"editor exact table delete denied", "editor", "articles", ActionDelete, false},
		{"editor other table denied", "editor", "orders", ActionList, false},
		{"unknown role denied", "ghost", "orders", ActionList, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, authorizer.IsAllowed(tt.role, tt.table, tt.action))
		})
	}
}

/*
TestKnownRole distinguishes roles present in the rule set from absent ones.
*/
func TestKnownRole(t *testing.T) {
	authorizer := New(testRules())

	assert.True(t, authorizer.KnownRole("readonly"))
	assert.False(t, authorizer.KnownRole("ghost"))
}
