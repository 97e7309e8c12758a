// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package rbac decides whether a role may perform an action on a table.

Rules come from configuration as role → table → action-set, with "*" as a
table wildcard. An explicit entry with an EMPTY action set is a deny that
takes precedence over the wildcard, so broad grants can be surgically
revoked for sensitive tables (e.g. the users table for a readonly role).
*/
package rbac

// Action is the RBAC permission category checked against rules.
//
// The router maps gateway actions onto these categories (count shares the
// list category, bulk operations share their scalar counterpart).
type Action string

const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Wildcard is the table key that applies a rule to every table.
const Wildcard = "*"

// Authorizer answers allow/deny for (role, table, action) triples.
//
// The rule set is immutable after construction, so lookups need no locking.
type Authorizer struct {
	rules map[string]map[string]map[Action]struct{}
}

// New builds an [Authorizer] from the configuration rule structure.
func New(rules map[string]map[string][]string) *Authorizer {
	compiled := make(map[string]map[string]map[Action]struct{}, len(rules))

	for role, tables := range rules {
		compiled[role] = make(map[string]map[Action]struct{}, len(tables))
		for table, actions := range tables {
			// An empty set is preserved: it encodes an explicit DENY.
			set := make(map[Action]struct{}, len(actions))
			for _, action := range actions {
				set[Action(action)] = struct{}{}
			}
			compiled[role][table] = set
		}
	}

	return &Authorizer{rules: compiled}
}

// IsAllowed implements the decision function.
//
// # Precedence
//
//  1. Unknown role: deny.
//  2. Exact table entry: empty set denies; otherwise membership decides.
//  3. Wildcard entry: membership decides.
//  4. No entry: deny.
func (a *Authorizer) IsAllowed(role, table string, action Action) bool {
	tables, knownRole := a.rules[role]
	if !knownRole {
		return false
	}

	if set, exact := tables[table]; exact {
		if len(set) == 0 {
			return false
		}
		_, allowed := set[action]
		return allowed
	}

	if set, wildcard := tables[Wildcard]; wildcard {
		_, allowed := set[action]
		return allowed
	}

	return false
}

// KnownRole reports whether the role appears in the rule set at all.
func (a *Authorizer) KnownRole(role string) bool {
	_, ok := a.rules[role]
	return ok
}
