// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package api

import (
	"net/http"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/rbac"
)

// Action is the operation selector carried in the ?action= parameter.
type Action string

// Data-plane actions.
const (
	ActionList       Action = "list"
	ActionRead       Action = "read"
	ActionCount      Action = "count"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionBulkCreate Action = "bulk_create"
	ActionBulkDelete Action = "bulk_delete"
)

// Meta actions.
const (
	ActionTables  Action = "tables"
	ActionColumns Action = "columns"
	ActionOpenAPI Action = "openapi"
	ActionLogin   Action = "login"
	ActionHealth  Action = "health"
)

// actionSpec describes one action's routing constraints.
type actionSpec struct {
	// methods lists the accepted HTTP verbs.
	methods []string

	// needsTable requires a valid table parameter.
	needsTable bool

	// needsID requires an id parameter.
	needsID bool

	// permission is the RBAC category checked against the target table;
	// empty means the action skips per-table RBAC.
	permission rbac.Action

	// readClass marks actions whose responses are cacheable.
	readClass bool

	// public marks actions served before authentication (login only).
	public bool
}

// actionTable is the closed action registry. Unknown actions are rejected
// before any other pipeline stage sees them.
var actionTable = map[Action]actionSpec{
	ActionList:  {methods: []string{http.MethodGet}, needsTable: true, permission: rbac.ActionList, readClass: true},
	ActionRead:  {methods: []string{http.MethodGet}, needsTable: true, needsID: true, permission: rbac.ActionRead, readClass: true},
	ActionCount: {methods: []string{http.MethodGet}, needsTable: true, permission: rbac.ActionList, readClass: true},

	// update and delete also accept POST for form-only clients.
	ActionCreate: {methods: []string{http.MethodPost}, needsTable: true, permission: rbac.ActionCreate},
	ActionUpdate: {methods: []string{http.MethodPost, http.MethodPut, http.MethodPatch}, needsTable: true, needsID: true, permission: rbac.ActionUpdate},
	ActionDelete: {methods: []string{http.MethodPost, http.MethodDelete}, needsTable: true, needsID: true, permission: rbac.ActionDelete},

	// Bulk writes share the RBAC category of their scalar counterpart.
	ActionBulkCreate: {methods: []string{http.MethodPost}, needsTable: true, permission: rbac.ActionCreate},
	ActionBulkDelete: {methods: []string{http.MethodPost, http.MethodDelete}, needsTable: true, permission: rbac.ActionDelete},

	// Meta actions: schema discovery needs list permission on the target
	// (columns) or any authenticated principal (tables, openapi).
	ActionTables:  {methods: []string{http.MethodGet}},
	ActionColumns: {methods: []string{http.MethodGet}, needsTable: true, permission: rbac.ActionList, readClass: true},
	ActionOpenAPI: {methods: []string{http.MethodGet}},
	ActionHealth:  {methods: []string{http.MethodGet}},

	ActionLogin: {methods: []string{http.MethodPost}, public: true},
}

// parseAction resolves and verb-checks the request's action.
func parseAction(r *http.Request) (Action, actionSpec, error) {
	raw := r.URL.Query().Get("action")
	if raw == "" {
		return "", actionSpec{}, apperr.InvalidInput("Missing required parameter: action")
	}

	action := Action(raw)
	spec, known := actionTable[action]
	if !known {
		return "", actionSpec{}, apperr.InvalidInput("Unknown action: " + raw)
	}

	for _, method := range spec.methods {
		if r.Method == method {
			return action, spec, nil
		}
	}
	return "", actionSpec{}, apperr.MethodNotAllowed(r.Method, raw)
}
