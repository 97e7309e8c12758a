// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package api wires the request pipeline and the HTTP server.

# Architecture

Every data-plane request enters through one endpoint (/api?action=...) and
flows through a fixed pipeline:

	parse action → authenticate → rate limit → validate target →
	authorize (RBAC) → cache lookup → execute → invalidate/store cache →
	respond → audit log + metrics

Authentication, rate limiting, and caching are pipeline stages here rather
than router middleware: the limiter prefers the authenticated identity, and
the cache key may vary by principal, so the stages are order-dependent in a
way a generic middleware chain cannot express. Cross-cutting concerns with
no such coupling (request IDs, process logging, panic recovery, timeouts,
CORS) stay in the middleware chain.
*/
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/relatadb/relata/internal/auth"
	"github.com/relatadb/relata/internal/cache"
	"github.com/relatadb/relata/internal/crud"
	"github.com/relatadb/relata/internal/monitor"
	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/ctxutil"
	"github.com/relatadb/relata/internal/platform/middleware"
	"github.com/relatadb/relata/internal/platform/respond"
	"github.com/relatadb/relata/internal/platform/sec"
	"github.com/relatadb/relata/internal/query"
	"github.com/relatadb/relata/internal/ratelimit"
	"github.com/relatadb/relata/internal/rbac"
	"github.com/relatadb/relata/internal/reqlog"
)

// maxBodyBytes bounds request bodies before JSON decoding.
const maxBodyBytes = 4 << 20 // 4 MiB

// maxMultipartMemory bounds in-memory parsing of multipart forms.
const maxMultipartMemory = 1 << 20 // 1 MiB

// Gateway is the single handler behind /api.
type Gateway struct {
	engine        *crud.Engine
	authenticator *auth.Authenticator
	authorizer    *rbac.Authorizer
	limiter       *ratelimit.Limiter
	cache         *cache.Manager
	auditLog      *reqlog.Logger   // nil when request logging is disabled
	monitor       *monitor.Monitor // nil when monitoring is disabled
	logger        *slog.Logger
	trustProxy    bool
}

// NewGateway constructs the pipeline handler. auditLog and monitor are
// optional.
func NewGateway(
	engine *crud.Engine,
	authenticator *auth.Authenticator,
	authorizer *rbac.Authorizer,
	limiter *ratelimit.Limiter,
	cacheManager *cache.Manager,
	auditLog *reqlog.Logger,
	mon *monitor.Monitor,
	logger *slog.Logger,
	trustProxy bool,
) *Gateway {
	return &Gateway{
		engine:        engine,
		authenticator: authenticator,
		authorizer:    authorizer,
		limiter:       limiter,
		cache:         cacheManager,
		auditLog:      auditLog,
		monitor:       mon,
		logger:        logger.With(slog.String("component", "gateway")),
		trustProxy:    trustProxy,
	}
}

// outcome accumulates bookkeeping across the pipeline for the audit trail.
type outcome struct {
	action      Action
	table       string
	principal   *sec.Principal
	status      int
	cacheHit    bool
	authFailure bool
	rateLimited bool
	err         error
	body        any
	response    any
}

// ServeHTTP implements the full pipeline.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := &outcome{}

	g.handle(w, r, result)
	g.finish(w, r, result, time.Since(start))
}

// handle runs the pipeline stages in order, recording into result.
func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, result *outcome) {
	// 1. Action parsing and verb check.
	action, spec, err := parseAction(r)
	if err != nil {
		g.fail(w, r, result, err)
		return
	}
	result.action = action

	// 2. Authentication (login authenticates via its own body).
	var principal *sec.Principal
	if !spec.public {
		principal, err = g.authenticator.Authenticate(r)
		if err != nil {
			result.authFailure = true
			g.fail(w, r, result, err)
			return
		}
		result.principal = principal
		r = r.WithContext(ctxutil.WithPrincipal(r.Context(), principal))
	}

	// 3. Rate limiting. Headers are emitted on every response, allowed
	// or denied, so clients can pace themselves.
	decision, err := g.limiter.Allow(r, principal)
	g.limiter.WriteHeaders(w, decision)
	if err != nil {
		result.rateLimited = true
		g.fail(w, r, result, err)
		return
	}

	// 4. Target validation.
	table := r.URL.Query().Get("table")
	if spec.needsTable {
		if table == "" {
			g.fail(w, r, result, apperr.InvalidInput("Missing required parameter: table"))
			return
		}
		if err := query.CheckIdentifier("table", table); err != nil {
			g.fail(w, r, result, err)
			return
		}
		result.table = table
	}

	// 5. Authorization. DENY by default: only explicit grants pass.
	if spec.permission != "" {
		if !g.authorizer.IsAllowed(principal.Role, table, spec.permission) {
			g.fail(w, r, result, apperr.Forbidden("Role is not allowed to perform this action"))
			return
		}
	}

	// 6. Cache lookup for read-class actions.
	var cacheKey string
	if spec.readClass && g.cache.ShouldCache(table) {
		cacheKey = g.cache.Key(table, string(action), r.URL.Query(), principal)
		if entry, hit := g.cache.Lookup(r.Context(), cacheKey); hit {
			result.cacheHit = true
			result.status = http.StatusOK
			g.cache.WriteHeaders(w, table, entry)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(entry.Payload)
			return
		}
		g.cache.WriteHeaders(w, table, nil)
	}

	// 7. Execution.
	status, payload, err := g.dispatch(r, action, spec, table, result)
	if err != nil {
		g.fail(w, r, result, err)
		return
	}

	// 8. Write-through invalidation BEFORE the success response: a client
	// that re-reads after its acknowledged write must not see stale cache.
	if isWrite(action) {
		if err := g.cache.InvalidateTable(r.Context(), table); err != nil {
			g.fail(w, r, result, apperr.Internal(err))
			return
		}
	}

	// 9. Cache storage for read-class misses. A fresh store is announced
	// to the client before the body is committed.
	if cacheKey != "" && status == http.StatusOK {
		if raw, encodeErr := json.Marshal(payload); encodeErr == nil {
			if g.cache.Put(r.Context(), table, cacheKey, raw) {
				g.cache.WriteStored(w)
			}
		}
	}

	result.status = status
	result.response = payload
	respond.JSON(w, status, payload)
}

// fail records and writes an error response.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, result *outcome, err error) {
	result.err = err
	result.status = http.StatusInternalServerError
	if ae := apperr.As(err); ae != nil {
		result.status = ae.HTTPStatus
	}
	respond.Error(w, r, err)
}

// isWrite reports whether the action mutates its table.
func isWrite(action Action) bool {
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete, ActionBulkCreate, ActionBulkDelete:
		return true
	}
	return false
}

// # Dispatch

// dispatch executes the action and returns the response payload.
func (g *Gateway) dispatch(r *http.Request, action Action, spec actionSpec, table string, result *outcome) (int, any, error) {
	ctx := r.Context()

	if spec.needsID && r.URL.Query().Get("id") == "" {
		return 0, nil, apperr.InvalidInput("Missing required parameter: id")
	}
	id := r.URL.Query().Get("id")

	switch action {
	case ActionList:
		options, err := query.ParseListOptions(r.URL.Query())
		if err != nil {
			return 0, nil, err
		}
		listResult, err := g.engine.List(ctx, table, options)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, respond.PaginatedEnvelope{Data: listResult.Data, Meta: listResult.Meta}, nil

	case ActionCount:
		options, err := query.ParseListOptions(r.URL.Query())
		if err != nil {
			return 0, nil, err
		}
		total, err := g.engine.Count(ctx, table, options)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"count": total}, nil

	case ActionRead:
		row, err := g.engine.Read(ctx, table, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, row, nil

	case ActionCreate:
		values, err := g.parseRowBody(r, result)
		if err != nil {
			return 0, nil, err
		}
		row, err := g.engine.Create(ctx, table, values)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, row, nil

	case ActionUpdate:
		values, err := g.parseRowBody(r, result)
		if err != nil {
			return 0, nil, err
		}
		row, err := g.engine.Update(ctx, table, id, values)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, row, nil

	case ActionDelete:
		deleted, err := g.engine.Delete(ctx, table, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, deleted, nil

	case ActionBulkCreate:
		batch, err := g.parseBatchBody(r, result)
		if err != nil {
			return 0, nil, err
		}
		created, err := g.engine.BulkCreate(ctx, table, batch)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, created, nil

	case ActionBulkDelete:
		ids, err := g.parseIDsBody(r, result)
		if err != nil {
			return 0, nil, err
		}
		deleted, err := g.engine.BulkDelete(ctx, table, ids)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, deleted, nil

	case ActionTables:
		tables, err := g.engine.Inspector().Tables(ctx)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"tables": tables}, nil

	case ActionColumns:
		tableSchema, err := g.engine.Inspector().Schema(ctx, table)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"table":       tableSchema.Name,
			"columns":     tableSchema.Columns,
			"primary_key": tableSchema.PrimaryKey,
		}, nil

	case ActionOpenAPI:
		document, err := g.openAPIDocument(ctx)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, document, nil

	case ActionHealth:
		return http.StatusOK, g.healthPayload(ctx), nil

	case ActionLogin:
		return g.login(r, result)
	}

	return 0, nil, apperr.InvalidInput("Unknown action")
}

// login decodes the credential body and issues a token.
func (g *Gateway) login(r *http.Request, result *outcome) (int, any, error) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, apperr.InvalidInput("Failed to read request body")
	}
	if err := json.Unmarshal(raw, &credentials); err != nil {
		return 0, nil, apperr.InvalidInput("Request body must be a JSON object with username and password")
	}

	// The audit trail sees only the username; the redactor would strip the
	// password anyway, but it is never attached in the first place.
	result.body = map[string]any{"username": credentials.Username}

	loginResult, err := g.authenticator.Login(r.Context(), credentials.Username, credentials.Password)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeAuthInvalid) {
			result.authFailure = true
		}
		return 0, nil, err
	}
	return http.StatusOK, loginResult, nil
}

// # Body Parsing

// parseRowBody decodes a single-row body from JSON, urlencoded form, or
// multipart form.
func (g *Gateway) parseRowBody(r *http.Request, result *outcome) (crud.Row, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case contentType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apperr.InvalidInput("Malformed form body")
		}
		return formToRow(r.PostForm, result)

	case contentType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, apperr.InvalidInput("Malformed multipart body")
		}
		return formToRow(r.MultipartForm.Value, result)

	default:
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, apperr.InvalidInput("Failed to read request body")
		}

		var values crud.Row
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, apperr.InvalidInput("Request body must be a JSON object")
		}
		result.body = map[string]any(values)
		return values, nil
	}
}

// formToRow converts form values to a row, taking the first value per key.
func formToRow(form map[string][]string, result *outcome) (crud.Row, error) {
	values := make(crud.Row, len(form))
	for key, entries := range form {
		if len(entries) > 0 {
			values[key] = entries[0]
		}
	}
	if len(values) == 0 {
		return nil, apperr.InvalidInput("Request body must contain at least one column")
	}
	result.body = map[string]any(values)
	return values, nil
}

// parseBatchBody decodes the bulk_create JSON array.
func (g *Gateway) parseBatchBody(r *http.Request, result *outcome) ([]crud.Row, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.InvalidInput("Failed to read request body")
	}

	var batch []crud.Row
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, apperr.InvalidInput("Request body must be a JSON array of objects")
	}

	result.body = batch
	return batch, nil
}

// parseIDsBody decodes the bulk_delete id list from {"ids": [...]} or a
// bare array, accepting numbers and strings.
func (g *Gateway) parseIDsBody(r *http.Request, result *outcome) ([]string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.InvalidInput("Failed to read request body")
	}

	var wrapper struct {
		IDs []json.Number `json:"ids"`
	}

	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()

	var bare []any
	if err := decoder.Decode(&wrapper); err != nil || wrapper.IDs == nil {
		// Fall back to a bare array.
		bareDecoder := json.NewDecoder(strings.NewReader(string(raw)))
		bareDecoder.UseNumber()
		if err := bareDecoder.Decode(&bare); err != nil {
			return nil, apperr.InvalidInput(`Request body must be {"ids": [...]} or a JSON array`)
		}
	} else {
		for _, id := range wrapper.IDs {
			bare = append(bare, id)
		}
	}

	ids := make([]string, 0, len(bare))
	for _, value := range bare {
		switch typed := value.(type) {
		case json.Number:
			ids = append(ids, typed.String())
		case string:
			ids = append(ids, typed)
		default:
			return nil, apperr.InvalidInput("ids must contain only numbers or strings")
		}
	}

	result.body = map[string]any{"ids": ids}
	return ids, nil
}

// # Bookkeeping

// finish feeds the audit log and the monitor after the response is sent.
func (g *Gateway) finish(w http.ResponseWriter, r *http.Request, result *outcome, latency time.Duration) {
	var errMessage string
	if result.err != nil {
		errMessage = result.err.Error()
	}

	var user string
	if result.principal != nil {
		user = result.principal.Username
	}

	if g.auditLog != nil {
		g.auditLog.Log(reqlog.Record{
			RequestID:    ctxutil.GetRequestID(r.Context()),
			Method:       r.Method,
			Path:         r.URL.Path,
			Action:       string(result.action),
			Table:        result.table,
			Status:       result.status,
			LatencyMS:    latency.Milliseconds(),
			ResponseSize: middleware.ResponseBytes(w),
			ClientIP:     middleware.RealIP(r, g.trustProxy),
			User:         user,
			CacheHit:     result.cacheHit,
			Error:        errMessage,
			Query:        r.URL.Query(),
			Headers:      r.Header,
			Body:         result.body,
			Response:     result.response,
		})
	}

	if g.monitor != nil {
		g.monitor.Record(monitor.Sample{
			Action:      string(result.action),
			Table:       result.table,
			Status:      result.status,
			Latency:     latency,
			CacheHit:    result.cacheHit,
			AuthFailure: result.authFailure,
			RateLimited: result.rateLimited,
		})
	}
}
