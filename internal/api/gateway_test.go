// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatadb/relata/internal/auth"
	"github.com/relatadb/relata/internal/cache"
	"github.com/relatadb/relata/internal/crud"
	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/database"
	"github.com/relatadb/relata/internal/platform/middleware"
	"github.com/relatadb/relata/internal/ratelimit"
	"github.com/relatadb/relata/internal/rbac"
	"github.com/relatadb/relata/internal/reqlog"
	"github.com/relatadb/relata/internal/schema"
)

// testHarness bundles the gateway with its mock database.
type testHarness struct {
	gateway *Gateway
	mock    sqlmock.Sqlmock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness builds a gateway over sqlmock with apikey auth: "admin-key"
// maps to the admin role, "reader-key" to readonly (deny on users).
func newHarness(t *testing.T, maxRequests int) *testHarness {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialect := database.MySQLDialect{}
	engine := crud.NewEngine(db, dialect, schema.NewInspector(db, dialect))

	authenticator := auth.NewAuthenticator(config.AuthConfig{
		Enabled:     true,
		Method:      "basic",
		BasicUsers:  map[string]string{"root": "rootpw", "reader": "readerpw"},
		UserRoles:   map[string]string{"root": "admin", "reader": "readonly"},
		DefaultRole: "admin",
	}, nil, nil, discardLogger())

	authorizer := rbac.New(map[string]map[string][]string{
		"admin": {"*": {"list", "read", "create", "update", "delete"}},
		"readonly": {
			"*":     {"list", "read"},
			"users": {},
		},
	})

	limiter := ratelimit.NewLimiter(config.RateLimitConfig{
		Enabled:       true,
		MaxRequests:   maxRequests,
		WindowSeconds: 60,
	}, ratelimit.NewMemoryStore())

	cacheManager := cache.NewManager(config.CacheConfig{
		Enabled:    true,
		Driver:     "memory",
		TTLSeconds: 300,
	}, cache.NewMemoryStore(), discardLogger())

	gateway := NewGateway(engine, authenticator, authorizer, limiter, cacheManager,
		nil, nil, discardLogger(), false)

	return &testHarness{gateway: gateway, mock: mock}
}

// request performs one request as the given user ("" for anonymous).
func (h *testHarness) request(method, target, user, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	r := httptest.NewRequest(method, target, reader)
	r.RemoteAddr = "203.0.113.7:1234"
	if user != "" {
		passwords := map[string]string{"root": "rootpw", "reader": "readerpw"}
		r.SetBasicAuth(user, passwords[user])
	}
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	h.gateway.ServeHTTP(recorder, r)
	return recorder
}

// expectOrdersSchema queues the introspection queries for an orders table
// with columns (id, name, total).
func (h *testHarness) expectOrdersSchema() {
	h.mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders").AddRow("users"))
	h.mock.ExpectQuery(`INFORMATION_SCHEMA.COLUMNS`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT"}).
			AddRow("id", "bigint", "NO", nil).
			AddRow("name", "varchar", "NO", nil).
			AddRow("total", "decimal", "YES", nil))
	h.mock.ExpectQuery(`KEY_COLUMN_USAGE`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

/*
TestListAction covers the full read path: SQL execution, the pagination
envelope, rate-limit headers, and the cache miss/hit cycle.
*/
func TestListAction(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	h.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .orders.`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	h.mock.ExpectQuery(`SELECT \* FROM .orders. LIMIT \? OFFSET \?`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total"}).
			AddRow(1, "first", 9.5).
			AddRow(2, "second", 12.0))

	recorder := h.request("GET", "/api?action=list&table=orders", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	data := body["data"].([]any)
	assert.Len(t, data, 2)
	meta := body["meta"].(map[string]any)
	assert.EqualValues(t, 2, meta["total"])
	assert.EqualValues(t, 1, meta["page"])
	assert.EqualValues(t, 20, meta["page_size"])
	assert.EqualValues(t, 1, meta["pages"])

	assert.Equal(t, "100", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "false", recorder.Header().Get("X-Cache-Hit"))
	assert.Equal(t, "300", recorder.Header().Get("X-Cache-TTL"))
	assert.Equal(t, "true", recorder.Header().Get("X-Cache-Stored"))

	// Identical re-read: served from cache, no further SQL expected.
	repeat := h.request("GET", "/api?action=list&table=orders", "root", "")
	require.Equal(t, http.StatusOK, repeat.Code)
	assert.Equal(t, "true", repeat.Header().Get("X-Cache-Hit"))
	assert.Equal(t, "300", repeat.Header().Get("X-Cache-TTL"))
	assert.Empty(t, repeat.Header().Get("X-Cache-Stored"))
	assert.JSONEq(t, recorder.Body.String(), repeat.Body.String())

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestActionValidation covers missing, unknown, and verb-mismatched actions.
*/
func TestActionValidation(t *testing.T) {
	h := newHarness(t, 100)

	recorder := h.request("GET", "/api", "root", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, recorder)["code"])

	recorder = h.request("GET", "/api?action=explode", "root", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.request("POST", "/api?action=list&table=orders", "root", "")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeBody(t, recorder)["code"])
}

/*
TestActionVerbs verifies each action's accepted HTTP methods, including
the form-friendly POST aliases for update and delete.
*/
func TestActionVerbs(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		action  string
		allowed bool
	}{
		{"post update", http.MethodPost, "update", true},
		{"put update", http.MethodPut, "update", true},
		{"patch update", http.MethodPatch, "update", true},
		{"get update", http.MethodGet, "update", false},
		{"post delete", http.MethodPost, "delete", true},
		{"delete delete", http.MethodDelete, "delete", true},
		{"get delete", http.MethodGet, "delete", false},
		{"get list", http.MethodGet, "list", true},
		{"post list", http.MethodPost, "list", false},
		{"post login", http.MethodPost, "login", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, "/api?action="+tc.action, nil)
			_, _, err := parseAction(r)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, apperr.IsCode(err, apperr.CodeMethodNotAllowed))
			}
		})
	}
}

/*
TestCountAction verifies the bare {count} body.
*/
func TestCountAction(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	h.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .orders.`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	recorder := h.request("GET", "/api?action=count&table=orders", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.EqualValues(t, 5, body["count"])
	assert.NotContains(t, body, "table")

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestAuthenticationFailures covers missing and invalid credentials.
*/
func TestAuthenticationFailures(t *testing.T) {
	h := newHarness(t, 100)

	recorder := h.request("GET", "/api?action=list&table=orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "AUTH_REQUIRED", decodeBody(t, recorder)["code"])

	r := httptest.NewRequest("GET", "/api?action=list&table=orders", nil)
	r.SetBasicAuth("root", "wrong")
	recorder = httptest.NewRecorder()
	h.gateway.ServeHTTP(recorder, r)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "AUTH_INVALID", decodeBody(t, recorder)["code"])
}

/*
TestAuthorization covers the deny-by-default matrix including the explicit
per-table deny overriding the wildcard grant.
*/
func TestAuthorization(t *testing.T) {
	h := newHarness(t, 100)

	// readonly may not create anywhere.
	recorder := h.request("POST", "/api?action=create&table=orders", "reader", `{"name":"x"}`)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "FORBIDDEN", decodeBody(t, recorder)["code"])

	// readonly's wildcard read grant is overridden by the users deny.
	recorder = h.request("GET", "/api?action=list&table=users", "reader", "")
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

/*
TestUnknownTable verifies a valid identifier that matches no table maps
to 404.
*/
func TestUnknownTable(t *testing.T) {
	h := newHarness(t, 100)

	h.mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders"))

	recorder := h.request("GET", "/api?action=list&table=missing", "root", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, recorder)["code"])

	// SQL-injection shaped table names fail validation before any SQL runs.
	recorder = h.request("GET", "/api?action=list&table=orders;DROP%20TABLE%20users", "root", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestReadAction covers the primary-key read and id validation.
*/
func TestReadAction(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	h.mock.ExpectQuery(`SELECT \* FROM .orders. WHERE .id. = \?`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total"}).AddRow(7, "seventh", nil))

	recorder := h.request("GET", "/api?action=read&table=orders&id=7", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.EqualValues(t, 7, decodeBody(t, recorder)["id"])

	// Missing and malformed ids fail before touching the database.
	recorder = h.request("GET", "/api?action=read&table=orders", "root", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = h.request("GET", "/api?action=read&table=orders&id=abc", "root", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestCreateInvalidatesCache verifies the write path: 201 with the re-read
row, and the table's cached reads dropped before the response.
*/
func TestCreateInvalidatesCache(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	// Warm the cache with a list.
	h.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .orders.`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	h.mock.ExpectQuery(`SELECT \* FROM .orders. LIMIT \? OFFSET \?`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total"}))

	recorder := h.request("GET", "/api?action=list&table=orders", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	// Create a row: INSERT then re-read by LastInsertId.
	h.mock.ExpectExec("INSERT INTO .orders. \\(.name.\\) VALUES \\(\\?\\)").
		WithArgs("new order").
		WillReturnResult(sqlmock.NewResult(3, 1))
	h.mock.ExpectQuery(`SELECT \* FROM .orders. WHERE .id. = \?`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total"}).AddRow(3, "new order", nil))

	recorder = h.request("POST", "/api?action=create&table=orders", "root", `{"name":"new order"}`)
	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.EqualValues(t, 3, decodeBody(t, recorder)["id"])

	// The earlier list entry was invalidated: the re-read hits SQL again.
	h.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .orders.`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	h.mock.ExpectQuery(`SELECT \* FROM .orders. LIMIT \? OFFSET \?`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total"}).AddRow(3, "new order", nil))

	recorder = h.request("GET", "/api?action=list&table=orders", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "false", recorder.Header().Get("X-Cache-Hit"))

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestCreateRejectsUnknownColumn verifies body keys are whitelisted against
the live schema.
*/
func TestCreateRejectsUnknownColumn(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	recorder := h.request("POST", "/api?action=create&table=orders", "root", `{"name":"x","evil_column":"y"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, recorder)["code"])

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestRateLimitExceeded verifies the 429 envelope and headers after the
window fills, and that denied requests carry Retry-After.
*/
func TestRateLimitExceeded(t *testing.T) {
	h := newHarness(t, 2)

	// Verb-invalid requests still pass through the limiter stage; use the
	// tables action backed by one catalog query each.
	h.mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders"))

	for i := 0; i < 2; i++ {
		recorder := h.request("GET", "/api?action=tables", "root", "")
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	recorder := h.request("GET", "/api?action=tables", "root", "")
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.NotNil(t, body["retry_after"])
	assert.NotNil(t, body["reset_at"])
	assert.EqualValues(t, 2, body["limit"])
	assert.EqualValues(t, 60, body["window"])

	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, recorder.Header().Get("Retry-After"))
}

/*
TestBulkDelete verifies both body shapes and the single IN statement.
*/
func TestBulkDelete(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	h.mock.ExpectExec(`DELETE FROM .orders. WHERE .id. IN \(\?, \?, \?\)`).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	recorder := h.request("POST", "/api?action=bulk_delete&table=orders", "root", `{"ids":[1,2,3]}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["deleted"])

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestMetaActions covers tables and columns discovery.
*/
func TestMetaActions(t *testing.T) {
	h := newHarness(t, 100)
	h.expectOrdersSchema()

	recorder := h.request("GET", "/api?action=columns&table=orders", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, "orders", body["table"])
	assert.Equal(t, "id", body["primary_key"])
	assert.Len(t, body["columns"], 3)

	recorder = h.request("GET", "/api?action=tables", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	tables := decodeBody(t, recorder)["tables"].([]any)
	assert.ElementsMatch(t, []any{"orders", "users"}, tables)

	assert.NoError(t, h.mock.ExpectationsWereMet())
}

/*
TestHealthAction verifies the action works without a monitor wired.
*/
func TestHealthAction(t *testing.T) {
	h := newHarness(t, 100)

	recorder := h.request("GET", "/api?action=health", "root", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", decodeBody(t, recorder)["status"])
}

/*
TestAuditRecordResponseSize verifies the audit record carries the response
byte count measured by the logging middleware.
*/
func TestAuditRecordResponseSize(t *testing.T) {
	h := newHarness(t, 100)

	dir := t.TempDir()
	auditLog, err := reqlog.New(reqlog.Options{Dir: dir}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })
	h.gateway.auditLog = auditLog

	handler := middleware.StructuredLogger(discardLogger())(h.gateway)

	h.mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders"))

	r := httptest.NewRequest("GET", "/api?action=tables", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.SetBasicAuth("root", "rootpw")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, r)
	require.Equal(t, http.StatusOK, recorder.Code)

	day := time.Now().UTC().Format("2006-01-02")
	raw, err := os.ReadFile(filepath.Join(dir, "api_"+day+".log"))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(raw), "\n", 2)[0]), &record))
	assert.EqualValues(t, recorder.Body.Len(), record["response_size"])
	assert.Equal(t, "tables", record["action"])
}
