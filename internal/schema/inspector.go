// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package schema discovers and caches table metadata at runtime.

The gateway generates SQL for tables it has never seen at compile time, so
every request needs the live column set of its target table. The [Inspector]
wraps the dialect's catalog queries and memoizes results per table for the
process lifetime (or until an explicit refresh).

Concurrency: the cache is read-mostly after warm-up. Population is
single-writer-per-table under one mutex; readers observe either the prior
value or the fully-populated new value, never a torn intermediate.
*/
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/database"
)

// Column describes one column of an introspected table.
type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// TableSchema is the cached metadata of one table.
type TableSchema struct {
	Name       string
	Columns    []Column
	PrimaryKey string

	// columnSet indexes Columns by name for whitelist checks.
	columnSet map[string]struct{}
}

// HasColumn reports whether the table contains the named column.
func (t *TableSchema) HasColumn(name string) bool {
	_, ok := t.columnSet[name]
	return ok
}

// ColumnNames returns the ordered column name list.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

// Inspector enumerates tables and memoizes per-table schemas.
type Inspector struct {
	db      *sql.DB
	dialect database.Dialect

	mu           sync.RWMutex
	tables       map[string]struct{}
	tablesLoaded bool
	schemas      map[string]*TableSchema
}

// NewInspector constructs an [Inspector] over the shared connection pool.
func NewInspector(db *sql.DB, dialect database.Dialect) *Inspector {
	return &Inspector{
		db:      db,
		dialect: dialect,
		tables:  make(map[string]struct{}),
		schemas: make(map[string]*TableSchema),
	}
}

// # Table Enumeration

// Tables returns the sorted names of all base tables in the connected schema.
func (inspector *Inspector) Tables(ctx context.Context) ([]string, error) {
	if err := inspector.ensureTables(ctx); err != nil {
		return nil, err
	}

	inspector.mu.RLock()
	defer inspector.mu.RUnlock()

	names := make([]string, 0, len(inspector.tables))
	for name := range inspector.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// TableExists reports whether the named table is present in the schema.
//
// Unknown tables yield false rather than an error; callers map that to a
// 404-class response.
func (inspector *Inspector) TableExists(ctx context.Context, table string) (bool, error) {
	if err := inspector.ensureTables(ctx); err != nil {
		return false, err
	}

	inspector.mu.RLock()
	defer inspector.mu.RUnlock()
	_, ok := inspector.tables[table]
	return ok, nil
}

// # Per-Table Schema

// Schema returns the memoized [TableSchema] for the named table, populating
// the cache on first access.
//
// # Errors
//   - apperr.NotFound when the table does not exist.
//   - apperr.Upstream when the catalog queries fail.
func (inspector *Inspector) Schema(ctx context.Context, table string) (*TableSchema, error) {
	// Fast path: already memoized.
	inspector.mu.RLock()
	if cached, ok := inspector.schemas[table]; ok {
		inspector.mu.RUnlock()
		return cached, nil
	}
	inspector.mu.RUnlock()

	exists, err := inspector.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("Table")
	}

	loaded, err := inspector.introspect(ctx, table)
	if err != nil {
		return nil, err
	}

	inspector.mu.Lock()
	defer inspector.mu.Unlock()

	// Another goroutine may have populated the entry while we introspected;
	// keep the first fully-built value so readers see a stable pointer.
	if cached, ok := inspector.schemas[table]; ok {
		return cached, nil
	}
	inspector.schemas[table] = loaded
	return loaded, nil
}

// Refresh drops memoized metadata: one table when named, everything when
// called with the empty string.
func (inspector *Inspector) Refresh(table string) {
	inspector.mu.Lock()
	defer inspector.mu.Unlock()

	if table == "" {
		inspector.tables = make(map[string]struct{})
		inspector.tablesLoaded = false
		inspector.schemas = make(map[string]*TableSchema)
		return
	}

	delete(inspector.schemas, table)
	// Force re-enumeration so newly created tables become visible.
	inspector.tablesLoaded = false
}

// # Internals

// ensureTables lazily loads the table name set.
func (inspector *Inspector) ensureTables(ctx context.Context) error {
	inspector.mu.RLock()
	loaded := inspector.tablesLoaded
	inspector.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := inspector.db.QueryContext(ctx, inspector.dialect.TablesQuery())
	if err != nil {
		return apperr.Upstream(fmt.Errorf("schema: table enumeration failed: %w", err))
	}
	defer rows.Close()

	tables := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return apperr.Upstream(fmt.Errorf("schema: table scan failed: %w", err))
		}
		tables[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return apperr.Upstream(fmt.Errorf("schema: table iteration failed: %w", err))
	}

	inspector.mu.Lock()
	inspector.tables = tables
	inspector.tablesLoaded = true
	inspector.mu.Unlock()
	return nil
}

// introspect loads columns and primary key for one table.
func (inspector *Inspector) introspect(ctx context.Context, table string) (*TableSchema, error) {
	rows, err := inspector.db.QueryContext(ctx, inspector.dialect.ColumnsQuery(), table)
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("schema: column introspection failed: %w", err))
	}
	defer rows.Close()

	loaded := &TableSchema{
		Name:      table,
		columnSet: make(map[string]struct{}),
	}

	for rows.Next() {
		var column Column
		var nullable string
		var columnDefault sql.NullString

		if err := rows.Scan(&column.Name, &column.Type, &nullable, &columnDefault); err != nil {
			return nil, apperr.Upstream(fmt.Errorf("schema: column scan failed: %w", err))
		}

		column.Nullable = nullable == "YES"
		if columnDefault.Valid {
			column.Default = &columnDefault.String
		}

		loaded.Columns = append(loaded.Columns, column)
		loaded.columnSet[column.Name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream(fmt.Errorf("schema: column iteration failed: %w", err))
	}

	// A table present in the catalog but without columns means the catalog
	// view and table list disagree; surface it as missing.
	if len(loaded.Columns) == 0 {
		return nil, apperr.NotFound("Table")
	}

	// Primary key is optional: keyless tables support list/count/create only.
	var pk string
	err = inspector.db.QueryRowContext(ctx, inspector.dialect.PrimaryKeyQuery(), table).Scan(&pk)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No primary key; leave empty.
	case err != nil:
		return nil, apperr.Upstream(fmt.Errorf("schema: primary key introspection failed: %w", err))
	default:
		loaded.PrimaryKey = pk
	}

	return loaded, nil
}
