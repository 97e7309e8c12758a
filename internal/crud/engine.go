// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package crud orchestrates database access for every generic CRUD operation.

The [Engine] composes the schema inspector (live column whitelists), the
query builder (parameterized SQL), and the shared connection pool. It is the
only package that executes data-plane SQL.

Security invariants enforced here:

  - Every column referenced by a request (projection, filter, sort, insert
    and update keys) must exist in the live schema of the target table.
  - Every client value reaches the driver as a bound parameter.
  - Bulk creates run in a single transaction: all rows persist or none do.
*/
package crud

import (
	"context"
	"database/sql"
	"sort"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/database"
	"github.com/relatadb/relata/internal/query"
	"github.com/relatadb/relata/internal/schema"
	"github.com/relatadb/relata/pkg/pagination"
)

// Row is one database row rendered for JSON encoding.
type Row = map[string]any

// ListResult carries one page of rows plus pagination metadata.
type ListResult struct {
	Data []Row           `json:"data"`
	Meta pagination.Meta `json:"meta"`
}

// BulkCreateResult reports an all-or-nothing batch insert.
type BulkCreateResult struct {
	Success bool  `json:"success"`
	Created int   `json:"created"`
	Data    []Row `json:"data"`
}

// DeleteResult reports row deletions.
type DeleteResult struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

// Engine executes all generic CRUD operations against one database.
type Engine struct {
	db        *sql.DB
	dialect   database.Dialect
	inspector *schema.Inspector
	builder   *query.Builder
}

// NewEngine constructs an [Engine] over the shared pool and inspector.
func NewEngine(db *sql.DB, dialect database.Dialect, inspector *schema.Inspector) *Engine {
	return &Engine{
		db:        db,
		dialect:   dialect,
		inspector: inspector,
		builder:   query.NewBuilder(dialect),
	}
}

// Inspector exposes the schema inspector for meta actions (tables, columns).
func (engine *Engine) Inspector() *schema.Inspector {
	return engine.inspector
}

// # Read Operations

// List returns one page of rows matching the validated options, together
// with the total count computed from the same WHERE clause.
func (engine *Engine) List(ctx context.Context, table string, options *query.ListOptions) (*ListResult, error) {
	bound, err := engine.bind(ctx, table, options)
	if err != nil {
		return nil, err
	}

	total, err := engine.countBound(ctx, bound)
	if err != nil {
		return nil, err
	}

	stmt := engine.builder.List(
		bound.table, bound.projection, bound.filters, bound.sorts,
		options.Page.PageSize, options.Page.Offset(),
	)

	rows, err := engine.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "list")
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, wrapDBError(err, "list")
	}

	return &ListResult{
		Data: data,
		Meta: pagination.NewMeta(options.Page.Page, options.Page.PageSize, total),
	}, nil
}

// Count returns the number of rows matching the validated filters.
func (engine *Engine) Count(ctx context.Context, table string, options *query.ListOptions) (int, error) {
	bound, err := engine.bind(ctx, table, options)
	if err != nil {
		return 0, err
	}
	return engine.countBound(ctx, bound)
}

// Read selects a single row by primary key.
func (engine *Engine) Read(ctx context.Context, table, rawID string) (Row, error) {
	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	pk, id, err := engine.resolvePK(tableSchema, rawID)
	if err != nil {
		return nil, err
	}

	stmt := engine.builder.Read(tableIdent, pk, id)
	return engine.queryOne(ctx, stmt)
}

// # Write Operations

// Create inserts a single row and returns the persisted record, re-read by
// its generated or supplied primary key.
func (engine *Engine) Create(ctx context.Context, table string, values Row) (Row, error) {
	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	columns, args, err := engine.bindValues(tableSchema, values)
	if err != nil {
		return nil, err
	}

	id, err := engine.insertOne(ctx, engine.db, tableIdent, tableSchema, columns, args, values)
	if err != nil {
		return nil, err
	}

	// Tables without a primary key cannot be re-read deterministically;
	// echo the accepted values instead.
	if tableSchema.PrimaryKey == "" {
		return values, nil
	}

	pk, _ := engine.builder.Quote(tableSchema.PrimaryKey)
	return engine.queryOne(ctx, engine.builder.Read(tableIdent, pk, id))
}

// Update modifies a row by primary key and returns the updated record.
func (engine *Engine) Update(ctx context.Context, table, rawID string, values Row) (Row, error) {
	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	pk, id, err := engine.resolvePK(tableSchema, rawID)
	if err != nil {
		return nil, err
	}

	columns, args, err := engine.bindValues(tableSchema, values)
	if err != nil {
		return nil, err
	}

	stmt := engine.builder.Update(tableIdent, columns, args, pk, id)
	result, err := engine.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "update")
	}

	// Zero affected rows means the primary key did not match. (A no-op
	// update of identical values also reports zero on MySQL; re-reading
	// below distinguishes the two.)
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		if _, readErr := engine.queryOne(ctx, engine.builder.Read(tableIdent, pk, id)); readErr != nil {
			return nil, apperr.NotFound("Row")
		}
	}

	return engine.queryOne(ctx, engine.builder.Read(tableIdent, pk, id))
}

// Delete removes a row by primary key.
func (engine *Engine) Delete(ctx context.Context, table, rawID string) (*DeleteResult, error) {
	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	pk, id, err := engine.resolvePK(tableSchema, rawID)
	if err != nil {
		return nil, err
	}

	stmt := engine.builder.Delete(tableIdent, pk, id)
	result, err := engine.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "delete")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, wrapDBError(err, "delete")
	}
	if affected == 0 {
		return nil, apperr.NotFound("Row")
	}

	return &DeleteResult{Success: true, Deleted: affected}, nil
}

// # Bulk Operations

// BulkCreate inserts an ordered batch of rows inside a single transaction.
//
// All rows persist or none do: the first failure rolls the whole batch back.
// The returned data preserves input order.
func (engine *Engine) BulkCreate(ctx context.Context, table string, batch []Row) (*BulkCreateResult, error) {
	if len(batch) == 0 {
		return nil, apperr.InvalidInput("Request body must be a non-empty JSON array")
	}

	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	tx, err := engine.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError(err, "bulk_create")
	}
	// Rollback is a no-op after a successful Commit.
	defer func() { _ = tx.Rollback() }()

	ids := make([]any, len(batch))
	for i, values := range batch {
		columns, args, err := engine.bindValues(tableSchema, values)
		if err != nil {
			return nil, err
		}

		id, err := engine.insertOne(ctx, tx, tableIdent, tableSchema, columns, args, values)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(err, "bulk_create")
	}

	// Re-read the committed rows in input order.
	data := make([]Row, len(batch))
	for i, id := range ids {
		if tableSchema.PrimaryKey == "" || id == nil {
			data[i] = batch[i]
			continue
		}
		pk, _ := engine.builder.Quote(tableSchema.PrimaryKey)
		row, err := engine.queryOne(ctx, engine.builder.Read(tableIdent, pk, id))
		if err != nil {
			data[i] = batch[i]
			continue
		}
		data[i] = row
	}

	return &BulkCreateResult{Success: true, Created: len(batch), Data: data}, nil
}

// BulkDelete removes every row whose primary key is in ids, using a single
// statement with one binding per id.
func (engine *Engine) BulkDelete(ctx context.Context, table string, rawIDs []string) (*DeleteResult, error) {
	if len(rawIDs) == 0 {
		return nil, apperr.InvalidInput("ids must be a non-empty array")
	}

	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	if tableSchema.PrimaryKey == "" {
		return nil, apperr.InvalidInput("Table has no primary key")
	}
	pk, err := engine.builder.Quote(tableSchema.PrimaryKey)
	if err != nil {
		return nil, err
	}

	ids := make([]any, len(rawIDs))
	for i, raw := range rawIDs {
		id, err := query.ParseID(raw)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	stmt := engine.builder.DeleteIn(tableIdent, pk, ids)
	result, err := engine.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "bulk_delete")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, wrapDBError(err, "bulk_delete")
	}

	return &DeleteResult{Success: true, Deleted: affected}, nil
}

// # Binding (schema whitelisting)

// boundQuery holds a list/count request after schema whitelisting.
type boundQuery struct {
	table      query.QuotedIdent
	projection []query.QuotedIdent
	filters    []query.BoundFilter
	sorts      []query.BoundSort
}

// bind resolves the table and whitelists every referenced column.
func (engine *Engine) bind(ctx context.Context, table string, options *query.ListOptions) (*boundQuery, error) {
	tableIdent, tableSchema, err := engine.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}

	bound := &boundQuery{table: tableIdent}

	for _, field := range options.Fields {
		column, err := engine.quoteColumn(tableSchema, field, "fields")
		if err != nil {
			return nil, err
		}
		bound.projection = append(bound.projection, column)
	}

	for _, filter := range options.Filters {
		column, err := engine.quoteColumn(tableSchema, filter.Column, "filter")
		if err != nil {
			return nil, err
		}
		bound.filters = append(bound.filters, query.BoundFilter{
			Column: column,
			Op:     filter.Op,
			Value:  filter.Value,
			Values: filter.Values,
		})
	}

	for _, sortTerm := range options.Sorts {
		column, err := engine.quoteColumn(tableSchema, sortTerm.Column, "sort")
		if err != nil {
			return nil, err
		}
		bound.sorts = append(bound.sorts, query.BoundSort{Column: column, Desc: sortTerm.Desc})
	}

	return bound, nil
}

// bindValues whitelists insert/update keys and orders them deterministically.
func (engine *Engine) bindValues(tableSchema *schema.TableSchema, values Row) ([]query.QuotedIdent, []any, error) {
	if len(values) == 0 {
		return nil, nil, apperr.InvalidInput("Request body must contain at least one column")
	}

	// Maps iterate in random order; sorting keeps generated SQL stable
	// across identical requests.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	columns := make([]query.QuotedIdent, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		column, err := engine.quoteColumn(tableSchema, key, "body")
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, column)
		args = append(args, values[key])
	}

	return columns, args, nil
}

// quoteColumn enforces the column whitelist before quoting.
func (engine *Engine) quoteColumn(tableSchema *schema.TableSchema, name, context string) (query.QuotedIdent, error) {
	if !tableSchema.HasColumn(name) {
		return query.QuotedIdent{}, apperr.InvalidInput("Unknown column", apperr.FieldError{
			Field:   context,
			Message: "Column " + name + " does not exist on table " + tableSchema.Name,
		})
	}
	return engine.builder.Quote(name)
}

// # Internals

// execer abstracts *sql.DB and *sql.Tx for statements that run either
// directly or inside the bulk-create transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// resolveTable validates the table name and loads its live schema.
func (engine *Engine) resolveTable(ctx context.Context, table string) (query.QuotedIdent, *schema.TableSchema, error) {
	tableIdent, err := engine.builder.Quote(table)
	if err != nil {
		return query.QuotedIdent{}, nil, err
	}

	tableSchema, err := engine.inspector.Schema(ctx, table)
	if err != nil {
		return query.QuotedIdent{}, nil, err
	}

	return tableIdent, tableSchema, nil
}

// resolvePK validates the raw id and quotes the table's primary key column.
func (engine *Engine) resolvePK(tableSchema *schema.TableSchema, rawID string) (query.QuotedIdent, any, error) {
	if tableSchema.PrimaryKey == "" {
		return query.QuotedIdent{}, nil, apperr.InvalidInput("Table has no primary key")
	}

	id, err := query.ParseID(rawID)
	if err != nil {
		return query.QuotedIdent{}, nil, err
	}

	pk, err := engine.builder.Quote(tableSchema.PrimaryKey)
	if err != nil {
		return query.QuotedIdent{}, nil, err
	}

	return pk, id, nil
}

// insertOne executes a single INSERT on db or tx and returns the new row's
// primary key value, or nil when it cannot be determined.
func (engine *Engine) insertOne(ctx context.Context, runner execer, tableIdent query.QuotedIdent, tableSchema *schema.TableSchema, columns []query.QuotedIdent, args []any, values Row) (any, error) {
	// The client may supply the primary key directly (non-autoincrement).
	suppliedID, hasSuppliedID := values[tableSchema.PrimaryKey]

	if tableSchema.PrimaryKey != "" && !engine.dialect.SupportsLastInsertID() && !hasSuppliedID {
		// RETURNING path (PostgreSQL).
		pk, err := engine.builder.Quote(tableSchema.PrimaryKey)
		if err != nil {
			return nil, err
		}
		stmt := engine.builder.Insert(tableIdent, columns, args, &pk)

		var id any
		if err := runner.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&id); err != nil {
			return nil, wrapDBError(err, "create")
		}
		return id, nil
	}

	stmt := engine.builder.Insert(tableIdent, columns, args, nil)
	result, err := runner.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "create")
	}

	if hasSuppliedID {
		return suppliedID, nil
	}
	if tableSchema.PrimaryKey == "" {
		return nil, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		// Driver cannot report the id (e.g. non-integer keys); callers
		// fall back to echoing the input.
		return nil, nil
	}
	return id, nil
}

// countBound executes the COUNT(*) companion query.
func (engine *Engine) countBound(ctx context.Context, bound *boundQuery) (int, error) {
	stmt := engine.builder.Count(bound.table, bound.filters)

	var total int
	if err := engine.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&total); err != nil {
		return 0, wrapDBError(err, "count")
	}
	return total, nil
}

// queryOne executes a single-row SELECT and scans it into a [Row].
func (engine *Engine) queryOne(ctx context.Context, stmt query.Stmt) (Row, error) {
	rows, err := engine.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, wrapDBError(err, "read")
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return nil, wrapDBError(err, "read")
	}
	if len(data) == 0 {
		return nil, apperr.NotFound("Row")
	}
	return data[0], nil
}

// scanRows renders a result set into JSON-friendly maps.
//
// Drivers return []byte for text columns; those become strings so JSON
// encoding produces text instead of base64.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[i]
		}
		data = append(data, row)
	}

	return data, rows.Err()
}
