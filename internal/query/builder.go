// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package query

import (
	"fmt"
	"strings"

	"github.com/relatadb/relata/internal/platform/database"
)

// QuotedIdent is a dialect-quoted SQL identifier.
//
// # Safety
//
// The only constructor is [Builder.Quote], which runs the identifier grammar
// check and the dialect's quote-character rejection. Code holding a
// QuotedIdent therefore holds proof that the name was validated; the builder
// accepts identifiers exclusively through this type.
type QuotedIdent struct {
	raw string
	sql string
}

// Raw returns the unquoted identifier (for schema lookups and cache keys).
func (q QuotedIdent) Raw() string { return q.raw }

// String returns the quoted SQL form.
func (q QuotedIdent) String() string { return q.sql }

// BoundFilter is a filter term whose column survived schema whitelisting.
type BoundFilter struct {
	Column QuotedIdent
	Op     FilterOp
	Value  string
	Values []string
}

// BoundSort is a sort term whose column survived schema whitelisting.
type BoundSort struct {
	Column QuotedIdent
	Desc   bool
}

// Stmt is a complete parameterized statement ready for the driver.
type Stmt struct {
	SQL  string
	Args []any
}

// Builder assembles parameterized SQL for one dialect.
//
// Every client value enters the statement as a bound argument with its own
// placeholder; the SQL text is built only from quoted identifiers and
// grammar-fixed keywords.
type Builder struct {
	dialect database.Dialect
}

// NewBuilder constructs a [Builder] for the given dialect.
func NewBuilder(dialect database.Dialect) *Builder {
	return &Builder{dialect: dialect}
}

// Quote validates name against the identifier grammar and wraps it in the
// dialect's quote characters. This is the sole [QuotedIdent] constructor.
func (b *Builder) Quote(name string) (QuotedIdent, error) {
	if err := CheckIdentifier("identifier", name); err != nil {
		return QuotedIdent{}, err
	}

	quoted, err := b.dialect.QuoteIdentifier(name)
	if err != nil {
		return QuotedIdent{}, err
	}

	return QuotedIdent{raw: name, sql: quoted}, nil
}

// # Read Statements

// List builds the SELECT statement for the list action.
//
// An empty projection selects '*'; sorts and filters may be empty.
func (b *Builder) List(table QuotedIdent, projection []QuotedIdent, filters []BoundFilter, sorts []BoundSort, limit, offset int) Stmt {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(b.projection(projection))
	sb.WriteString(" FROM ")
	sb.WriteString(table.String())

	where, whereArgs := b.where(filters, 1)
	sb.WriteString(where)
	args = append(args, whereArgs...)

	if len(sorts) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, sort := range sorts {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(sort.Column.String())
			if sort.Desc {
				sb.WriteString(" DESC")
			}
		}
	}

	// LIMIT/OFFSET operands are validated integers, but they bind as
	// parameters anyway so the statement shape stays cacheable.
	next := len(args) + 1
	sb.WriteString(" LIMIT ")
	sb.WriteString(b.dialect.Placeholder(next))
	sb.WriteString(" OFFSET ")
	sb.WriteString(b.dialect.Placeholder(next + 1))
	args = append(args, limit, offset)

	return Stmt{SQL: sb.String(), Args: args}
}

// Count builds the companion COUNT(*) statement sharing the list WHERE clause.
func (b *Builder) Count(table QuotedIdent, filters []BoundFilter) Stmt {
	where, args := b.where(filters, 1)
	return Stmt{
		SQL:  "SELECT COUNT(*) FROM " + table.String() + where,
		Args: args,
	}
}

// Read builds the primary-key SELECT for the read action.
func (b *Builder) Read(table, pk QuotedIdent, id any) Stmt {
	return Stmt{
		SQL: fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
			table, pk, b.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

// # Write Statements

// Insert builds a single-row INSERT.
//
// When returning is non-nil (dialects without LastInsertId), a RETURNING
// clause recovers the generated primary key.
func (b *Builder) Insert(table QuotedIdent, columns []QuotedIdent, values []any, returning *QuotedIdent) Stmt {
	var cols, marks []string
	for i, column := range columns {
		cols = append(cols, column.String())
		marks = append(marks, b.dialect.Placeholder(i+1))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	if returning != nil {
		sql += " RETURNING " + returning.String()
	}

	return Stmt{SQL: sql, Args: values}
}

// Update builds the primary-key UPDATE for the update action.
func (b *Builder) Update(table QuotedIdent, columns []QuotedIdent, values []any, pk QuotedIdent, id any) Stmt {
	var sets []string
	for i, column := range columns {
		sets = append(sets, column.String()+" = "+b.dialect.Placeholder(i+1))
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		table, strings.Join(sets, ", "), pk, b.dialect.Placeholder(len(columns)+1))

	args := append(append([]any{}, values...), id)
	return Stmt{SQL: sql, Args: args}
}

// Delete builds the primary-key DELETE for the delete action.
func (b *Builder) Delete(table, pk QuotedIdent, id any) Stmt {
	return Stmt{
		SQL: fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			table, pk, b.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

// DeleteIn builds the bulk DELETE ... WHERE pk IN (...) statement with one
// binding per id.
func (b *Builder) DeleteIn(table, pk QuotedIdent, ids []any) Stmt {
	marks := make([]string, len(ids))
	for i := range ids {
		marks[i] = b.dialect.Placeholder(i + 1)
	}

	return Stmt{
		SQL: fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			table, pk, strings.Join(marks, ", ")),
		Args: ids,
	}
}

// # Internals

// projection renders the SELECT column list, defaulting to '*'.
func (b *Builder) projection(columns []QuotedIdent) string {
	if len(columns) == 0 {
		return "*"
	}

	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = column.String()
	}
	return strings.Join(parts, ", ")
}

// where compiles filters into an AND-joined WHERE clause.
//
// Each term gets its own placeholder index so the same column can appear
// in multiple terms without parameter collisions.
func (b *Builder) where(filters []BoundFilter, startIndex int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	var fragments []string
	var args []any
	next := startIndex

	for _, filter := range filters {
		switch filter.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike:
			fragments = append(fragments, fmt.Sprintf("%s %s %s",
				filter.Column, comparisonSQL[filter.Op], b.dialect.Placeholder(next)))
			args = append(args, filter.Value)
			next++

		case OpIn, OpNotIn:
			marks := make([]string, len(filter.Values))
			for i, value := range filter.Values {
				marks[i] = b.dialect.Placeholder(next)
				args = append(args, value)
				next++
			}
			keyword := "IN"
			if filter.Op == OpNotIn {
				keyword = "NOT IN"
			}
			fragments = append(fragments, fmt.Sprintf("%s %s (%s)",
				filter.Column, keyword, strings.Join(marks, ", ")))

		case OpNull:
			fragments = append(fragments, filter.Column.String()+" IS NULL")

		case OpNotNull:
			fragments = append(fragments, filter.Column.String()+" IS NOT NULL")
		}
	}

	return " WHERE " + strings.Join(fragments, " AND "), args
}

// comparisonSQL maps scalar operators to their SQL spelling.
var comparisonSQL = map[FilterOp]string{
	OpEq:   "=",
	OpNeq:  "<>",
	OpGt:   ">",
	OpGte:  ">=",
	OpLt:   "<",
	OpLte:  "<=",
	OpLike: "LIKE",
}
