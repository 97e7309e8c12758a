// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package database

import (
	"fmt"
	"strings"
)

// Dialect is the database-family-specific subset of SQL used by the gateway:
// identifier quoting, positional placeholders, and catalog introspection.
//
// # Safety
//
// QuoteIdentifier MUST reject any identifier containing the dialect's own
// quote character. This is defense in depth: the query validator already
// rejects such names, but the dialect never trusts its callers.
type Dialect interface {
	// Name returns the driver family name ("mysql" or "postgres").
	Name() string

	// QuoteIdentifier wraps a table or column name in the dialect's quote
	// character. It fails on names embedding that character.
	QuoteIdentifier(name string) (string, error)

	// Placeholder renders the 1-based positional bind marker for the dialect
	// ("?" for MySQL, "$1", "$2", ... for PostgreSQL).
	Placeholder(index int) string

	// TablesQuery lists base table names of the connected schema. No args.
	TablesQuery() string

	// ColumnsQuery lists (name, type, nullable, default) for one table,
	// in ordinal order. One bound arg: the table name.
	ColumnsQuery() string

	// PrimaryKeyQuery resolves the primary key column of one table.
	// One bound arg: the table name.
	PrimaryKeyQuery() string

	// SupportsLastInsertID reports whether the driver returns auto-increment
	// IDs via [sql.Result.LastInsertId]. When false, INSERT statements must
	// append a RETURNING clause to recover the generated key.
	SupportsLastInsertID() bool
}

// # MySQL Family

// MySQLDialect implements [Dialect] for MySQL, MariaDB, and compatible engines.
type MySQLDialect struct{}

// Name implements [Dialect].
func (MySQLDialect) Name() string { return "mysql" }

// QuoteIdentifier wraps the name in backticks, rejecting embedded backticks.
func (MySQLDialect) QuoteIdentifier(name string) (string, error) {
	if strings.ContainsRune(name, '`') {
		return "", fmt.Errorf("database: identifier %q contains the quote character", name)
	}
	return "`" + name + "`", nil
}

// Placeholder implements [Dialect]. MySQL placeholders are position-blind.
func (MySQLDialect) Placeholder(int) string { return "?" }

// TablesQuery implements [Dialect] using INFORMATION_SCHEMA scoped to the
// connected database.
func (MySQLDialect) TablesQuery() string {
	return `SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`
}

// ColumnsQuery implements [Dialect].
func (MySQLDialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`
}

// PrimaryKeyQuery implements [Dialect]. Composite keys resolve to their
// first column.
func (MySQLDialect) PrimaryKeyQuery() string {
	return `SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
		LIMIT 1`
}

// SupportsLastInsertID implements [Dialect].
func (MySQLDialect) SupportsLastInsertID() bool { return true }

// # PostgreSQL Family

// PostgresDialect implements [Dialect] for PostgreSQL via the pgx stdlib driver.
type PostgresDialect struct{}

// Name implements [Dialect].
func (PostgresDialect) Name() string { return "postgres" }

// QuoteIdentifier wraps the name in double quotes, rejecting embedded quotes.
func (PostgresDialect) QuoteIdentifier(name string) (string, error) {
	if strings.ContainsRune(name, '"') {
		return "", fmt.Errorf("database: identifier %q contains the quote character", name)
	}
	return `"` + name + `"`, nil
}

// Placeholder implements [Dialect] with numbered markers.
func (PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// TablesQuery implements [Dialect] scoped to the public schema.
func (PostgresDialect) TablesQuery() string {
	return `SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`
}

// ColumnsQuery implements [Dialect].
func (PostgresDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`
}

// PrimaryKeyQuery implements [Dialect].
func (PostgresDialect) PrimaryKeyQuery() string {
	return `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position
		LIMIT 1`
}

// SupportsLastInsertID implements [Dialect]. The pgx stdlib driver does not
// surface LastInsertId; INSERTs use RETURNING instead.
func (PostgresDialect) SupportsLastInsertID() bool { return false }
