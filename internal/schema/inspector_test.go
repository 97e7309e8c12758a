// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package schema

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatadb/relata/internal/platform/apperr"
	"github.com/relatadb/relata/internal/platform/database"
)

func newMockInspector(t *testing.T) (*Inspector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewInspector(db, database.MySQLDialect{}), mock
}

func expectTables(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"TABLE_NAME"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(`SELECT TABLE_NAME\s+FROM INFORMATION_SCHEMA.TABLES`).WillReturnRows(rows)
}

func expectOrdersColumns(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT\s+FROM INFORMATION_SCHEMA.COLUMNS`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT"}).
			AddRow("id", "bigint", "NO", nil).
			AddRow("name", "varchar", "NO", nil).
			AddRow("total", "decimal", "YES", "0.00"))
	mock.ExpectQuery(`SELECT COLUMN_NAME\s+FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
}

/*
TestTables verifies enumeration is sorted and memoized across calls.
*/
func TestTables(t *testing.T) {
	inspector, mock := newMockInspector(t)
	expectTables(mock, "users", "orders")

	tables, err := inspector.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	// Second call must not hit the database again.
	tables, err = inspector.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	exists, err := inspector.TableExists(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = inspector.TableExists(context.Background(), "ghosts")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestSchema covers introspection, nullable and default mapping, and the
per-table memoization.
*/
func TestSchema(t *testing.T) {
	inspector, mock := newMockInspector(t)
	expectTables(mock, "orders")
	expectOrdersColumns(mock)

	loaded, err := inspector.Schema(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, "orders", loaded.Name)
	assert.Equal(t, "id", loaded.PrimaryKey)
	assert.Equal(t, []string{"id", "name", "total"}, loaded.ColumnNames())
	assert.True(t, loaded.HasColumn("total"))
	assert.False(t, loaded.HasColumn("password"))

	require.Len(t, loaded.Columns, 3)
	assert.False(t, loaded.Columns[0].Nullable)
	assert.Nil(t, loaded.Columns[0].Default)
	assert.True(t, loaded.Columns[2].Nullable)
	require.NotNil(t, loaded.Columns[2].Default)
	assert.Equal(t, "0.00", *loaded.Columns[2].Default)

	// Memoized: no further catalog queries.
	again, err := inspector.Schema(context.Background(), "orders")
	require.NoError(t, err)
	assert.Same(t, loaded, again)

	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestSchemaUnknownTable maps absent tables to NOT_FOUND without running the
column queries.
*/
func TestSchemaUnknownTable(t *testing.T) {
	inspector, mock := newMockInspector(t)
	expectTables(mock, "orders")

	_, err := inspector.Schema(context.Background(), "ghosts")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestSchemaWithoutPrimaryKey leaves PrimaryKey empty for keyless tables.
*/
func TestSchemaWithoutPrimaryKey(t *testing.T) {
	inspector, mock := newMockInspector(t)
	expectTables(mock, "audit")

	mock.ExpectQuery(`SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT\s+FROM INFORMATION_SCHEMA.COLUMNS`).
		WithArgs("audit").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT"}).
			AddRow("event", "varchar", "NO", nil))
	mock.ExpectQuery(`SELECT COLUMN_NAME\s+FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE`).
		WithArgs("audit").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}))

	loaded, err := inspector.Schema(context.Background(), "audit")
	require.NoError(t, err)
	assert.Empty(t, loaded.PrimaryKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestRefresh forces re-enumeration and re-introspection.
*/
func TestRefresh(t *testing.T) {
	inspector, mock := newMockInspector(t)
	expectTables(mock, "orders")
	expectOrdersColumns(mock)

	_, err := inspector.Schema(context.Background(), "orders")
	require.NoError(t, err)

	inspector.Refresh("orders")

	expectTables(mock, "orders")
	expectOrdersColumns(mock)

	_, err = inspector.Schema(context.Background(), "orders")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
