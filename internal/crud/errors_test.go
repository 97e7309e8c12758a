// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package crud

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relatadb/relata/internal/platform/apperr"
)

/*
TestWrapDBError checks the driver-error taxonomy mapping and that driver
detail never leaks into the client-facing message.
*/
func TestWrapDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"no_rows", sql.ErrNoRows, apperr.CodeNotFound},
		{"deadline", context.DeadlineExceeded, apperr.CodeTimeout},
		{"mysql_duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'orders.name'"}, apperr.CodeConflict},
		{"mysql_fk_child", &mysql.MySQLError{Number: 1452}, apperr.CodeConflict},
		{"mysql_not_null", &mysql.MySQLError{Number: 1048}, apperr.CodeConflict},
		{"mysql_syntax", &mysql.MySQLError{Number: 1064}, apperr.CodeInternal},
		{"pg_unique", &pgconn.PgError{Code: "23505", Detail: "Key (name)=(x) already exists"}, apperr.CodeConflict},
		{"pg_other", &pgconn.PgError{Code: "42601"}, apperr.CodeInternal},
		{"bad_conn", driver.ErrBadConn, apperr.CodeUpstream},
		{"conn_done", sql.ErrConnDone, apperr.CodeUpstream},
		{"generic", errors.New("boom"), apperr.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapDBError(tt.err, "list")
			require.Error(t, wrapped)
			assert.True(t, apperr.IsCode(wrapped, tt.wantCode), "got %v", wrapped)

			ae := apperr.As(wrapped)
			require.NotNil(t, ae)
			assert.NotContains(t, ae.Message, "Duplicate entry")
			assert.NotContains(t, ae.Message, "already exists")
		})
	}

	assert.NoError(t, wrapDBError(nil, "list"))
}
