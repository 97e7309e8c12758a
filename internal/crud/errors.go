// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package crud

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relatadb/relata/internal/platform/apperr"
)

// MySQL error numbers that signal an integrity-constraint violation.
const (
	mysqlErrDuplicateEntry    = 1062
	mysqlErrRowIsReferenced   = 1451
	mysqlErrNoReferencedRow   = 1452
	mysqlErrColumnCannotBeNul = 1048
)

// wrapDBError classifies a driver error into the gateway's error taxonomy.
//
// # Security
//
// Driver messages frequently embed SQL fragments and table internals, so the
// original error only travels in the server-side Cause chain; clients see
// the generic taxonomy message.
func wrapDBError(err error, operation string) error {
	if err == nil {
		return nil
	}

	// 1. Row-level misses map to 404.
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("Row")
	}

	// 2. Pipeline deadline exceeded maps to 504.
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout()
	}

	// 3. Integrity violations map to 409 (MySQL family).
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry, mysqlErrRowIsReferenced,
			mysqlErrNoReferencedRow, mysqlErrColumnCannotBeNul:
			return apperr.Conflict("The operation violates a database constraint").WithCause(err)
		}
	}

	// 4. Integrity violations map to 409 (PostgreSQL, SQLSTATE class 23).
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
			return apperr.Conflict("The operation violates a database constraint").WithCause(err)
		}
	}

	// 5. Dead connections map to 502: the database itself is unreachable.
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return apperr.Upstream(fmt.Errorf("crud: %s failed: %w", operation, err))
	}

	// 6. Everything else is an internal failure.
	return apperr.Internal(fmt.Errorf("crud: %s failed: %w", operation, err))
}
