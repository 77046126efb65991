// Package repository is the MySQL persistence of the reservation core.
// Repositories expose ...Tx methods that run on a caller supplied
// transaction; Store binds them to one unit of work.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// MySQL server error numbers the store reacts to.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlDuplicateKey    = 1062
)

// mapErr converts driver errors into the model error taxonomy.  entity and
// id describe the row a missing result refers to.
func mapErr(err error, entity string, id uint64) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFound(entity, id)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return model.Concurrency(err)
		case mysqlDuplicateKey:
			return model.Validation("duplicate "+entity, map[string]any{"cause": me.Message})
		}
	}
	return err
}

// retryable reports whether a failed unit of work may be run again.
func retryable(err error) bool {
	return errors.Is(err, model.ErrConcurrency)
}

// expectRow fails with NotFound when an UPDATE matched no row.  The DSN
// sets clientFoundRows so unchanged rows still count as matched.
func expectRow(result sql.Result, entity string, id uint64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound(entity, id)
	}
	return nil
}
