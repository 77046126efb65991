package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

type rowsResult int64

func (r rowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r rowsResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "folio", 1))

	err := mapErr(fmt.Errorf("select: %w", sql.ErrNoRows), "folio", 4)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, "folio 4 not found", err.Error())

	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	err = mapErr(deadlock, "reservation", 1)
	assert.ErrorIs(t, err, model.ErrConcurrency)
	assert.True(t, retryable(err))
	assert.True(t, retryable(fmt.Errorf("load: %w", mapErr(&mysql.MySQLError{Number: 1205}, "room", 2))))

	err = mapErr(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, "guest summary", 0)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.False(t, retryable(err))

	plain := errors.New("connection refused")
	assert.Same(t, plain, mapErr(plain, "room", 1))
	assert.False(t, retryable(plain))
}

func TestExpectRow(t *testing.T) {
	assert.NoError(t, expectRow(rowsResult(1), "room", 3))
	assert.ErrorIs(t, expectRow(rowsResult(0), "room", 3), model.ErrNotFound)
}

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "guest_summary:42", summaryKey(42))
}

func TestLineQueriesLockThroughReservation(t *testing.T) {
	assert.NotContains(t, lineByIDQuery, "FOR UPDATE")
	assert.Contains(t, linesByReservationQuery, "FOR UPDATE")
}
