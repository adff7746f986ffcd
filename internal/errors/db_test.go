package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError_Nil(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError_ContextErrors(t *testing.T) {
	timeoutErr := MapDBError(context.DeadlineExceeded)
	assert.True(t, IsTimeout(timeoutErr))

	canceledErr := MapDBError(context.Canceled)
	assert.True(t, IsCanceled(canceledErr))
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "field from column name",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "ticket",
			},
			wantField: "ticket",
		},
		{
			name: "field parsed from detail",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (ticket)=(5e3c74ae-a291-4f81-a7f6-e4c23f9eaa62) already exists.`,
			},
			wantField: "ticket",
		},
		{
			name: "no field metadata",
			pgErr: &pgconn.PgError{
				Code: pgerrcode.UniqueViolation,
			},
			wantField: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			require.True(t, IsConflict(err))
			assert.Equal(t, tt.wantField, GetField(err))
			assert.ErrorIs(t, err, tt.pgErr)
		})
	}
}

func TestMapDBError_CheckViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgerrcode.CheckViolation,
		ConstraintName: "tickets_status_check",
	}
	err := MapDBError(pgErr)
	assert.True(t, IsValidation(err))
}

func TestMapDBError_NotNullViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:       pgerrcode.NotNullViolation,
		ColumnName: "requested_time",
	}
	err := MapDBError(pgErr)
	require.True(t, IsValidation(err))
	assert.Equal(t, "requested_time", GetField(err))
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	err := MapDBError(pgErr)
	assert.True(t, IsInternal(err))
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("not a db error")
	assert.Equal(t, plain, MapDBError(plain))
}
