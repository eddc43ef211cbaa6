// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_InTransaction_CommitsOnSuccess(t *testing.T) {
	mock := newMockPool(t)
	id := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts SET password_hash`).
		WithArgs(id.String(), "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	store := NewAccountStore(mock)
	err := NewTransactor(mock).InTransaction(context.Background(), func(ctx context.Context) error {
		return store.UpdatePassword(ctx, id, "new-hash")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_InTransaction_RollsBackOnError(t *testing.T) {
	mock := newMockPool(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE reset_tokens SET used = true`).
		WithArgs("hash-1", now).
		WillReturnRows(pgxmock.NewRows(tokenRowColumns))
	mock.ExpectRollback()

	tokens := NewTokenStore(mock)
	errForced := errors.New("force rollback")
	err := NewTransactor(mock).InTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := tokens.MarkUsed(ctx, "hash-1", now); err != nil {
			return errForced
		}
		return nil
	})
	require.ErrorIs(t, err, errForced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_InTransaction_BeginFailure(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := NewTransactor(mock).InTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "too many connections")
}

func TestTransactor_InTransaction_NestedReusesOuter(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	tx := NewTransactor(mock)
	err := tx.InTransaction(context.Background(), func(ctx context.Context) error {
		return tx.InTransaction(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
