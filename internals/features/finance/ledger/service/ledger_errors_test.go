package service

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"schoolfinance_backend/internals/features/finance/finerr"
)

func TestInsertError_KeyRaceIsDuplicateRequest(t *testing.T) {
	keyViolation := &pgconn.PgError{Code: "23505", ConstraintName: "idx_ledger_transactions_ledger_txn_idempotency_key"}
	seqViolation := &pgconn.PgError{Code: "23505", ConstraintName: "uq_ledger_txn_account_seq"}

	err := insertError(keyViolation, "FEE-abc")
	assert.True(t, errors.Is(err, ErrDuplicateRequest))
	assert.True(t, errors.Is(err, finerr.ErrConflict))

	err = insertError(seqViolation, "FEE-abc")
	assert.True(t, errors.Is(err, ErrConcurrentUpdate))
	assert.False(t, errors.Is(err, ErrDuplicateRequest))

	err = insertError(errors.New("UNIQUE constraint failed: ledger_transactions.ledger_txn_idempotency_key"), "REV-1")
	assert.True(t, errors.Is(err, ErrDuplicateRequest))

	other := errors.New("disk full")
	assert.Same(t, other, insertError(other, ""))
}
