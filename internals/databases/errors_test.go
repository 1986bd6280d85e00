package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationOn(t *testing.T) {
	const col = "ledger_txn_idempotency_key"

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx on key index", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_ledger_transactions_" + col}), true},
		{"pgx on sequence index", &pgconn.PgError{Code: "23505", ConstraintName: "uq_ledger_txn_account_seq"}, false},
		{"pq on key index", &pq.Error{Code: "23505", Constraint: "idx_ledger_transactions_" + col}, true},
		{"pgx fk violation", &pgconn.PgError{Code: "23503", ConstraintName: col}, false},
		{"sqlite on key column", errors.New("UNIQUE constraint failed: ledger_transactions." + col), true},
		{"sqlite on other column", errors.New("UNIQUE constraint failed: ledger_transactions.ledger_txn_sequence"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolationOn(tc.err, col))
		})
	}
}
