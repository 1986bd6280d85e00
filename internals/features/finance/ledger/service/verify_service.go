// file: internals/features/finance/ledger/service/verify_service.go
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/ledger/model"
)

type Verification struct {
	AccountID       uuid.UUID       `json:"account_id"`
	Transactions    int             `json:"transactions"`
	Balance         decimal.Decimal `json:"balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	Valid           bool            `json:"valid"`
	Problems        []string        `json:"problems,omitempty"`
}

// VerifyAccount replays the account's transactions in order and checks the
// running balance, sequence numbers and hash chain against the stored
// account row.
func (s *LedgerService) VerifyAccount(ctx context.Context, schoolID, studentID uuid.UUID) (*Verification, error) {
	acct, err := s.GetAccountByStudent(ctx, schoolID, studentID)
	if err != nil {
		return nil, err
	}

	var rows []model.LedgerTransactionModel
	if err := s.db.WithContext(ctx).
		Where("ledger_txn_account_id = ?", acct.StudentAccountID).
		Order("ledger_txn_sequence ASC").
		Order("ledger_txn_processed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	v := &Verification{
		AccountID:    acct.StudentAccountID,
		Transactions: len(rows),
		Balance:      acct.StudentAccountBalance,
	}
	problem := func(format string, args ...any) {
		v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
	}

	running := decimal.Zero
	prevHash := ""
	for i := range rows {
		r := &rows[i]
		if r.LedgerTxnSequence != int64(i+1) {
			problem("transaction %s has sequence %d, expected %d", r.LedgerTxnID, r.LedgerTxnSequence, i+1)
		}
		if i > 0 && r.LedgerTxnProcessedAt.Before(rows[i-1].LedgerTxnProcessedAt) {
			problem("transaction %s was processed before its predecessor", r.LedgerTxnID)
		}
		if !r.LedgerTxnBalanceBefore.Equal(running) {
			problem("transaction %s balance_before %s, replay has %s", r.LedgerTxnID, r.LedgerTxnBalanceBefore.StringFixed(2), running.StringFixed(2))
		}
		if !r.LedgerTxnBalanceAfter.Equal(r.LedgerTxnBalanceBefore.Add(r.SignedAmount())) {
			problem("transaction %s balance_after does not match its amount", r.LedgerTxnID)
		}
		if r.LedgerTxnPrevHash != prevHash {
			problem("transaction %s breaks the hash chain", r.LedgerTxnID)
		}
		if r.ComputeHash() != r.LedgerTxnHash {
			problem("transaction %s content does not match its hash", r.LedgerTxnID)
		}
		running = running.Add(r.SignedAmount())
		prevHash = r.LedgerTxnHash
	}

	v.ReplayedBalance = running
	if !running.Equal(acct.StudentAccountBalance) {
		problem("account balance %s, replay gives %s", acct.StudentAccountBalance.StringFixed(2), running.StringFixed(2))
	}
	if len(rows) > 0 && !rows[len(rows)-1].LedgerTxnBalanceAfter.Equal(acct.StudentAccountBalance) {
		problem("account balance differs from the latest balance_after")
	}
	if acct.StudentAccountLastHash != prevHash {
		problem("account hash head does not match the latest transaction")
	}
	if acct.StudentAccountVersion != int64(len(rows)) {
		problem("account version %d, %d transactions", acct.StudentAccountVersion, len(rows))
	}

	v.Valid = len(v.Problems) == 0
	if !v.Valid {
		s.log.Warn("ledger verification failed",
			zap.String("account_id", acct.StudentAccountID.String()),
			zap.Strings("problems", v.Problems),
		)
	}
	return v, nil
}
