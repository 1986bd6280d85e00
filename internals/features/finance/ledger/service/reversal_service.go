// file: internals/features/finance/ledger/service/reversal_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/ledger/model"
)

var ErrAlreadyReversed = errors.New("ledger: transaction already reversed")

// ReversalHook runs inside the reversal's database transaction, after the
// compensating row is written. Returning an error rolls the reversal back.
type ReversalHook func(ctx context.Context, tx *gorm.DB, original, reversal *model.LedgerTransactionModel, reason string) error

func (s *LedgerService) OnReverse(h ReversalHook) {
	s.reversalHooks = append(s.reversalHooks, h)
}

func ReversalReference(txnID uuid.UUID) string {
	return "REV-" + txnID.String()
}

type ReverseInput struct {
	SchoolID      uuid.UUID
	TransactionID uuid.UUID
	Reason        string
	ProcessedBy   uuid.UUID
}

// Reverse appends an ADJUSTMENT that offsets the original transaction.
// History is never edited.
func (s *LedgerService) Reverse(ctx context.Context, in ReverseInput) (*model.LedgerTransactionModel, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, finerr.Validation("reversal reason is required")
	}

	var out *model.LedgerTransactionModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orig model.LedgerTransactionModel
		if err := tx.Where("ledger_txn_id = ? AND ledger_txn_school_id = ?", in.TransactionID, in.SchoolID).
			Take(&orig).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return finerr.NotFound("transaction %s not found", in.TransactionID)
			}
			return err
		}
		if orig.LedgerTxnReversesID != nil {
			return finerr.Validation("transaction %s is itself a reversal", orig.LedgerTxnID)
		}

		ref := ReversalReference(orig.LedgerTxnID)
		var n int64
		if err := tx.Model(&model.LedgerTransactionModel{}).
			Where("ledger_txn_reference = ?", ref).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return finerr.Wrap(finerr.ErrConflict, ErrAlreadyReversed, "transaction %s was already reversed", orig.LedgerTxnID)
		}

		rev, err := s.ApplyTransactionTx(ctx, tx, ApplyInput{
			SchoolID:       orig.LedgerTxnSchoolID,
			AccountID:      orig.LedgerTxnAccountID,
			Type:           model.TransactionTypeAdjustment,
			Amount:         orig.LedgerTxnAmount,
			Direction:      orig.LedgerTxnDirection.Opposite(),
			Description:    reversalDescription(&orig),
			Reference:      ref,
			PaymentMethod:  orig.LedgerTxnPaymentMethod,
			ProcessedBy:    in.ProcessedBy,
			Notes:          reason,
			IdempotencyKey: ref,
			ReversesID:     &orig.LedgerTxnID,
		})
		if err != nil {
			// the unique idempotency key catches a concurrent second reversal
			if errors.Is(err, ErrDuplicateRequest) {
				return finerr.Wrap(finerr.ErrConflict, ErrAlreadyReversed, "transaction %s was already reversed", orig.LedgerTxnID)
			}
			return err
		}

		for _, h := range s.reversalHooks {
			if err := h(ctx, tx, &orig, rev, reason); err != nil {
				return err
			}
		}
		out = rev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("transaction reversed",
		zap.String("original_id", in.TransactionID.String()),
		zap.String("reversal_id", out.LedgerTxnID.String()),
		zap.String("balance_after", out.LedgerTxnBalanceAfter.StringFixed(2)),
	)
	return out, nil
}

func reversalDescription(orig *model.LedgerTransactionModel) string {
	if orig.LedgerTxnReference != "" {
		return fmt.Sprintf("Reversal of %s %s", strings.ToLower(string(orig.LedgerTxnType)), orig.LedgerTxnReference)
	}
	return fmt.Sprintf("Reversal of %s %s", strings.ToLower(string(orig.LedgerTxnType)), orig.LedgerTxnID)
}
