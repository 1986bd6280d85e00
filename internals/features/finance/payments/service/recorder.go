// file: internals/features/finance/payments/service/recorder.go
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	database "schoolfinance_backend/internals/databases"
	"schoolfinance_backend/internals/features/finance/finerr"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/payments/model"
)

type RecordInput struct {
	SchoolID       uuid.UUID
	StudentID      uuid.UUID
	Amount         decimal.Decimal
	Method         model.PaymentMethod
	BankReference  string
	Notes          string
	ParentID       *uuid.UUID
	RecordedBy     uuid.UUID
	IdempotencyKey string
}

type RecordResult struct {
	Payment     model.PaymentModel                 `json:"payment"`
	Transaction ledgerModel.LedgerTransactionModel `json:"transaction"`
	// Replayed is true when the idempotency key matched an earlier request.
	Replayed bool `json:"replayed"`
}

func scopedKey(schoolID uuid.UUID, key string) string {
	return schoolID.String() + ":" + key
}

// RecordPayment books money received at the office. The receipt number,
// the PAYMENT ledger entry and the Verified payment row commit together.
func (s *PaymentService) RecordPayment(ctx context.Context, in RecordInput) (*RecordResult, error) {
	if err := validAmount(in.Amount); err != nil {
		return nil, err
	}
	if !in.Method.IsManual() {
		return nil, finerr.Validation("method must be CASH, BANK_TRANSFER or MOBILE_MONEY")
	}
	bankRef := strings.TrimSpace(in.BankReference)
	if in.Method == model.PaymentMethodBankTransfer && bankRef == "" {
		return nil, finerr.Validation("bank reference is required for bank transfers")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 120 {
		return nil, finerr.Validation("idempotency key is too long")
	}

	if key != "" {
		if res, err := s.replay(ctx, in, key); res != nil || err != nil {
			return res, err
		}
	}

	st, err := s.loadStudent(ctx, s.db, in.SchoolID, in.StudentID)
	if err != nil {
		return nil, err
	}
	acct, err := s.ledger.EnsureAccount(ctx, in.SchoolID, in.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	method := string(in.Method)
	p := model.PaymentModel{
		PaymentSchoolID:   in.SchoolID,
		PaymentStudentID:  in.StudentID,
		PaymentAccountID:  acct.StudentAccountID,
		PaymentAmount:     in.Amount,
		PaymentCurrency:   s.opts.Currency,
		PaymentMethod:     in.Method,
		PaymentStatus:     model.PaymentStatusVerified,
		PaymentParentID:   in.ParentID,
		PaymentNotes:      strings.TrimSpace(in.Notes),
		PaymentRecordedBy: in.RecordedBy,
		PaymentVerifiedAt: &now,
	}
	if bankRef != "" {
		p.PaymentBankReference = &bankRef
	}
	if key != "" {
		p.PaymentIdempotencyKey = strPtr(scopedKey(in.SchoolID, key))
	}

	var txn *ledgerModel.LedgerTransactionModel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := NextReceiptNumber(ctx, tx, now.Year())
		if err != nil {
			return err
		}
		p.PaymentReceiptNumber = receipt

		notes := p.PaymentNotes
		if bankRef != "" {
			notes = strings.TrimSpace("bank ref " + bankRef + " " + notes)
		}
		txn, err = s.ledger.ApplyTransactionTx(ctx, tx, ledgerService.ApplyInput{
			SchoolID:      in.SchoolID,
			AccountID:     acct.StudentAccountID,
			Type:          ledgerModel.TransactionTypePayment,
			Amount:        in.Amount,
			Description:   "Payment " + receipt,
			Reference:     receipt,
			PaymentMethod: &method,
			ProcessedBy:   in.RecordedBy,
			Notes:         notes,
		})
		if err != nil {
			return err
		}

		p.PaymentTransactionID = &txn.LedgerTxnID
		p.PaymentProspectiveBalance = decimal.NewNullDecimal(txn.LedgerTxnBalanceAfter)
		if err := tx.Create(&p).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return finerr.Conflict("a payment with this idempotency key is being recorded")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.String("receipt_number", p.PaymentReceiptNumber),
		zap.String("student_id", in.StudentID.String()),
		zap.String("amount", in.Amount.StringFixed(2)),
		zap.String("method", method),
		zap.String("balance_after", txn.LedgerTxnBalanceAfter.StringFixed(2)),
	)
	s.sendReceipt(st, &p)
	return &RecordResult{Payment: p, Transaction: *txn}, nil
}

// replay returns the stored outcome for a repeated idempotency key. A key
// reused for a different payment is a conflict.
func (s *PaymentService) replay(ctx context.Context, in RecordInput, key string) (*RecordResult, error) {
	var p model.PaymentModel
	err := s.db.WithContext(ctx).
		Where("payment_idempotency_key = ?", scopedKey(in.SchoolID, key)).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.PaymentStudentID != in.StudentID || !p.PaymentAmount.Equal(in.Amount) || p.PaymentMethod != in.Method {
		return nil, finerr.Conflict("idempotency key was already used for a different payment")
	}
	res := &RecordResult{Payment: p, Replayed: true}
	if p.PaymentTransactionID != nil {
		txn, err := s.ledger.GetTransaction(ctx, in.SchoolID, *p.PaymentTransactionID)
		if err != nil {
			return nil, err
		}
		res.Transaction = *txn
	}
	return res, nil
}

/* =========================================================
   Reads
========================================================= */

type ListPaymentsFilter struct {
	StudentID *uuid.UUID
	Status    *model.PaymentStatus
	Method    *model.PaymentMethod
}

func (s *PaymentService) ListPayments(ctx context.Context, schoolID uuid.UUID, f ListPaymentsFilter, limit, offset int) ([]model.PaymentModel, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.PaymentModel{}).Where("payment_school_id = ?", schoolID)
		if f.StudentID != nil {
			q = q.Where("payment_student_id = ?", *f.StudentID)
		}
		if f.Status != nil {
			q = q.Where("payment_status = ?", *f.Status)
		}
		if f.Method != nil {
			q = q.Where("payment_method = ?", *f.Method)
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]model.PaymentModel, 0)
	if err := base().Order("payment_created_at DESC, payment_receipt_number DESC").
		Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
