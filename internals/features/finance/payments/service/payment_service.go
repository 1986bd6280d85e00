// file: internals/features/finance/payments/service/payment_service.go
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	feesModel "schoolfinance_backend/internals/features/finance/fees/model"
	feesService "schoolfinance_backend/internals/features/finance/fees/service"
	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/gateways"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/notify"
	"schoolfinance_backend/internals/features/finance/payments/model"
)

type Options struct {
	// Currency is the single ledger currency; gateway payments must use it.
	Currency      string
	SessionTTL    time.Duration
	PublicBaseURL string
}

// PaymentService records manual payments, runs gateway checkouts and
// reconciles provider confirmations into the ledger.
type PaymentService struct {
	db       *gorm.DB
	ledger   *ledgerService.LedgerService
	gateways *gateways.Registry
	notifier *notify.Dispatcher
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	ledger *ledgerService.LedgerService,
	registry *gateways.Registry,
	notifier *notify.Dispatcher,
	log *zap.Logger,
	opts Options,
) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = "IDR"
	}
	opts.Currency = strings.ToUpper(opts.Currency)
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	s := &PaymentService{
		db:       db,
		ledger:   ledger,
		gateways: registry,
		notifier: notifier,
		log:      log.Named("payments"),
		opts:     opts,
		now:      time.Now,
	}
	ledger.OnReverse(s.onReverse)
	return s
}

// onReverse marks the receipt of a reversed PAYMENT as Rejected in the same
// database transaction as the compensating entry.
func (s *PaymentService) onReverse(ctx context.Context, tx *gorm.DB, original, reversal *ledgerModel.LedgerTransactionModel, reason string) error {
	if original.LedgerTxnType != ledgerModel.TransactionTypePayment {
		return nil
	}
	msg := "reversed: " + reason
	return tx.WithContext(ctx).Model(&model.PaymentModel{}).
		Where("payment_transaction_id = ?", original.LedgerTxnID).
		Updates(map[string]any{
			"payment_status":           model.PaymentStatusRejected,
			"payment_rejection_reason": msg,
			"payment_updated_at":       s.now().UTC(),
		}).Error
}

/* =========================================================
   Shared lookups
========================================================= */

func (s *PaymentService) loadStudent(ctx context.Context, db *gorm.DB, schoolID, studentID uuid.UUID) (*feesModel.StudentModel, error) {
	return feesService.LoadStudent(ctx, db, schoolID, studentID)
}

func (s *PaymentService) loadPayment(ctx context.Context, schoolID, paymentID uuid.UUID) (*model.PaymentModel, error) {
	var p model.PaymentModel
	if err := s.db.WithContext(ctx).
		Where("payment_id = ? AND payment_school_id = ?", paymentID, schoolID).
		Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("payment %s not found", paymentID)
		}
		return nil, err
	}
	return &p, nil
}

var authorizeStudent = feesService.AuthorizeStudent

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return finerr.Validation("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return finerr.Validation("amount must have at most 2 decimal places")
	}
	return nil
}

func (s *PaymentService) sendReceipt(st *feesModel.StudentModel, p *model.PaymentModel) {
	if st.StudentParentEmail == nil || strings.TrimSpace(*st.StudentParentEmail) == "" {
		s.log.Debug("no parent email, receipt not sent", zap.String("receipt_number", p.PaymentReceiptNumber))
		return
	}
	date := s.now()
	if p.PaymentVerifiedAt != nil {
		date = *p.PaymentVerifiedAt
	}
	s.notifier.Send(notify.Receipt{
		To:            *st.StudentParentEmail,
		StudentName:   st.StudentName,
		Amount:        p.PaymentAmount,
		Currency:      p.PaymentCurrency,
		ReceiptNumber: p.PaymentReceiptNumber,
		Method:        string(p.PaymentMethod),
		Date:          date,
	}, nil)
}

func strPtr(s string) *string { return &s }
