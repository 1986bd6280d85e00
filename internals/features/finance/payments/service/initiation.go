// file: internals/features/finance/payments/service/initiation.go
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
	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/gateways"
	"schoolfinance_backend/internals/features/finance/payments/model"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

type InitiateInput struct {
	SchoolID  uuid.UUID
	StudentID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Gateway   string
	ReturnURL string
	Payer     *helperAuth.Identity
}

type InitiateResult struct {
	PaymentID            uuid.UUID           `json:"payment_id"`
	GatewayTransactionID uuid.UUID           `json:"gateway_transaction_id"`
	PaymentURL           string              `json:"payment_url"`
	ReceiptNumber        string              `json:"receipt_number"`
	ExpiresAt            *time.Time          `json:"expires_at,omitempty"`
	Status               model.GatewayStatus `json:"status"`
}

// Initiate opens a hosted checkout. The Payment and its GatewayTransaction
// are committed before the provider is called, so every session handed to a
// payer can be reconciled later. Nothing touches the balance here.
func (s *PaymentService) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if err := validAmount(in.Amount); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.opts.Currency
	}
	if currency != s.opts.Currency {
		return nil, finerr.Validation("currency must be %s", s.opts.Currency)
	}
	minor, err := gateways.ToMinorUnits(in.Amount, currency)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateways.Get(in.Gateway)
	if err != nil {
		return nil, err
	}
	if !gateways.Supported(gw) {
		return nil, finerr.New(finerr.ErrNotImplemented, "%s payments are not available yet", gw.Name())
	}

	st, err := s.loadStudent(ctx, s.db, in.SchoolID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudent(in.Payer, st); err != nil {
		return nil, err
	}
	acct, err := s.ledger.EnsureAccount(ctx, in.SchoolID, in.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := model.PaymentModel{
		PaymentID:                 uuid.New(),
		PaymentSchoolID:           in.SchoolID,
		PaymentStudentID:          in.StudentID,
		PaymentAccountID:          acct.StudentAccountID,
		PaymentAmount:             in.Amount,
		PaymentCurrency:           currency,
		PaymentMethod:             model.PaymentMethodGateway,
		PaymentStatus:             model.PaymentStatusPending,
		PaymentProspectiveBalance: decimal.NewNullDecimal(acct.StudentAccountBalance.Sub(in.Amount)),
		PaymentRecordedBy:         in.Payer.UserID,
	}
	if strings.EqualFold(in.Payer.Role, helperAuth.RoleParent) {
		p.PaymentParentID = &in.Payer.UserID
	}
	gt := model.GatewayTransactionModel{
		GatewayTxnID:          uuid.New(),
		GatewayTxnSchoolID:    in.SchoolID,
		GatewayTxnPaymentID:   p.PaymentID,
		GatewayTxnGateway:     gw.Name(),
		GatewayTxnAmount:      in.Amount,
		GatewayTxnAmountMinor: minor,
		GatewayTxnCurrency:    currency,
		GatewayTxnStatus:      model.GatewayStatusPending,
		GatewayTxnCallbackURL: s.opts.PublicBaseURL + "/api/payments/callback/" + gw.Name(),
		GatewayTxnReturnURL:   strings.TrimSpace(in.ReturnURL),
	}
	gt.GatewayTxnRef = gt.GatewayTxnID.String()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := NextReceiptNumber(ctx, tx, now.Year())
		if err != nil {
			return err
		}
		p.PaymentReceiptNumber = receipt
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return tx.Create(&gt).Error
	})
	if err != nil {
		return nil, err
	}

	res, err := gw.InitiatePayment(ctx, gateways.InitiateRequest{
		Reference:   gt.GatewayTxnRef,
		Amount:      in.Amount,
		Currency:    currency,
		Description: "School fees " + st.StudentName,
		Customer:    customerFor(st),
		CallbackURL: gt.GatewayTxnCallbackURL,
		ReturnURL:   gt.GatewayTxnReturnURL,
		ExpiresIn:   s.opts.SessionTTL,
	})
	if err != nil {
		s.initiationFailed(ctx, &gt, err)
		return nil, err
	}

	updates := map[string]any{
		"gateway_txn_payment_url": res.PaymentURL,
		"gateway_txn_updated_at":  s.now().UTC(),
	}
	if res.ExpiresAt != nil {
		gt.GatewayTxnExpiresAt = res.ExpiresAt
	} else {
		at := now.Add(s.opts.SessionTTL)
		gt.GatewayTxnExpiresAt = &at
	}
	updates["gateway_txn_expires_at"] = *gt.GatewayTxnExpiresAt
	if res.GatewayRef != "" && res.GatewayRef != gt.GatewayTxnRef {
		updates["gateway_txn_ref"] = res.GatewayRef
		gt.GatewayTxnRef = res.GatewayRef
	}
	if err := s.db.WithContext(ctx).Model(&model.GatewayTransactionModel{}).
		Where("gateway_txn_id = ?", gt.GatewayTxnID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	s.log.Info("gateway payment initiated",
		zap.String("payment_id", p.PaymentID.String()),
		zap.String("gateway", gw.Name()),
		zap.String("gateway_ref", gt.GatewayTxnRef),
		zap.String("amount", in.Amount.StringFixed(2)),
	)
	return &InitiateResult{
		PaymentID:            p.PaymentID,
		GatewayTransactionID: gt.GatewayTxnID,
		PaymentURL:           res.PaymentURL,
		ReceiptNumber:        p.PaymentReceiptNumber,
		ExpiresAt:            gt.GatewayTxnExpiresAt,
		Status:               gt.GatewayTxnStatus,
	}, nil
}

// initiationFailed closes a session the provider never opened. A timeout
// leaves it PENDING: the provider may have created it, so only a poll or
// the expiry sweep may settle it.
func (s *PaymentService) initiationFailed(ctx context.Context, gt *model.GatewayTransactionModel, cause error) {
	if errors.Is(cause, finerr.ErrGatewayTimeout) {
		s.log.Warn("gateway initiation unconfirmed",
			zap.String("gateway_txn_id", gt.GatewayTxnID.String()),
			zap.Error(cause),
		)
		return
	}
	s.log.Error("gateway initiation failed",
		zap.String("gateway_txn_id", gt.GatewayTxnID.String()),
		zap.String("gateway", gt.GatewayTxnGateway),
		zap.Error(cause),
	)
	reason := "initiation failed: " + finerr.PublicMessage(cause)
	// outlives a cancelled request
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.transition(cctx, gt.GatewayTxnGateway, gt.GatewayTxnRef, &gateways.CallbackData{
		GatewayRef:    gt.GatewayTxnRef,
		Status:        gateways.StatusFailed,
		FailureReason: reason,
	}); err != nil {
		s.log.Error("could not close failed session", zap.String("gateway_txn_id", gt.GatewayTxnID.String()), zap.Error(err))
	}
}

func customerFor(st *feesModel.StudentModel) gateways.Customer {
	c := gateways.Customer{Name: st.StudentName}
	if st.StudentParentEmail != nil {
		c.Email = *st.StudentParentEmail
	}
	return c
}
