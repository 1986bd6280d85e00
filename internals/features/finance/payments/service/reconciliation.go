// file: internals/features/finance/payments/service/reconciliation.go
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/gateways"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/payments/model"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// ReconcileResult is the state after one callback or poll. Changed is false
// for duplicates, stale events and same-state updates.
type ReconcileResult struct {
	GatewayTransaction model.GatewayTransactionModel `json:"gateway_transaction"`
	Payment            model.PaymentModel            `json:"payment"`
	PreviousStatus     model.GatewayStatus           `json:"previous_status"`
	Changed            bool                          `json:"changed"`
}

func gatewayTxnIdempotencyKey(id uuid.UUID) string {
	return "GW-" + id.String()
}

/* =========================================================
   Push + pull entry points
========================================================= */

// HandleCallback processes a provider webhook. Every delivery is logged;
// only a verified one can change state.
func (s *PaymentService) HandleCallback(ctx context.Context, gatewayName string, raw []byte, signature string, headers map[string]string) (*ReconcileResult, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	ev := s.logEvent(ctx, gw.Name(), "callback", raw, signature, headers)

	data, err := gw.VerifyCallback(ctx, raw, signature)
	if err != nil {
		s.finishEvent(ctx, ev, nil, model.GatewayEventRejected, err)
		return nil, err
	}
	if ev != nil {
		ev.GatewayEventGatewayRef = &data.GatewayRef
	}

	res, err := s.transition(ctx, gw.Name(), data.GatewayRef, data)
	switch {
	case err != nil:
		s.finishEvent(ctx, ev, nil, model.GatewayEventRejected, err)
	case res.Changed:
		s.finishEvent(ctx, ev, &res.GatewayTransaction, model.GatewayEventProcessed, nil)
	default:
		s.finishEvent(ctx, ev, &res.GatewayTransaction, model.GatewayEventIgnored, nil)
	}
	return res, err
}

// Poll asks the provider for the session state and applies it exactly as a
// callback would be.
func (s *PaymentService) Poll(ctx context.Context, gatewayName, ref string) (*ReconcileResult, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	if _, err := s.findGatewayTxn(ctx, s.db, gw.Name(), ref); err != nil {
		return nil, err
	}
	data, err := gw.QueryPaymentStatus(ctx, ref)
	if err != nil {
		return nil, err
	}
	data.GatewayRef = ref
	return s.transition(ctx, gw.Name(), ref, data)
}

/* =========================================================
   State machine
========================================================= */

func (s *PaymentService) findGatewayTxn(ctx context.Context, db *gorm.DB, gatewayName, ref string) (*model.GatewayTransactionModel, error) {
	var gt model.GatewayTransactionModel
	err := db.WithContext(ctx).
		Where("gateway_txn_gateway = ? AND gateway_txn_ref = ?", gatewayName, ref).
		Take(&gt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("no %s session with reference %q", gatewayName, ref)
		}
		return nil, err
	}
	return &gt, nil
}

// transition applies one canonical provider status to the session. Lock
// order: gateway transaction, then (via the ledger) the student account.
func (s *PaymentService) transition(ctx context.Context, gatewayName, ref string, data *gateways.CallbackData) (*ReconcileResult, error) {
	if _, err := s.findGatewayTxn(ctx, s.db, gatewayName, ref); err != nil {
		return nil, err
	}

	var (
		res     ReconcileResult
		notifyP bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gt model.GatewayTransactionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("gateway_txn_gateway = ? AND gateway_txn_ref = ?", gatewayName, ref).
			Take(&gt).Error; err != nil {
			return err
		}
		var p model.PaymentModel
		if err := tx.Where("payment_id = ?", gt.GatewayTxnPaymentID).Take(&p).Error; err != nil {
			return err
		}
		res.PreviousStatus = gt.GatewayTxnStatus

		to := model.GatewayStatus(data.Status)
		reason := strings.TrimSpace(data.FailureReason)
		if !model.CanTransition(gt.GatewayTxnStatus, to) {
			res.GatewayTransaction, res.Payment = gt, p
			return nil
		}
		if to == model.GatewayStatusCompleted {
			if msg := amountMismatch(&gt, data); msg != "" {
				to, reason = model.GatewayStatusFailed, msg
				s.log.Warn("gateway amount mismatch",
					zap.String("gateway_txn_id", gt.GatewayTxnID.String()),
					zap.String("detail", msg),
				)
			}
		}

		now := s.now().UTC()
		gtUpdates := map[string]any{
			"gateway_txn_status":     to,
			"gateway_txn_updated_at": now,
		}
		if data.ProviderTxnID != "" {
			gtUpdates["gateway_txn_provider_txn_id"] = data.ProviderTxnID
			gt.GatewayTxnProviderTxnID = &data.ProviderTxnID
		}
		pUpdates := map[string]any{}

		switch to {
		case model.GatewayStatusCompleted:
			method := string(model.PaymentMethodGateway) + ":" + gatewayName
			txn, err := s.ledger.ApplyTransactionTx(ctx, tx, ledgerService.ApplyInput{
				SchoolID:       gt.GatewayTxnSchoolID,
				AccountID:      p.PaymentAccountID,
				Type:           ledgerModel.TransactionTypePayment,
				Amount:         gt.GatewayTxnAmount,
				Description:    "Online payment " + p.PaymentReceiptNumber,
				Reference:      p.PaymentReceiptNumber,
				PaymentMethod:  &method,
				ProcessedBy:    p.PaymentRecordedBy,
				Notes:          gatewayName + " " + ref,
				IdempotencyKey: gatewayTxnIdempotencyKey(gt.GatewayTxnID),
			})
			if err != nil {
				return err
			}
			gtUpdates["gateway_txn_completed_at"] = now
			gt.GatewayTxnCompletedAt = &now
			pUpdates["payment_status"] = model.PaymentStatusVerified
			pUpdates["payment_transaction_id"] = txn.LedgerTxnID
			pUpdates["payment_verified_at"] = now
			p.PaymentStatus = model.PaymentStatusVerified
			p.PaymentTransactionID = &txn.LedgerTxnID
			p.PaymentVerifiedAt = &now
			notifyP = true

		case model.GatewayStatusFailed, model.GatewayStatusCancelled, model.GatewayStatusExpired:
			if reason == "" {
				reason = strings.ToLower(string(to))
			}
			gtUpdates["gateway_txn_failed_at"] = now
			gtUpdates["gateway_txn_error_message"] = reason
			gt.GatewayTxnFailedAt = &now
			gt.GatewayTxnErrorMessage = &reason
			pUpdates["payment_status"] = model.PaymentStatusRejected
			pUpdates["payment_rejection_reason"] = reason
			p.PaymentStatus = model.PaymentStatusRejected
			p.PaymentRejectionReason = &reason
		}

		upd := tx.Model(&model.GatewayTransactionModel{}).
			Where("gateway_txn_id = ? AND gateway_txn_status = ?", gt.GatewayTxnID, gt.GatewayTxnStatus).
			Updates(gtUpdates)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return finerr.Conflict("gateway transaction %s changed concurrently", gt.GatewayTxnID)
		}
		if len(pUpdates) > 0 {
			pUpdates["payment_updated_at"] = now
			if err := tx.Model(&model.PaymentModel{}).
				Where("payment_id = ?", p.PaymentID).
				Updates(pUpdates).Error; err != nil {
				return err
			}
		}

		gt.GatewayTxnStatus = to
		res.GatewayTransaction, res.Payment, res.Changed = gt, p, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		s.log.Info("gateway transaction moved",
			zap.String("gateway_txn_id", res.GatewayTransaction.GatewayTxnID.String()),
			zap.String("from", string(res.PreviousStatus)),
			zap.String("to", string(res.GatewayTransaction.GatewayTxnStatus)),
		)
	}
	if notifyP {
		if st, err := s.loadStudent(ctx, s.db, res.Payment.PaymentSchoolID, res.Payment.PaymentStudentID); err == nil {
			s.sendReceipt(st, &res.Payment)
		}
	}
	return &res, nil
}

func amountMismatch(gt *model.GatewayTransactionModel, data *gateways.CallbackData) string {
	if data.Currency != "" && !strings.EqualFold(data.Currency, gt.GatewayTxnCurrency) {
		return "currency mismatch: expected " + gt.GatewayTxnCurrency + ", got " + data.Currency
	}
	if !data.Amount.Equal(gt.GatewayTxnAmount) {
		return "amount mismatch: expected " + gt.GatewayTxnAmount.StringFixed(2) + ", got " + data.Amount.StringFixed(2)
	}
	return ""
}

/* =========================================================
   Cancel
========================================================= */

// Cancel stops an unfinished checkout. Completed payments are never
// cancelled; they can only be reversed.
func (s *PaymentService) Cancel(ctx context.Context, caller *helperAuth.Identity, paymentID uuid.UUID) (*ReconcileResult, error) {
	if caller == nil {
		return nil, finerr.New(finerr.ErrUnauthorized, "caller identity is required")
	}
	p, err := s.loadPayment(ctx, caller.SchoolID, paymentID)
	if err != nil {
		return nil, err
	}
	st, err := s.loadStudent(ctx, s.db, p.PaymentSchoolID, p.PaymentStudentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudent(caller, st); err != nil {
		return nil, err
	}

	var gt model.GatewayTransactionModel
	if err := s.db.WithContext(ctx).Where("gateway_txn_payment_id = ?", p.PaymentID).Take(&gt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.Validation("payment %s is not a gateway payment", paymentID)
		}
		return nil, err
	}
	if gt.GatewayTxnStatus == model.GatewayStatusCompleted {
		return nil, finerr.Conflict("completed payments cannot be cancelled; reverse the transaction instead")
	}
	if gt.GatewayTxnStatus.IsTerminal() {
		return nil, finerr.Conflict("payment is already %s", strings.ToLower(string(gt.GatewayTxnStatus)))
	}

	gw, err := s.gateways.Get(gt.GatewayTxnGateway)
	if err != nil {
		return nil, err
	}
	ok, err := gw.CancelPayment(ctx, gt.GatewayTxnRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, finerr.Conflict("payment provider refused to cancel; the payment may already be settled")
	}

	res, err := s.transition(ctx, gt.GatewayTxnGateway, gt.GatewayTxnRef, &gateways.CallbackData{
		GatewayRef:    gt.GatewayTxnRef,
		Status:        gateways.StatusCancelled,
		FailureReason: "cancelled by " + caller.Role,
	})
	if err != nil {
		return nil, err
	}
	if res.GatewayTransaction.GatewayTxnStatus != model.GatewayStatusCancelled {
		return res, finerr.Conflict("payment moved to %s before it could be cancelled", strings.ToLower(string(res.GatewayTransaction.GatewayTxnStatus)))
	}
	return res, nil
}

/* =========================================================
   Event log
========================================================= */

// logEvent stores the raw delivery. Best effort: a failed insert never
// blocks reconciliation.
func (s *PaymentService) logEvent(ctx context.Context, gatewayName, typ string, raw []byte, signature string, headers map[string]string) *model.PaymentGatewayEventModel {
	payload := datatypes.JSON(raw)
	if len(raw) == 0 || !sonic.Valid(raw) {
		b, _ := sonic.Marshal(map[string]string{"raw": string(raw)})
		payload = datatypes.JSON(b)
	}
	ev := model.PaymentGatewayEventModel{
		GatewayEventGateway:    gatewayName,
		GatewayEventType:       typ,
		GatewayEventPayload:    payload,
		GatewayEventStatus:     model.GatewayEventReceived,
		GatewayEventReceivedAt: s.now().UTC(),
	}
	if len(headers) > 0 {
		if b, err := sonic.Marshal(headers); err == nil {
			ev.GatewayEventHeaders = datatypes.JSON(b)
		}
	}
	if signature != "" {
		ev.GatewayEventSignature = &signature
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		s.log.Warn("gateway event not logged", zap.String("gateway", gatewayName), zap.Error(err))
		return nil
	}
	return &ev
}

func (s *PaymentService) finishEvent(ctx context.Context, ev *model.PaymentGatewayEventModel, gt *model.GatewayTransactionModel, status model.GatewayEventStatus, cause error) {
	if ev == nil {
		return
	}
	now := s.now().UTC()
	updates := map[string]any{
		"gateway_event_status":       status,
		"gateway_event_processed_at": now,
	}
	if ev.GatewayEventGatewayRef != nil {
		updates["gateway_event_gateway_ref"] = *ev.GatewayEventGatewayRef
	}
	if gt != nil {
		updates["gateway_event_school_id"] = gt.GatewayTxnSchoolID
	}
	if cause != nil {
		updates["gateway_event_error"] = cause.Error()
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&model.PaymentGatewayEventModel{}).
		Where("gateway_event_id = ?", ev.GatewayEventID).
		Updates(updates).Error; err != nil {
		s.log.Warn("gateway event not updated", zap.String("gateway_event_id", ev.GatewayEventID.String()), zap.Error(err))
	}
}

type ListEventsFilter struct {
	Gateway    string
	GatewayRef string
	Status     string
}

func (s *PaymentService) ListEvents(ctx context.Context, schoolID uuid.UUID, f ListEventsFilter, limit, offset int) ([]model.PaymentGatewayEventModel, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.PaymentGatewayEventModel{}).
			Where("gateway_event_school_id = ?", schoolID)
		if f.Gateway != "" {
			q = q.Where("gateway_event_gateway = ?", strings.ToLower(f.Gateway))
		}
		if f.GatewayRef != "" {
			q = q.Where("gateway_event_gateway_ref = ?", f.GatewayRef)
		}
		if f.Status != "" {
			q = q.Where("gateway_event_status = ?", strings.ToLower(f.Status))
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]model.PaymentGatewayEventModel, 0)
	if err := base().Order("gateway_event_received_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
