// file: internals/features/finance/payments/service/expiry_sweeper.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/gateways"
	"schoolfinance_backend/internals/features/finance/payments/model"
)

// SweepExpired settles sessions past their expiry. The provider is asked
// first: a settled session is applied, an open one is cancelled there
// before it is marked EXPIRED. Unconfirmed polls wait for the next run.
func (s *PaymentService) SweepExpired(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	var stale []model.GatewayTransactionModel
	if err := s.db.WithContext(ctx).
		Where("gateway_txn_status IN ? AND gateway_txn_expires_at IS NOT NULL AND gateway_txn_expires_at < ?",
			[]model.GatewayStatus{model.GatewayStatusPending, model.GatewayStatusProcessing}, s.now().UTC()).
		Order("gateway_txn_expires_at ASC").
		Limit(batch).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	settled := 0
	for i := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		gt := &stale[i]
		res, err := s.Poll(ctx, gt.GatewayTxnGateway, gt.GatewayTxnRef)
		switch {
		case err == nil && res.GatewayTransaction.GatewayTxnStatus.IsTerminal():
			settled++
			continue
		case err == nil:
			// the provider still holds an open session: close it there first
			if !s.cancelAtProvider(ctx, gt) {
				continue
			}
		case errors.Is(err, finerr.ErrGatewayTimeout):
			s.log.Warn("expiry poll unconfirmed", zap.String("gateway_txn_id", gt.GatewayTxnID.String()))
			continue
		case errors.Is(err, finerr.ErrNotFound), errors.Is(err, finerr.ErrNotImplemented), errors.Is(err, finerr.ErrConfigurationMissing):
			s.log.Debug("provider cannot report session, expiring locally", zap.String("gateway_txn_id", gt.GatewayTxnID.String()), zap.Error(err))
		default:
			s.log.Warn("expiry poll failed", zap.String("gateway_txn_id", gt.GatewayTxnID.String()), zap.Error(err))
			continue
		}

		res, err = s.transition(ctx, gt.GatewayTxnGateway, gt.GatewayTxnRef, &gateways.CallbackData{
			GatewayRef:    gt.GatewayTxnRef,
			Status:        gateways.StatusExpired,
			FailureReason: "checkout session expired",
		})
		if err != nil {
			s.log.Error("expire session failed", zap.String("gateway_txn_id", gt.GatewayTxnID.String()), zap.Error(err))
			continue
		}
		if res.Changed {
			settled++
		}
	}
	return settled, nil
}

func (s *PaymentService) cancelAtProvider(ctx context.Context, gt *model.GatewayTransactionModel) bool {
	gw, err := s.gateways.Get(gt.GatewayTxnGateway)
	if err != nil {
		return false
	}
	ok, err := gw.CancelPayment(ctx, gt.GatewayTxnRef)
	if err != nil || !ok {
		s.log.Warn("provider kept expired session open",
			zap.String("gateway_txn_id", gt.GatewayTxnID.String()),
			zap.Bool("cancelled", ok),
			zap.Error(err),
		)
		return false
	}
	return true
}

// StartExpirySweeper schedules SweepExpired. Call the returned stop func on
// shutdown.
func (s *PaymentService) StartExpirySweeper(spec string) (func() context.Context, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		n, err := s.SweepExpired(ctx, 100)
		if err != nil {
			s.log.Error("expiry sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			s.log.Info("expiry sweep settled sessions", zap.Int("count", n))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	s.log.Info("expiry sweeper started", zap.String("schedule", spec))
	return c.Stop, nil
}
