package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/configs"
	feeController "schoolfinance_backend/internals/features/finance/fees/controller"
	feeService "schoolfinance_backend/internals/features/finance/fees/service"
	"schoolfinance_backend/internals/features/finance/gateways"
	ledgerController "schoolfinance_backend/internals/features/finance/ledger/controller"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/notify"
	paymentController "schoolfinance_backend/internals/features/finance/payments/controller"
	paymentService "schoolfinance_backend/internals/features/finance/payments/service"
	routeDetails "schoolfinance_backend/internals/route/details"
)

// FinanceModule wires the ledger, fee, gateway and payment services plus
// their HTTP controllers.
var FinanceModule = fx.Module("finance",
	fx.Provide(
		ledgerService.NewLedgerService,
		feeService.NewFeeStructureService,
		provideFeeApplicationService,
		provideGatewayRegistry,
		provideNotifier,
		providePaymentService,

		ledgerController.NewLedgerController,
		feeController.NewFeeController,
		paymentController.NewPaymentController,
		provideFinanceControllers,
	),
	fx.Invoke(startExpirySweeper),
)

func provideFeeApplicationService(db *gorm.DB, ledger *ledgerService.LedgerService, cfg *configs.AppConfig, log *zap.Logger) *feeService.FeeApplicationService {
	return feeService.NewFeeApplicationService(db, ledger, log, cfg.FeeWorkers)
}

func provideGatewayRegistry(cfg *configs.AppConfig, log *zap.Logger) *gateways.Registry {
	return gateways.NewDefaultRegistry(gateways.MidtransConfig{
		ServerKey:  cfg.MidtransServerKey,
		Production: cfg.MidtransUseProd,
		Timeout:    cfg.GatewayTimeout,
	}, log)
}

// provideNotifier mails receipts when SMTP is configured, otherwise logs them.
func provideNotifier(cfg *configs.AppConfig, log *zap.Logger) *notify.Dispatcher {
	var n notify.Notifier = notify.NewLogNotifier(log)
	if cfg.SMTPHost != "" {
		n = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		log.Info("📧 receipt mail enabled", zap.String("host", cfg.SMTPHost))
	}
	return notify.NewDispatcher(n, log)
}

func providePaymentService(
	db *gorm.DB,
	ledger *ledgerService.LedgerService,
	registry *gateways.Registry,
	notifier *notify.Dispatcher,
	cfg *configs.AppConfig,
	log *zap.Logger,
) *paymentService.PaymentService {
	return paymentService.NewPaymentService(db, ledger, registry, notifier, log, paymentService.Options{
		Currency:      cfg.Currency,
		SessionTTL:    cfg.SessionTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
}

func provideFinanceControllers(
	l *ledgerController.LedgerController,
	f *feeController.FeeController,
	p *paymentController.PaymentController,
) routeDetails.FinanceControllers {
	return routeDetails.FinanceControllers{Ledger: l, Fees: f, Payments: p}
}

func startExpirySweeper(lc fx.Lifecycle, s *paymentService.PaymentService, cfg *configs.AppConfig) {
	var stop func() context.Context
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			stop, err = s.StartExpirySweeper(cfg.ExpirySweepSpec)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if stop == nil {
				return nil
			}
			select {
			case <-stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}
