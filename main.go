package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/bootstrap"
)

func main() {
	app := fx.New(
		bootstrap.InfraModule,
		bootstrap.FinanceModule,
		bootstrap.HTTPModule,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)

	app.Run()
}
