package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/configs"
	"schoolfinance_backend/internals/features/finance/finerr"
	helper "schoolfinance_backend/internals/helpers"
	middlewares "schoolfinance_backend/internals/middlewares"
	routes "schoolfinance_backend/internals/route"
	routeDetails "schoolfinance_backend/internals/route/details"
)

// HTTPModule builds the fiber app and ties it to the fx lifecycle.
var HTTPModule = fx.Module("http",
	fx.Provide(NewFiberApp),
	fx.Invoke(registerRoutes, startServer),
)

// NewFiberApp returns the app with the sonic codec and the standard error
// body for anything a handler returns instead of writing itself.
func NewFiberApp(cfg *configs.AppConfig, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           90 * time.Second,
		ErrorHandler:          ErrorHandler(log),
	})
	middlewares.SetupMiddlewares(app, cfg, log)
	return app
}

func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if !errors.As(err, &fe) && finerr.Status(err) >= fiber.StatusInternalServerError {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return helper.JsonServiceError(c, err)
	}
}

func registerRoutes(app *fiber.App, db *gorm.DB, cfg *configs.AppConfig, log *zap.Logger, h routeDetails.FinanceControllers) {
	routes.SetupRoutes(app, db, cfg, log, h)
}

func startServer(lc fx.Lifecycle, sd fx.Shutdowner, app *fiber.App, cfg *configs.AppConfig, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("✅ listening", zap.String("port", cfg.Port))
				if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
					log.Error("server error", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping HTTP server")
			return app.ShutdownWithContext(ctx)
		},
	})
}
