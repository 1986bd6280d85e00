package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/configs"
	"schoolfinance_backend/internals/middlewares/logger"
)

// SetupMiddlewares installs the app-wide chain. Auth and rate limits are
// per route group.
func SetupMiddlewares(app *fiber.App, cfg *configs.AppConfig, log *zap.Logger) {
	app.Use(RecoveryMiddleware(log))
	app.Use(requestid.New())
	app.Use(logger.LoggerMiddleware())
	app.Use(CorsMiddleware(cfg.CORSAllowOrigins))
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(RequestContext(cfg.RequestTimeout))
}
