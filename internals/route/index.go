// file: internals/route/index.go
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/configs"
	schoolMiddleware "schoolfinance_backend/internals/middlewares/auth_school"
	middlewares "schoolfinance_backend/internals/middlewares"
	routeDetails "schoolfinance_backend/internals/route/details"
)

var startTime time.Time

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *configs.AppConfig, log *zap.Logger, h routeDetails.FinanceControllers) {
	startTime = time.Now()

	BaseRoutes(app, db, cfg)

	api := app.Group("/api")

	// ===================== PROVIDER CALLBACKS (no JWT) =====================
	log.Info("mounting callback routes")
	routeDetails.FinanceCallbackRoutes(api, h)

	// ===================== PRIVATE =====================
	// Group("") registers the JWT check for every /api route declared
	// after this point.
	log.Info("mounting private finance routes")
	private := api.Group("",
		schoolMiddleware.AuthJWT(schoolMiddleware.AuthJWTOpts{
			Secret:              cfg.JWTSecret,
			AllowCookieFallback: true,
		}),
		middlewares.GlobalRateLimiter(),
	)
	routeDetails.FinanceUserRoutes(private, h)
	routeDetails.FinanceAdminRoutes(private, h)
}
