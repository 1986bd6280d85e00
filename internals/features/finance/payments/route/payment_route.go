// file: internals/features/finance/payments/route/payment_route.go
package route

import (
	"github.com/gofiber/fiber/v2"

	paymentsController "schoolfinance_backend/internals/features/finance/payments/controller"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
	middlewares "schoolfinance_backend/internals/middlewares"
)

// PaymentCallbackRoutes: provider webhooks and browser returns, no JWT.
// Base path at the caller: /api
func PaymentCallbackRoutes(r fiber.Router, h *paymentsController.PaymentController) {
	cb := r.Group("/payments/callback", middlewares.CallbackRateLimiter())
	cb.Post("/:gateway", h.Callback)
	cb.Get("/:gateway", h.CallbackReturn)
}

// PaymentUserRoutes: payer-facing checkout endpoints (parent, student, staff).
func PaymentUserRoutes(r fiber.Router, h *paymentsController.PaymentController) {
	payments := r.Group("/payments")
	payments.Post("/initiate", middlewares.InitiateRateLimiter(), h.Initiate)
	payments.Get("/status/:paymentId", h.Status)
	payments.Post("/:paymentId/cancel", h.Cancel)
}

// PaymentAdminRoutes: finance staff. Base path at the caller: /api/finance
func PaymentAdminRoutes(r fiber.Router, h *paymentsController.PaymentController) {
	staff := helperAuth.RequireFinance()
	r.Post("/payments", staff, h.RecordPayment)
	r.Get("/payments", staff, h.ListPayments)
	r.Get("/gateway-events", staff, h.ListGatewayEvents)
}
