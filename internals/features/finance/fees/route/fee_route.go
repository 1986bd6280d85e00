package route

import (
	"github.com/gofiber/fiber/v2"

	feesController "schoolfinance_backend/internals/features/finance/fees/controller"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// FeeAdminRoutes: finance staff only. Base: /api/finance
func FeeAdminRoutes(r fiber.Router, h *feesController.FeeController) {
	staff := helperAuth.RequireFinance()

	fs := r.Group("/fee-structures")
	fs.Post("/", staff, h.Create)
	fs.Get("/", staff, h.List)
	fs.Get("/:id", staff, h.Get)
	fs.Patch("/:id", staff, h.Update)
	fs.Post("/:id/apply", staff, h.ApplyStructure)

	b := r.Group("/bursaries")
	b.Post("/", staff, h.CreateBursary)
	b.Get("/", staff, h.ListBursaries)
	b.Post("/:id/deactivate", staff, h.DeactivateBursary)
}
