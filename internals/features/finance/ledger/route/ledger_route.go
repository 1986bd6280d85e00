package route

import (
	"github.com/gofiber/fiber/v2"

	ledgerController "schoolfinance_backend/internals/features/finance/ledger/controller"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// LedgerUserRoutes: owners and staff read an account. Base: /api/finance
func LedgerUserRoutes(r fiber.Router, h *ledgerController.LedgerController) {
	st := r.Group("/students/:studentId")
	st.Get("/account", h.GetAccount)
	st.Get("/transactions", h.ListTransactions)
}

// LedgerAdminRoutes: staff only. Base: /api/finance
func LedgerAdminRoutes(r fiber.Router, h *ledgerController.LedgerController) {
	r.Get("/students/:studentId/account/verify", helperAuth.RequireFinance(), h.VerifyAccount)
	r.Post("/transactions/:id/reverse", helperAuth.RequireFinance(), h.Reverse)
}
