// file: internals/route/details/finance_routes.go
package details

import (
	FeeController "schoolfinance_backend/internals/features/finance/fees/controller"
	FeeRoute "schoolfinance_backend/internals/features/finance/fees/route"
	LedgerController "schoolfinance_backend/internals/features/finance/ledger/controller"
	LedgerRoute "schoolfinance_backend/internals/features/finance/ledger/route"
	PaymentController "schoolfinance_backend/internals/features/finance/payments/controller"
	PaymentRoute "schoolfinance_backend/internals/features/finance/payments/route"

	"github.com/gofiber/fiber/v2"
)

type FinanceControllers struct {
	Ledger   *LedgerController.LedgerController
	Fees     *FeeController.FeeController
	Payments *PaymentController.PaymentController
}

// FinanceCallbackRoutes must be mounted before any JWT group on the same
// prefix.
func FinanceCallbackRoutes(r fiber.Router, h FinanceControllers) {
	PaymentRoute.PaymentCallbackRoutes(r, h.Payments)
}

func FinanceUserRoutes(r fiber.Router, h FinanceControllers) {
	PaymentRoute.PaymentUserRoutes(r, h.Payments)
	LedgerRoute.LedgerUserRoutes(r.Group("/finance"), h.Ledger)
}

func FinanceAdminRoutes(r fiber.Router, h FinanceControllers) {
	fin := r.Group("/finance")
	LedgerRoute.LedgerAdminRoutes(fin, h.Ledger)
	FeeRoute.FeeAdminRoutes(fin, h.Fees)
	PaymentRoute.PaymentAdminRoutes(fin, h.Payments)
}
