// file: internals/features/finance/ledger/controller/ledger_controller.go
package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	feesService "schoolfinance_backend/internals/features/finance/fees/service"
	dto "schoolfinance_backend/internals/features/finance/ledger/dto"
	svc "schoolfinance_backend/internals/features/finance/ledger/service"
	helper "schoolfinance_backend/internals/helpers"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

type LedgerController struct {
	DB        *gorm.DB
	Svc       *svc.LedgerService
	Validator *validator.Validate
	Log       *zap.Logger
}

func NewLedgerController(db *gorm.DB, s *svc.LedgerService, log *zap.Logger) *LedgerController {
	return &LedgerController{DB: db, Svc: s, Validator: validator.New(), Log: log.Named("ledger.http")}
}

// studentFor resolves :studentId and checks the caller may see it.
func (h *LedgerController) studentFor(c *fiber.Ctx) (*helperAuth.Identity, uuid.UUID, error) {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return nil, uuid.Nil, err
	}
	studentID, err := uuid.Parse(strings.TrimSpace(c.Params("studentId")))
	if err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid studentId")
	}
	st, err := feesService.LoadStudent(c.UserContext(), h.DB, id.SchoolID, studentID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := feesService.AuthorizeStudent(id, st); err != nil {
		return nil, uuid.Nil, err
	}
	return id, studentID, nil
}

// GET /finance/students/:studentId/account
func (h *LedgerController) GetAccount(c *fiber.Ctx) error {
	id, studentID, err := h.studentFor(c)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	acct, err := h.Svc.GetAccountByStudent(c.UserContext(), id.SchoolID, studentID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonOK(c, "ok", acct)
}

// GET /finance/students/:studentId/transactions?page=&per_page=
func (h *LedgerController) ListTransactions(c *fiber.Ctx) error {
	id, studentID, err := h.studentFor(c)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	acct, err := h.Svc.GetAccountByStudent(c.UserContext(), id.SchoolID, studentID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	p := helper.ResolvePaging(c, 20, 200)
	rows, total, err := h.Svc.ListTransactions(c.UserContext(), id.SchoolID, acct.StudentAccountID, p.Limit, p.Offset)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, len(rows)))
}

// GET /finance/students/:studentId/account/verify (staff)
func (h *LedgerController) VerifyAccount(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	studentID, err := uuid.Parse(strings.TrimSpace(c.Params("studentId")))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid studentId")
	}
	v, err := h.Svc.VerifyAccount(c.UserContext(), id.SchoolID, studentID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	if !v.Valid {
		h.Log.Error("ledger verification failed",
			zap.String("account_id", v.AccountID.String()),
			zap.Strings("problems", v.Problems),
		)
	}
	return helper.JsonOK(c, "ok", v)
}

// POST /finance/transactions/:id/reverse
func (h *LedgerController) Reverse(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	txnID, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid id")
	}
	var req dto.ReverseTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}

	rev, err := h.Svc.Reverse(c.UserContext(), svc.ReverseInput{
		SchoolID:      id.SchoolID,
		TransactionID: txnID,
		Reason:        req.Reason,
		ProcessedBy:   id.UserID,
	})
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonCreated(c, "transaction reversed", rev)
}
