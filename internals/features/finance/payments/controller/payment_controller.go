// file: internals/features/finance/payments/controller/payment_controller.go
package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dto "schoolfinance_backend/internals/features/finance/payments/dto"
	model "schoolfinance_backend/internals/features/finance/payments/model"
	svc "schoolfinance_backend/internals/features/finance/payments/service"
	helper "schoolfinance_backend/internals/helpers"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

/* =======================================================================
   Controller
======================================================================= */

type PaymentController struct {
	Svc       *svc.PaymentService
	Validator *validator.Validate
	Log       *zap.Logger
}

func NewPaymentController(s *svc.PaymentService, log *zap.Logger) *PaymentController {
	return &PaymentController{
		Svc:       s,
		Validator: validator.New(),
		Log:       log.Named("payments.http"),
	}
}

// parseUUIDParam fails with a *fiber.Error the app error handler renders.
func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params(name)))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

/* =======================================================================
   Staff handlers
======================================================================= */

// POST /finance/payments
func (h *PaymentController) RecordPayment(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var req dto.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}

	res, err := h.Svc.RecordPayment(c.UserContext(), svc.RecordInput{
		SchoolID:       id.SchoolID,
		StudentID:      req.StudentID,
		Amount:         req.Amount,
		Method:         model.PaymentMethod(req.Method),
		BankReference:  req.BankReference,
		Notes:          req.Notes,
		ParentID:       req.ParentID,
		RecordedBy:     id.UserID,
		IdempotencyKey: strings.TrimSpace(c.Get("Idempotency-Key")),
	})
	if err != nil {
		return helper.JsonServiceError(c, err)
	}

	body := fiber.Map{
		"payment":     dto.FromModel(&res.Payment),
		"transaction": res.Transaction,
		"replayed":    res.Replayed,
	}
	if res.Replayed {
		return helper.JsonOK(c, "payment already recorded", body)
	}
	return helper.JsonCreated(c, "payment recorded", body)
}

// GET /finance/payments?student_id=&status=&method=&page=&per_page=
func (h *PaymentController) ListPayments(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var f svc.ListPaymentsFilter
	if s := strings.TrimSpace(c.Query("student_id")); s != "" {
		sid, err := uuid.Parse(s)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid student_id")
		}
		f.StudentID = &sid
	}
	if s := strings.ToUpper(strings.TrimSpace(c.Query("status"))); s != "" {
		st := model.PaymentStatus(s)
		f.Status = &st
	}
	if s := strings.ToUpper(strings.TrimSpace(c.Query("method"))); s != "" {
		m := model.PaymentMethod(s)
		f.Method = &m
	}

	p := helper.ResolvePaging(c, 20, 100)
	rows, total, err := h.Svc.ListPayments(c.UserContext(), id.SchoolID, f, p.Limit, p.Offset)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonList(c, "ok", dto.FromModels(rows), helper.BuildPagination(total, p, len(rows)))
}

// GET /finance/gateway-events?gateway=&gateway_ref=&status=
func (h *PaymentController) ListGatewayEvents(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	p := helper.ResolvePaging(c, 20, 100)
	rows, total, err := h.Svc.ListEvents(c.UserContext(), id.SchoolID, svc.ListEventsFilter{
		Gateway:    c.Query("gateway"),
		GatewayRef: strings.TrimSpace(c.Query("gateway_ref")),
		Status:     c.Query("status"),
	}, p.Limit, p.Offset)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, len(rows)))
}
