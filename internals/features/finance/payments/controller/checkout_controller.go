package controller

import (
	"github.com/gofiber/fiber/v2"

	dto "schoolfinance_backend/internals/features/finance/payments/dto"
	svc "schoolfinance_backend/internals/features/finance/payments/service"
	helper "schoolfinance_backend/internals/helpers"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// POST /payments/initiate
func (h *PaymentController) Initiate(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var req dto.InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}

	res, err := h.Svc.Initiate(c.UserContext(), svc.InitiateInput{
		SchoolID:  id.SchoolID,
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Gateway:   req.Gateway,
		ReturnURL: req.ReturnURL,
		Payer:     id,
	})
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonCreated(c, "checkout created", res)
}

// GET /payments/status/:paymentId?refresh=true
func (h *PaymentController) Status(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	paymentID, err := parseUUIDParam(c, "paymentId")
	if err != nil {
		return err
	}

	view, err := h.Svc.PaymentStatus(c.UserContext(), id, paymentID, c.QueryBool("refresh", false))
	if err != nil {
		return helper.JsonServiceError(c, err)
	}

	out := dto.PaymentStatusResponse{
		Payment: dto.FromModel(&view.Payment),
		Gateway: dto.FromGatewayModel(view.Gateway),
	}
	out.Student.StudentID = view.Student.StudentID
	out.Student.StudentName = view.Student.StudentName
	out.Student.Balance = view.Student.Balance
	return helper.JsonOK(c, "ok", out)
}

// POST /payments/:paymentId/cancel
func (h *PaymentController) Cancel(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	paymentID, err := parseUUIDParam(c, "paymentId")
	if err != nil {
		return err
	}

	res, err := h.Svc.Cancel(c.UserContext(), id, paymentID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonUpdated(c, "payment cancelled", fiber.Map{
		"payment": dto.FromModel(&res.Payment),
		"gateway": dto.FromGatewayModel(&res.GatewayTransaction),
	})
}
