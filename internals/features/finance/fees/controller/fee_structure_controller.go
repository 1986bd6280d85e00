// file: internals/features/finance/fees/controller/fee_structure_controller.go
package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	dto "schoolfinance_backend/internals/features/finance/fees/dto"
	svc "schoolfinance_backend/internals/features/finance/fees/service"
	helper "schoolfinance_backend/internals/helpers"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

type FeeController struct {
	Structures *svc.FeeStructureService
	Apply      *svc.FeeApplicationService
	Validator  *validator.Validate
	Log        *zap.Logger
}

func NewFeeController(structures *svc.FeeStructureService, apply *svc.FeeApplicationService, log *zap.Logger) *FeeController {
	return &FeeController{
		Structures: structures,
		Apply:      apply,
		Validator:  validator.New(),
		Log:        log.Named("fees.http"),
	}
}

func idParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

/* ===============================
   Fee structures
=================================*/

// POST /finance/fee-structures
func (h *FeeController) Create(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateFeeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}
	m, err := h.Structures.Create(c.UserContext(), id.SchoolID, id.UserID, req)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonCreated(c, "fee structure created", m)
}

// GET /finance/fee-structures
func (h *FeeController) List(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	p := helper.ResolvePaging(c, 20, 100)
	rows, total, err := h.Structures.List(c.UserContext(), id.SchoolID, p.Limit, p.Offset)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, len(rows)))
}

// GET /finance/fee-structures/:id
func (h *FeeController) Get(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	fsID, err := idParam(c)
	if err != nil {
		return err
	}
	m, err := h.Structures.Get(c.UserContext(), id.SchoolID, fsID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonOK(c, "ok", m)
}

// PATCH /finance/fee-structures/:id
func (h *FeeController) Update(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	fsID, err := idParam(c)
	if err != nil {
		return err
	}
	var req dto.UpdateFeeStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}
	m, err := h.Structures.Update(c.UserContext(), id.SchoolID, fsID, req)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonUpdated(c, "fee structure updated", m)
}

// POST /finance/fee-structures/:id/apply
//
// Partial failure is reported in the body with 200.
func (h *FeeController) ApplyStructure(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	fsID, err := idParam(c)
	if err != nil {
		return err
	}
	var req dto.ApplyFeeStructureRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
		}
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}

	rep, err := h.Apply.ApplyFeeStructure(c.UserContext(), id.SchoolID, fsID, svc.Target{
		StudentIDs:    req.StudentIDs,
		BillingPeriod: req.BillingPeriod,
	}, id.UserID)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	msg := "fee structure applied"
	if len(rep.Failed) > 0 {
		msg = "fee structure applied with failures"
	}
	return helper.JsonOK(c, msg, rep)
}

/* ===============================
   Bursaries
=================================*/

// POST /finance/bursaries
func (h *FeeController) CreateBursary(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateBursaryRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json: "+err.Error())
	}
	if err := h.Validator.Struct(&req); err != nil {
		return helper.JsonServiceError(c, err)
	}
	m, err := h.Structures.CreateBursary(c.UserContext(), id.SchoolID, req)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonCreated(c, "bursary created", m)
}

// GET /finance/bursaries?student_id=
func (h *FeeController) ListBursaries(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	var studentID *uuid.UUID
	if s := strings.TrimSpace(c.Query("student_id")); s != "" {
		sid, err := uuid.Parse(s)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid student_id")
		}
		studentID = &sid
	}
	p := helper.ResolvePaging(c, 20, 100)
	rows, total, err := h.Structures.ListBursaries(c.UserContext(), id.SchoolID, studentID, p.Limit, p.Offset)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, len(rows)))
}

// POST /finance/bursaries/:id/deactivate
func (h *FeeController) DeactivateBursary(c *fiber.Ctx) error {
	id, err := helperAuth.GetIdentity(c)
	if err != nil {
		return err
	}
	bID, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.Structures.DeactivateBursary(c.UserContext(), id.SchoolID, bID); err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonUpdated(c, "bursary deactivated", fiber.Map{"bursary_id": bID})
}
