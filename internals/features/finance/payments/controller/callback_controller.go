package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/finerr"
	dto "schoolfinance_backend/internals/features/finance/payments/dto"
	svc "schoolfinance_backend/internals/features/finance/payments/service"
	helper "schoolfinance_backend/internals/helpers"
)

/* =======================================================================
   Provider callbacks (no JWT)
======================================================================= */

var signatureHeaders = []string{
	"X-Signature",
	"X-Callback-Signature",
	"X-Callback-Token",
	"Stripe-Signature",
}

// headers kept with the event log
var loggedHeaders = append([]string{
	fiber.HeaderContentType,
	fiber.HeaderUserAgent,
	fiber.HeaderXRequestID,
	fiber.HeaderXForwardedFor,
}, signatureHeaders...)

func ackFrom(res *svc.ReconcileResult) dto.CallbackAck {
	status := "ignored"
	if res.Changed {
		status = "processed"
	}
	return dto.CallbackAck{
		Status:         status,
		GatewayStatus:  string(res.GatewayTransaction.GatewayTxnStatus),
		PreviousStatus: string(res.PreviousStatus),
		Changed:        res.Changed,
	}
}

// POST /payments/callback/:gateway
//
// Non-2xx only when nothing was applied, so the provider retries. Duplicates
// and late events are acknowledged with 200.
func (h *PaymentController) Callback(c *fiber.Ctx) error {
	name := strings.ToLower(strings.TrimSpace(c.Params("gateway")))

	signature := ""
	for _, k := range signatureHeaders {
		if v := strings.TrimSpace(c.Get(k)); v != "" {
			signature = v
			break
		}
	}
	headers := make(map[string]string, len(loggedHeaders))
	for _, k := range loggedHeaders {
		if v := c.Get(k); v != "" {
			headers[k] = v
		}
	}
	// fasthttp reuses the body buffer after the handler returns
	raw := append([]byte(nil), c.Body()...)

	res, err := h.Svc.HandleCallback(c.UserContext(), name, raw, signature, headers)
	if err != nil {
		lvl := h.Log.Warn
		if finerr.Status(err) >= fiber.StatusInternalServerError {
			lvl = h.Log.Error
		}
		lvl("callback not applied",
			zap.String("gateway", name),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.Error(err),
		)
		return helper.JsonServiceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(ackFrom(res))
}

// GET /payments/callback/:gateway?session_id= (or order_id=)
//
// The payer's browser lands here after checkout. Query parameters are never
// trusted; the provider is asked for the state instead.
func (h *PaymentController) CallbackReturn(c *fiber.Ctx) error {
	name := strings.ToLower(strings.TrimSpace(c.Params("gateway")))
	ref := strings.TrimSpace(c.Query("session_id"))
	if ref == "" {
		ref = strings.TrimSpace(c.Query("order_id"))
	}
	if ref == "" {
		return helper.JsonError(c, fiber.StatusBadRequest, "session_id or order_id is required")
	}

	res, err := h.Svc.Poll(c.UserContext(), name, ref)
	if err != nil {
		return helper.JsonServiceError(c, err)
	}
	return helper.JsonOK(c, "ok", ackFrom(res))
}
