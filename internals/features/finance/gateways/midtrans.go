// file: internals/features/finance/gateways/midtrans.go
package gateways

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/finerr"
)

/* =========================================================
   Midtrans Client
========================================================= */

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	CancelTransaction(orderID string) (*coreapi.CancelResponse, *midtrans.Error)
}

type MidtransConfig struct {
	ServerKey  string
	Production bool
	Timeout    time.Duration
}

// Midtrans is the Snap hosted-checkout gateway. Snap creates the session,
// the Core API answers status and cancel.
type Midtrans struct {
	serverKey string
	timeout   time.Duration
	snap      snapAPI
	core      coreAPI
	log       *zap.Logger
	now       func() time.Time
}

func NewMidtrans(cfg MidtransConfig, log *zap.Logger) *Midtrans {
	m := &Midtrans{
		serverKey: strings.TrimSpace(cfg.ServerKey),
		timeout:   cfg.Timeout,
		log:       log.Named("midtrans"),
		now:       time.Now,
	}
	if m.serverKey == "" {
		return m
	}

	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	var sc snap.Client
	sc.New(m.serverKey, env)
	var cc coreapi.Client
	cc.New(m.serverKey, env)
	m.snap = &sc
	m.core = &cc
	return m
}

func (m *Midtrans) Name() string { return NameMidtrans }

func (m *Midtrans) configured() error {
	if m.serverKey == "" || m.snap == nil || m.core == nil {
		return finerr.New(finerr.ErrConfigurationMissing, "midtrans server key is not configured")
	}
	return nil
}

func (m *Midtrans) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := m.configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, finerr.Validation("order reference is required")
	}
	if !strings.EqualFold(req.Currency, "IDR") {
		return nil, finerr.Validation("midtrans only settles IDR, got %q", req.Currency)
	}
	gross, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	name := truncate(firstNonEmpty(req.Description, "School fees"), 50)
	sreq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: truncate(req.Customer.Name, 50),
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    truncate(req.Reference, 50),
				Price: gross,
				Qty:   1,
				Name:  name,
			},
		},
	}

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		start := m.now()
		minutes := int64(req.ExpiresIn.Round(time.Minute) / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		sreq.Expiry = &snap.ExpiryDetails{
			StartTime: start.Format("2006-01-02 15:04:05 -0700"),
			Unit:      "minute",
			Duration:  minutes,
		}
		at := start.Add(time.Duration(minutes) * time.Minute).UTC()
		expiresAt = &at
	}

	resp, err := call(ctx, m.timeout, func() (*snap.Response, error) {
		r, merr := m.snap.CreateTransaction(sreq)
		if merr != nil {
			return nil, m.wrap(merr, "create snap transaction")
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, finerr.New(finerr.ErrGateway, "midtrans returned no redirect url")
	}

	return &InitiateResult{
		GatewayRef: req.Reference,
		PaymentURL: resp.RedirectURL,
		Token:      resp.Token,
		Status:     StatusPending,
		ExpiresAt:  expiresAt,
	}, nil
}

/* =========================================================
   Webhook
========================================================= */

type midtransNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	StatusMessage     string `json:"status_message"`
}

// VerifyCallback authenticates a notification: SHA512(order_id + status_code
// + gross_amount + server key). The signature travels in the payload; a
// header value, when given, must match too.
func (m *Midtrans) VerifyCallback(_ context.Context, raw []byte, signature string) (*CallbackData, error) {
	if err := m.configured(); err != nil {
		return nil, err
	}
	var n midtransNotification
	if err := sonic.Unmarshal(raw, &n); err != nil {
		return nil, finerr.Wrap(finerr.ErrValidation, err, "invalid notification payload")
	}
	if n.OrderID == "" {
		return nil, finerr.Validation("notification has no order_id")
	}

	want := m.Signature(n.OrderID, n.StatusCode, n.GrossAmount)
	given := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if h := strings.ToLower(strings.TrimSpace(signature)); h != "" {
		if given != "" && given != h {
			return nil, finerr.New(finerr.ErrUnauthorized, "invalid signature")
		}
		given = h
	}
	if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(want)) != 1 {
		return nil, finerr.New(finerr.ErrUnauthorized, "invalid signature")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return nil, finerr.Wrap(finerr.ErrValidation, err, "invalid gross_amount %q", n.GrossAmount)
	}
	status, reason := MapMidtransStatus(n.TransactionStatus, n.FraudStatus)
	if reason == "" && status == StatusFailed {
		reason = n.StatusMessage
	}
	return &CallbackData{
		GatewayRef:    n.OrderID,
		Status:        status,
		Amount:        amount,
		Currency:      firstNonEmpty(strings.ToUpper(n.Currency), "IDR"),
		ProviderTxnID: n.TransactionID,
		RawStatus:     n.TransactionStatus,
		FailureReason: reason,
	}, nil
}

// Signature is the hex SHA512 Midtrans attaches to notifications.
func (m *Midtrans) Signature(orderID, statusCode, grossAmount string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + m.serverKey))
	return hex.EncodeToString(h[:])
}

/* =========================================================
   Core API
========================================================= */

func (m *Midtrans) QueryPaymentStatus(ctx context.Context, ref string) (*CallbackData, error) {
	if err := m.configured(); err != nil {
		return nil, err
	}
	resp, err := call(ctx, m.timeout, func() (*coreapi.TransactionStatusResponse, error) {
		r, merr := m.core.CheckTransaction(ref)
		if merr != nil {
			return nil, m.wrap(merr, "check transaction")
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	status, reason := MapMidtransStatus(resp.TransactionStatus, resp.FraudStatus)
	// an unreadable amount leaves the session unconfirmed; a zero would fail it
	amount, perr := decimal.NewFromString(strings.TrimSpace(resp.GrossAmount))
	if perr != nil {
		m.log.Warn("midtrans status without usable gross_amount",
			zap.String("order_id", ref),
			zap.String("transaction_status", resp.TransactionStatus),
			zap.String("gross_amount", resp.GrossAmount),
		)
		return nil, finerr.Wrap(finerr.ErrGateway, perr, "midtrans returned an unreadable gross_amount %q", resp.GrossAmount)
	}
	return &CallbackData{
		GatewayRef:    firstNonEmpty(resp.OrderID, ref),
		Status:        status,
		Amount:        amount,
		Currency:      "IDR",
		ProviderTxnID: resp.TransactionID,
		RawStatus:     resp.TransactionStatus,
		FailureReason: reason,
	}, nil
}

// CancelPayment returns false when Midtrans refuses because the order is
// already past cancellation.
func (m *Midtrans) CancelPayment(ctx context.Context, ref string) (bool, error) {
	if err := m.configured(); err != nil {
		return false, err
	}
	resp, err := call(ctx, m.timeout, func() (*coreapi.CancelResponse, error) {
		r, merr := m.core.CancelTransaction(ref)
		if merr != nil {
			if merr.StatusCode == http.StatusPreconditionFailed {
				return nil, nil
			}
			return nil, m.wrap(merr, "cancel transaction")
		}
		return r, nil
	})
	if err != nil {
		return false, err
	}
	if resp == nil {
		return false, nil
	}
	return strings.EqualFold(resp.TransactionStatus, "cancel"), nil
}

func (m *Midtrans) wrap(e *midtrans.Error, op string) error {
	m.log.Warn("midtrans call failed",
		zap.String("op", op),
		zap.Int("status_code", e.StatusCode),
		zap.String("message", e.Message),
	)
	if e.StatusCode == http.StatusNotFound {
		return finerr.Wrap(finerr.ErrNotFound, e, "order not found at midtrans")
	}
	return finerr.Wrap(finerr.ErrGateway, e, "midtrans %s failed", op)
}

// MapMidtransStatus converts transaction_status (+ fraud_status for card
// captures) to a canonical status. Refund states have no place in the
// session state machine and map to "".
func MapMidtransStatus(transactionStatus, fraudStatus string) (Status, string) {
	ts := strings.ToLower(strings.TrimSpace(transactionStatus))
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch ts {
	case "capture":
		switch fraud {
		case "", "accept":
			return StatusCompleted, ""
		case "challenge":
			return StatusProcessing, ""
		}
		return StatusFailed, "fraud status " + fraud
	case "settlement":
		return StatusCompleted, ""
	case "pending":
		return StatusPending, ""
	case "deny":
		return StatusFailed, "payment denied"
	case "failure":
		return StatusFailed, "payment failed"
	case "cancel":
		return StatusCancelled, "cancelled"
	case "expire":
		return StatusExpired, "expired"
	}
	return "", ""
}

/* =========================================================
   Utils
========================================================= */

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(s string, def string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return def
}
