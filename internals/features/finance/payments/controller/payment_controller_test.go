package controller_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	database "schoolfinance_backend/internals/databases"
	feesModel "schoolfinance_backend/internals/features/finance/fees/model"
	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/gateways"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/notify"
	paymentController "schoolfinance_backend/internals/features/finance/payments/controller"
	route "schoolfinance_backend/internals/features/finance/payments/route"
	svc "schoolfinance_backend/internals/features/finance/payments/service"
	helper "schoolfinance_backend/internals/helpers"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// stubGateway accepts callbacks signed "ok" with body "<ref>|<STATUS>|<amount>".
type stubGateway struct{}

func (stubGateway) Name() string { return "stubpay" }

func (stubGateway) InitiatePayment(_ context.Context, req gateways.InitiateRequest) (*gateways.InitiateResult, error) {
	return &gateways.InitiateResult{
		GatewayRef: req.Reference,
		PaymentURL: "https://pay.example/" + req.Reference,
		Status:     gateways.StatusPending,
	}, nil
}

func (stubGateway) VerifyCallback(_ context.Context, raw []byte, signature string) (*gateways.CallbackData, error) {
	if signature != "ok" {
		return nil, finerr.New(finerr.ErrUnauthorized, "invalid signature")
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return nil, finerr.Validation("bad payload")
	}
	return &gateways.CallbackData{
		GatewayRef: parts[0],
		Status:     gateways.Status(parts[1]),
		Amount:     decimal.RequireFromString(parts[2]),
		Currency:   "IDR",
		RawStatus:  strings.ToLower(parts[1]),
	}, nil
}

func (stubGateway) QueryPaymentStatus(_ context.Context, ref string) (*gateways.CallbackData, error) {
	return &gateways.CallbackData{GatewayRef: ref, Status: gateways.StatusPending}, nil
}

func (stubGateway) CancelPayment(context.Context, string) (bool, error) { return true, nil }

type httpFixture struct {
	app      *fiber.App
	db       *gorm.DB
	ledger   *ledgerService.LedgerService
	svc      *svc.PaymentService
	schoolID uuid.UUID
	staff    *helperAuth.Identity
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	db, err := database.OpenMigratedSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	ledger := ledgerService.NewLedgerService(db, zap.NewNop())
	s := svc.NewPaymentService(db, ledger, gateways.NewRegistry(stubGateway{}),
		notify.NewDispatcher(notify.NewLogNotifier(zap.NewNop()), zap.NewNop()),
		zap.NewNop(),
		svc.Options{Currency: "IDR", SessionTTL: time.Hour, PublicBaseURL: "http://school.test"},
	)

	schoolID := uuid.New()
	staff := &helperAuth.Identity{UserID: uuid.New(), SchoolID: schoolID, Role: helperAuth.RoleBursar}

	app := fiber.New(fiber.Config{
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return helper.JsonServiceError(c, err)
		},
	})
	h := paymentController.NewPaymentController(s, zap.NewNop())
	api := app.Group("/api")
	route.PaymentCallbackRoutes(api, h)
	private := api.Group("", func(c *fiber.Ctx) error {
		helperAuth.SetIdentity(c, staff)
		return c.Next()
	})
	route.PaymentUserRoutes(private, h)
	route.PaymentAdminRoutes(private.Group("/finance"), h)

	return &httpFixture{app: app, db: db, ledger: ledger, svc: s, schoolID: schoolID, staff: staff}
}

func (f *httpFixture) student(t *testing.T, owed string) uuid.UUID {
	t.Helper()
	st := feesModel.StudentModel{
		StudentSchoolID: f.schoolID,
		StudentName:     "Ana",
		StudentType:     feesModel.StudentTypeDayScholar,
		StudentIsActive: true,
	}
	require.NoError(t, f.db.Create(&st).Error)

	acct, err := f.ledger.EnsureAccount(context.Background(), f.schoolID, st.StudentID)
	require.NoError(t, err)
	_, err = f.ledger.ApplyTransaction(context.Background(), ledgerService.ApplyInput{
		SchoolID:  f.schoolID,
		AccountID: acct.StudentAccountID,
		Type:      ledgerModel.TransactionTypeCharge,
		Amount:    decimal.RequireFromString(owed),
	})
	require.NoError(t, err)
	return st.StudentID
}

func (f *httpFixture) balance(t *testing.T, studentID uuid.UUID) decimal.Decimal {
	t.Helper()
	acct, err := f.ledger.GetAccountByStudent(context.Background(), f.schoolID, studentID)
	require.NoError(t, err)
	return acct.StudentAccountBalance
}

func (f *httpFixture) do(t *testing.T, method, path string, body []byte, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (f *httpFixture) openSession(t *testing.T, studentID uuid.UUID, amount string) string {
	t.Helper()
	res, err := f.svc.Initiate(context.Background(), svc.InitiateInput{
		SchoolID:  f.schoolID,
		StudentID: studentID,
		Amount:    decimal.RequireFromString(amount),
		Gateway:   "stubpay",
		Payer:     f.staff,
	})
	require.NoError(t, err)
	return res.GatewayTransactionID.String()
}

func TestCallback_ProcessedThenIgnored(t *testing.T) {
	f := newHTTPFixture(t)
	st := f.student(t, "1000")
	ref := f.openSession(t, st, "250")
	body := []byte(ref + "|COMPLETED|250")
	sig := map[string]string{"X-Signature": "ok"}

	code, out := f.do(t, http.MethodPost, "/api/payments/callback/stubpay", body, sig)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "processed", out["status"])
	assert.Equal(t, "COMPLETED", out["gateway_status"])

	code, out = f.do(t, http.MethodPost, "/api/payments/callback/stubpay", body, sig)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ignored", out["status"])

	assert.True(t, f.balance(t, st).Equal(decimal.RequireFromString("750")))
}

func TestCallback_SignatureFromAnySupportedHeader(t *testing.T) {
	f := newHTTPFixture(t)
	st := f.student(t, "100")
	ref := f.openSession(t, st, "100")

	code, out := f.do(t, http.MethodPost, "/api/payments/callback/stubpay",
		[]byte(ref+"|COMPLETED|100"), map[string]string{"X-Callback-Token": "ok"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["changed"])
}

func TestCallback_Rejections(t *testing.T) {
	f := newHTTPFixture(t)
	st := f.student(t, "100")
	ref := f.openSession(t, st, "100")

	cases := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		code    int
		errCode string
	}{
		{"bad signature", "/api/payments/callback/stubpay", ref + "|COMPLETED|100", map[string]string{"X-Signature": "forged"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"no signature", "/api/payments/callback/stubpay", ref + "|COMPLETED|100", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown gateway", "/api/payments/callback/nopay", ref + "|COMPLETED|100", map[string]string{"X-Signature": "ok"}, http.StatusNotFound, "NOT_FOUND"},
		{"unknown session", "/api/payments/callback/stubpay", uuid.NewString() + "|COMPLETED|100", map[string]string{"X-Signature": "ok"}, http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", "/api/payments/callback/stubpay", "garbage", map[string]string{"X-Signature": "ok"}, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := f.do(t, http.MethodPost, tc.path, []byte(tc.body), tc.headers)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.errCode, out["error_code"])
		})
	}

	assert.True(t, f.balance(t, st).Equal(decimal.RequireFromString("100")))
}

func TestCallbackReturn(t *testing.T) {
	f := newHTTPFixture(t)
	st := f.student(t, "100")
	ref := f.openSession(t, st, "100")

	code, _ := f.do(t, http.MethodGet, "/api/payments/callback/stubpay", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out := f.do(t, http.MethodGet, "/api/payments/callback/stubpay?order_id="+ref, nil, nil)
	require.Equal(t, http.StatusOK, code)
	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ignored", data["status"])
	assert.Equal(t, "PENDING", data["gateway_status"])
}

func TestRecordPayment_IdempotencyKeyReplays(t *testing.T) {
	f := newHTTPFixture(t)
	st := f.student(t, "500")
	body, err := sonic.Marshal(map[string]any{
		"student_id": st.String(),
		"amount":     "200",
		"method":     "CASH",
	})
	require.NoError(t, err)
	headers := map[string]string{
		fiber.HeaderContentType: fiber.MIMEApplicationJSON,
		"Idempotency-Key":       "desk-42",
	}

	code, out := f.do(t, http.MethodPost, "/api/finance/payments", body, headers)
	require.Equal(t, http.StatusCreated, code, out)

	code, out = f.do(t, http.MethodPost, "/api/finance/payments", body, headers)
	require.Equal(t, http.StatusOK, code, out)
	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["replayed"])

	assert.True(t, f.balance(t, st).Equal(decimal.RequireFromString("300")))
}

func TestRecordPayment_ValidationFails(t *testing.T) {
	f := newHTTPFixture(t)
	body := []byte(`{"amount":"10","method":"CHEQUE"}`)

	code, out := f.do(t, http.MethodPost, "/api/finance/payments", body,
		map[string]string{fiber.HeaderContentType: fiber.MIMEApplicationJSON})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "VALIDATION_ERROR", out["error_code"])
}

func TestStatus_InvalidID(t *testing.T) {
	f := newHTTPFixture(t)

	code, out := f.do(t, http.MethodGet, "/api/payments/status/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid paymentId", out["message"])
}
