package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"schoolfinance_backend/internals/features/finance/payments/model"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

/* =========================================================
   Fakes
========================================================= */

type fakeGateway struct {
	mu sync.Mutex
	db *gorm.DB

	initErr      error
	sawSession   bool
	queryResult  map[string]*gateways.CallbackData
	queryErr     error
	cancelResult bool
	cancelErr    error
}

type fakeCallback struct {
	Ref      string `json:"ref"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (f *fakeGateway) Name() string { return "fakepay" }

func (f *fakeGateway) InitiatePayment(_ context.Context, req gateways.InitiateRequest) (*gateways.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	f.db.Model(&model.GatewayTransactionModel{}).Where("gateway_txn_ref = ?", req.Reference).Count(&n)
	f.sawSession = n == 1
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &gateways.InitiateResult{
		GatewayRef: req.Reference,
		PaymentURL: "https://pay.example/" + req.Reference,
		Status:     gateways.StatusPending,
	}, nil
}

func (f *fakeGateway) VerifyCallback(_ context.Context, raw []byte, signature string) (*gateways.CallbackData, error) {
	if signature != "valid" {
		return nil, finerr.New(finerr.ErrUnauthorized, "invalid signature")
	}
	var cb fakeCallback
	if err := sonic.Unmarshal(raw, &cb); err != nil {
		return nil, finerr.Validation("bad payload")
	}
	return &gateways.CallbackData{
		GatewayRef: cb.Ref,
		Status:     gateways.Status(cb.Status),
		Amount:     decimal.RequireFromString(cb.Amount),
		Currency:   cb.Currency,
		RawStatus:  strings.ToLower(cb.Status),
	}, nil
}

func (f *fakeGateway) QueryPaymentStatus(_ context.Context, ref string) (*gateways.CallbackData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if d, ok := f.queryResult[ref]; ok {
		cp := *d
		return &cp, nil
	}
	return &gateways.CallbackData{GatewayRef: ref, Status: gateways.StatusPending}, nil
}

func (f *fakeGateway) CancelPayment(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelResult, f.cancelErr
}

type recordingNotifier struct {
	mu   sync.Mutex
	got  []notify.Receipt
	sent chan struct{}
}

func (r *recordingNotifier) NotifyReceipt(_ context.Context, rc notify.Receipt) error {
	r.mu.Lock()
	r.got = append(r.got, rc)
	r.mu.Unlock()
	r.sent <- struct{}{}
	return nil
}

/* =========================================================
   Fixture
========================================================= */

type paymentFixture struct {
	db       *gorm.DB
	ledger   *ledgerService.LedgerService
	svc      *PaymentService
	gw       *fakeGateway
	notifier *recordingNotifier
	schoolID uuid.UUID
	staff    *helperAuth.Identity
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db, err := database.OpenMigratedSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	ledger := ledgerService.NewLedgerService(db, zap.NewNop())
	gw := &fakeGateway{db: db, cancelResult: true}
	rec := &recordingNotifier{sent: make(chan struct{}, 64)}
	registry := gateways.NewRegistry(gw, gateways.NewUnimplemented(gateways.NameStripe))

	schoolID := uuid.New()
	return &paymentFixture{
		db:     db,
		ledger: ledger,
		svc: NewPaymentService(db, ledger, registry, notify.NewDispatcher(rec, zap.NewNop()), zap.NewNop(), Options{
			Currency:      "IDR",
			SessionTTL:    time.Hour,
			PublicBaseURL: "http://school.test",
		}),
		gw:       gw,
		notifier: rec,
		schoolID: schoolID,
		staff:    &helperAuth.Identity{UserID: uuid.New(), Role: helperAuth.RoleBursar, SchoolID: schoolID},
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *paymentFixture) student(t *testing.T, parent *uuid.UUID) feesModel.StudentModel {
	t.Helper()
	email := "parent@example.com"
	st := feesModel.StudentModel{
		StudentSchoolID:     f.schoolID,
		StudentName:         "Sam",
		StudentType:         feesModel.StudentTypeDayScholar,
		StudentIsActive:     true,
		StudentParentUserID: parent,
		StudentParentEmail:  &email,
	}
	require.NoError(t, f.db.Create(&st).Error)
	return st
}

func (f *paymentFixture) charge(t *testing.T, studentID uuid.UUID, amount string) {
	t.Helper()
	acct, err := f.ledger.EnsureAccount(context.Background(), f.schoolID, studentID)
	require.NoError(t, err)
	_, err = f.ledger.ApplyTransaction(context.Background(), ledgerService.ApplyInput{
		SchoolID:  f.schoolID,
		AccountID: acct.StudentAccountID,
		Type:      ledgerModel.TransactionTypeCharge,
		Amount:    dec(amount),
	})
	require.NoError(t, err)
}

func (f *paymentFixture) balance(t *testing.T, studentID uuid.UUID) decimal.Decimal {
	t.Helper()
	acct, err := f.ledger.GetAccountByStudent(context.Background(), f.schoolID, studentID)
	require.NoError(t, err)
	return acct.StudentAccountBalance
}

func (f *paymentFixture) countLedger(t *testing.T, typ ledgerModel.TransactionType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&ledgerModel.LedgerTransactionModel{}).Where("ledger_txn_type = ?", typ).Count(&n).Error)
	return n
}

func (f *paymentFixture) initiate(t *testing.T, studentID uuid.UUID, amount string) *InitiateResult {
	t.Helper()
	res, err := f.svc.Initiate(context.Background(), InitiateInput{
		SchoolID:  f.schoolID,
		StudentID: studentID,
		Amount:    dec(amount),
		Gateway:   "fakepay",
		Payer:     f.staff,
	})
	require.NoError(t, err)
	return res
}

func (f *paymentFixture) gatewayTxn(t *testing.T, id uuid.UUID) model.GatewayTransactionModel {
	t.Helper()
	var gt model.GatewayTransactionModel
	require.NoError(t, f.db.Where("gateway_txn_id = ?", id).Take(&gt).Error)
	return gt
}

func (f *paymentFixture) payment(t *testing.T, id uuid.UUID) model.PaymentModel {
	t.Helper()
	var p model.PaymentModel
	require.NoError(t, f.db.Where("payment_id = ?", id).Take(&p).Error)
	return p
}

func callback(ref, status, amount string) []byte {
	b, _ := sonic.Marshal(fakeCallback{Ref: ref, Status: status, Amount: amount, Currency: "IDR"})
	return b
}

func (f *paymentFixture) waitNotified(t *testing.T) {
	t.Helper()
	select {
	case <-f.notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("receipt notification not sent")
	}
}
