package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	feesModel "schoolfinance_backend/internals/features/finance/fees/model"
	feesService "schoolfinance_backend/internals/features/finance/fees/service"
	"schoolfinance_backend/internals/features/finance/finerr"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
	"schoolfinance_backend/internals/features/finance/payments/model"
)

func TestNextReceiptNumber(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	got := make([]string, 0, 3)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < 3; i++ {
			n, err := NextReceiptNumber(ctx, tx, 2025)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		return nil
	}))
	assert.Equal(t, []string{"RCP202500001", "RCP202500002", "RCP202500003"}, got)

	var other string
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		other, err = NextReceiptNumber(ctx, tx, 2026)
		return err
	}))
	assert.Equal(t, "RCP202600001", other, "each year has its own counter")
}

func TestNextReceiptNumber_SeededFromIssuedReceipts(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		require.NoError(t, f.db.Create(&model.PaymentModel{
			PaymentSchoolID:      f.schoolID,
			PaymentStudentID:     uuid.New(),
			PaymentAccountID:     uuid.New(),
			PaymentReceiptNumber: fmt.Sprintf("RCP2024%05d", i),
			PaymentAmount:        dec("1"),
			PaymentCurrency:      "IDR",
			PaymentMethod:        model.PaymentMethodCash,
			PaymentStatus:        model.PaymentStatusVerified,
			PaymentRecordedBy:    uuid.New(),
		}).Error)
	}

	var n string
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = NextReceiptNumber(ctx, tx, 2024)
		return err
	}))
	assert.Equal(t, "RCP202400003", n)
}

func TestRecordPayment_ConcurrentReceiptsAreUnique(t *testing.T) {
	f := newPaymentFixture(t)
	st := f.student(t, nil)
	f.charge(t, st.StudentID, "100000")

	const n = 15
	var wg sync.WaitGroup
	receipts := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.RecordPayment(context.Background(), RecordInput{
				SchoolID:   f.schoolID,
				StudentID:  st.StudentID,
				Amount:     dec("100"),
				Method:     model.PaymentMethodCash,
				RecordedBy: f.staff.UserID,
			})
			errs[i] = err
			if err == nil {
				receipts[i] = res.Payment.PaymentReceiptNumber
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[receipts[i]], "duplicate receipt %s", receipts[i])
		seen[receipts[i]] = true
	}
	assert.True(t, f.balance(t, st.StudentID).Equal(dec("98500")))
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newPaymentFixture(t)
	st := f.student(t, nil)
	ctx := context.Background()
	base := RecordInput{SchoolID: f.schoolID, StudentID: st.StudentID, Amount: dec("10"), Method: model.PaymentMethodCash}

	in := base
	in.Amount = dec("0")
	_, err := f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrValidation)

	in = base
	in.Amount = dec("10.001")
	_, err = f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrValidation)

	in = base
	in.Method = model.PaymentMethodBankTransfer
	_, err = f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrValidation, "bank transfer needs a reference")

	in = base
	in.Method = model.PaymentMethodGateway
	_, err = f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrValidation, "gateway payments are not recorded by hand")

	in = base
	in.StudentID = uuid.New()
	_, err = f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrNotFound)

	assert.Zero(t, f.countLedger(t, ledgerModel.TransactionTypePayment))
}

func TestRecordPayment_IdempotencyKeyReplays(t *testing.T) {
	f := newPaymentFixture(t)
	st := f.student(t, nil)
	f.charge(t, st.StudentID, "500")
	ctx := context.Background()
	in := RecordInput{
		SchoolID:       f.schoolID,
		StudentID:      st.StudentID,
		Amount:         dec("200"),
		Method:         model.PaymentMethodBankTransfer,
		BankReference:  "BCA-7781",
		RecordedBy:     f.staff.UserID,
		IdempotencyKey: "desk-42",
	}

	first, err := f.svc.RecordPayment(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.svc.RecordPayment(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Payment.PaymentID, again.Payment.PaymentID)
	assert.Equal(t, first.Transaction.LedgerTxnID, again.Transaction.LedgerTxnID)
	assert.EqualValues(t, 1, f.countLedger(t, ledgerModel.TransactionTypePayment))
	assert.True(t, f.balance(t, st.StudentID).Equal(dec("300")))

	in.Amount = dec("250")
	_, err = f.svc.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, finerr.ErrConflict)
}

func TestRecordPayment_SendsReceipt(t *testing.T) {
	f := newPaymentFixture(t)
	st := f.student(t, nil)

	res, err := f.svc.RecordPayment(context.Background(), RecordInput{
		SchoolID:   f.schoolID,
		StudentID:  st.StudentID,
		Amount:     dec("75"),
		Method:     model.PaymentMethodMobileMoney,
		RecordedBy: f.staff.UserID,
	})
	require.NoError(t, err)
	f.waitNotified(t)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.got, 1)
	assert.Equal(t, "parent@example.com", f.notifier.got[0].To)
	assert.Equal(t, res.Payment.PaymentReceiptNumber, f.notifier.got[0].ReceiptNumber)
	assert.Equal(t, "MOBILE_MONEY", f.notifier.got[0].Method)
}

// Charge 200, pay 150 in cash, reverse the payment.
func TestScenario_ChargePayReverse(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	st := f.student(t, nil)

	fs := feesModel.FeeStructureModel{
		FeeStructureSchoolID:    f.schoolID,
		FeeStructureName:        "Term fee",
		FeeStructureFeeType:     "TUITION",
		FeeStructureStudentType: feesModel.StudentTypeBoth,
		FeeStructureAmount:      dec("200"),
		FeeStructureCreatedBy:   f.staff.UserID,
	}
	require.NoError(t, f.db.Create(&fs).Error)
	fees := feesService.NewFeeApplicationService(f.db, f.ledger, zap.NewNop(), 2)
	rep, err := fees.ApplyFeeStructure(ctx, f.schoolID, fs.FeeStructureID, feesService.Target{}, f.staff.UserID)
	require.NoError(t, err)
	require.Len(t, rep.Succeeded, 1)
	assert.True(t, f.balance(t, st.StudentID).Equal(dec("200")))

	paid, err := f.svc.RecordPayment(ctx, RecordInput{
		SchoolID:   f.schoolID,
		StudentID:  st.StudentID,
		Amount:     dec("150"),
		Method:     model.PaymentMethodCash,
		RecordedBy: f.staff.UserID,
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, st.StudentID).Equal(dec("50")))
	assert.True(t, strings.HasPrefix(paid.Payment.PaymentReceiptNumber, ReceiptPrefix(time.Now().UTC().Year())))
	assert.Len(t, paid.Payment.PaymentReceiptNumber, 12)
	assert.Equal(t, model.PaymentStatusVerified, paid.Payment.PaymentStatus)

	rev, err := f.ledger.Reverse(ctx, ledgerService.ReverseInput{
		SchoolID:      f.schoolID,
		TransactionID: paid.Transaction.LedgerTxnID,
		Reason:        "recorded against the wrong student",
		ProcessedBy:   f.staff.UserID,
	})
	require.NoError(t, err)
	assert.Equal(t, "REV-"+paid.Transaction.LedgerTxnID.String(), rev.LedgerTxnReference)
	assert.True(t, f.balance(t, st.StudentID).Equal(dec("200")))

	p := f.payment(t, paid.Payment.PaymentID)
	assert.Equal(t, model.PaymentStatusRejected, p.PaymentStatus)
	require.NotNil(t, p.PaymentRejectionReason)
	assert.Contains(t, *p.PaymentRejectionReason, "wrong student")

	v, err := f.ledger.VerifyAccount(ctx, f.schoolID, st.StudentID)
	require.NoError(t, err)
	assert.True(t, v.Valid, v.Problems)
}

func TestListPayments(t *testing.T) {
	f := newPaymentFixture(t)
	a := f.student(t, nil)
	b := f.student(t, nil)
	ctx := context.Background()
	for _, sid := range []uuid.UUID{a.StudentID, a.StudentID, b.StudentID} {
		_, err := f.svc.RecordPayment(ctx, RecordInput{
			SchoolID: f.schoolID, StudentID: sid, Amount: dec("5"), Method: model.PaymentMethodCash, RecordedBy: f.staff.UserID,
		})
		require.NoError(t, err)
	}

	rows, total, err := f.svc.ListPayments(ctx, f.schoolID, ListPaymentsFilter{StudentID: &a.StudentID}, 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 1)

	rows, total, err = f.svc.ListPayments(ctx, uuid.New(), ListPaymentsFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
}
