package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/ledger/model"
)

func TestReverse_Charge(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	acct := newAccount(t, svc, uuid.New())
	c := charge(t, svc, acct, "50")

	rev, err := svc.Reverse(ctx, ReverseInput{
		SchoolID:      acct.StudentAccountSchoolID,
		TransactionID: c.LedgerTxnID,
		Reason:        "charged in error",
		ProcessedBy:   uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeAdjustment, rev.LedgerTxnType)
	assert.Equal(t, model.DirectionCredit, rev.LedgerTxnDirection)
	assert.Equal(t, "REV-"+c.LedgerTxnID.String(), rev.LedgerTxnReference)
	assert.True(t, rev.LedgerTxnBalanceBefore.Equal(dec("50")))
	assert.True(t, rev.LedgerTxnBalanceAfter.IsZero())
	require.NotNil(t, rev.LedgerTxnReversesID)
	assert.Equal(t, c.LedgerTxnID, *rev.LedgerTxnReversesID)
}

func TestReverse_Payment(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	acct := newAccount(t, svc, uuid.New())
	charge(t, svc, acct, "30")
	p, err := svc.ApplyTransaction(ctx, ApplyInput{
		AccountID: acct.StudentAccountID,
		Type:      model.TransactionTypePayment,
		Amount:    dec("30"),
	})
	require.NoError(t, err)
	require.True(t, p.LedgerTxnBalanceAfter.IsZero())

	rev, err := svc.Reverse(ctx, ReverseInput{
		SchoolID:      acct.StudentAccountSchoolID,
		TransactionID: p.LedgerTxnID,
		Reason:        "cheque bounced",
	})
	require.NoError(t, err)
	assert.Equal(t, model.DirectionDebit, rev.LedgerTxnDirection)
	assert.True(t, rev.LedgerTxnBalanceAfter.Equal(dec("30")))
}

func TestReverse_Twice(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	acct := newAccount(t, svc, uuid.New())
	c := charge(t, svc, acct, "50")
	in := ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: c.LedgerTxnID, Reason: "dup"}

	_, err := svc.Reverse(ctx, in)
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, finerr.ErrConflict)
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	got, err := svc.GetAccountByStudent(ctx, acct.StudentAccountSchoolID, acct.StudentAccountStudentID)
	require.NoError(t, err)
	assert.True(t, got.StudentAccountBalance.IsZero())
}

func TestReverse_Rejections(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	acct := newAccount(t, svc, uuid.New())
	c := charge(t, svc, acct, "50")

	_, err := svc.Reverse(ctx, ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: c.LedgerTxnID})
	assert.ErrorIs(t, err, finerr.ErrValidation, "reason is required")

	_, err = svc.Reverse(ctx, ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: uuid.New(), Reason: "x"})
	assert.ErrorIs(t, err, finerr.ErrNotFound)

	_, err = svc.Reverse(ctx, ReverseInput{SchoolID: uuid.New(), TransactionID: c.LedgerTxnID, Reason: "x"})
	assert.ErrorIs(t, err, finerr.ErrNotFound, "other school")

	rev, err := svc.Reverse(ctx, ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: c.LedgerTxnID, Reason: "x"})
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: rev.LedgerTxnID, Reason: "x"})
	assert.ErrorIs(t, err, finerr.ErrValidation, "a reversal cannot be reversed")
}

func TestReverse_HookFailureRollsBack(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	acct := newAccount(t, svc, uuid.New())
	c := charge(t, svc, acct, "50")

	boom := errors.New("hook failed")
	svc.OnReverse(func(ctx context.Context, tx *gorm.DB, original, reversal *model.LedgerTransactionModel, reason string) error {
		return boom
	})

	_, err := svc.Reverse(ctx, ReverseInput{SchoolID: acct.StudentAccountSchoolID, TransactionID: c.LedgerTxnID, Reason: "x"})
	require.ErrorIs(t, err, boom)

	got, err := svc.GetAccountByStudent(ctx, acct.StudentAccountSchoolID, acct.StudentAccountStudentID)
	require.NoError(t, err)
	assert.True(t, got.StudentAccountBalance.Equal(dec("50")))
}
