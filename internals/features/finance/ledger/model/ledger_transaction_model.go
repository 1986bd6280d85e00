// file: internals/features/finance/ledger/model/ledger_transaction_model.go
package model

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypeCharge     TransactionType = "CHARGE"
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCharge, TransactionTypePayment, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Direction is the sign applied to the amount: +1 raises what the student
// owes, -1 lowers it.
type Direction int

const (
	DirectionDebit  Direction = 1
	DirectionCredit Direction = -1
)

func (d Direction) Valid() bool { return d == DirectionDebit || d == DirectionCredit }

func (d Direction) Opposite() Direction { return -d }

/*
  ledger_transactions = append-only ledger
  - never updated or deleted; reversals append an ADJUSTMENT
  - (account_id, sequence) is unique and gapless per account
  - hash chains every row to the previous one of the same account
*/

type LedgerTransactionModel struct {
	LedgerTxnID        uuid.UUID `gorm:"column:ledger_txn_id;type:uuid;primaryKey" json:"ledger_txn_id"`
	LedgerTxnSchoolID  uuid.UUID `gorm:"column:ledger_txn_school_id;type:uuid;not null;index" json:"ledger_txn_school_id"`
	LedgerTxnAccountID uuid.UUID `gorm:"column:ledger_txn_account_id;type:uuid;not null;uniqueIndex:uq_ledger_txn_account_seq,priority:1" json:"ledger_txn_account_id"`
	LedgerTxnSequence  int64     `gorm:"column:ledger_txn_sequence;not null;uniqueIndex:uq_ledger_txn_account_seq,priority:2" json:"ledger_txn_sequence"`

	LedgerTxnType          TransactionType `gorm:"column:ledger_txn_type;size:20;not null" json:"ledger_txn_type"`
	LedgerTxnDirection     Direction       `gorm:"column:ledger_txn_direction;not null" json:"ledger_txn_direction"`
	LedgerTxnAmount        decimal.Decimal `gorm:"column:ledger_txn_amount;type:numeric(14,2);not null" json:"ledger_txn_amount"`
	LedgerTxnBalanceBefore decimal.Decimal `gorm:"column:ledger_txn_balance_before;type:numeric(14,2);not null" json:"ledger_txn_balance_before"`
	LedgerTxnBalanceAfter  decimal.Decimal `gorm:"column:ledger_txn_balance_after;type:numeric(14,2);not null" json:"ledger_txn_balance_after"`

	LedgerTxnDescription   string     `gorm:"column:ledger_txn_description;not null;default:''" json:"ledger_txn_description"`
	LedgerTxnReference     string     `gorm:"column:ledger_txn_reference;size:120;not null;default:'';index" json:"ledger_txn_reference"`
	LedgerTxnPaymentMethod *string    `gorm:"column:ledger_txn_payment_method;size:30" json:"ledger_txn_payment_method,omitempty"`
	LedgerTxnProcessedBy   uuid.UUID  `gorm:"column:ledger_txn_processed_by;type:uuid;not null" json:"ledger_txn_processed_by"`
	LedgerTxnProcessedAt   time.Time  `gorm:"column:ledger_txn_processed_at;not null;index" json:"ledger_txn_processed_at"`
	LedgerTxnNotes         string     `gorm:"column:ledger_txn_notes;not null;default:''" json:"ledger_txn_notes"`
	LedgerTxnReversesID    *uuid.UUID `gorm:"column:ledger_txn_reverses_id;type:uuid" json:"ledger_txn_reverses_id,omitempty"`

	LedgerTxnIdempotencyKey *string `gorm:"column:ledger_txn_idempotency_key;size:160;uniqueIndex" json:"-"`

	LedgerTxnPrevHash string `gorm:"column:ledger_txn_prev_hash;size:64;not null;default:''" json:"ledger_txn_prev_hash"`
	LedgerTxnHash     string `gorm:"column:ledger_txn_hash;size:64;not null" json:"ledger_txn_hash"`
}

func (LedgerTransactionModel) TableName() string {
	return "ledger_transactions"
}

func (m *LedgerTransactionModel) BeforeCreate(tx *gorm.DB) error {
	if m.LedgerTxnID == uuid.Nil {
		m.LedgerTxnID = uuid.New()
	}
	return nil
}

// SignedAmount is the delta this row applied to the balance.
func (m *LedgerTransactionModel) SignedAmount() decimal.Decimal {
	if m.LedgerTxnDirection == DirectionCredit {
		return m.LedgerTxnAmount.Neg()
	}
	return m.LedgerTxnAmount
}

// ComputeHash hashes the row contents together with the previous hash of
// the same account. Amounts are fixed to 2dp and times to UTC microseconds so
// the digest survives a database round trip.
func (m *LedgerTransactionModel) ComputeHash() string {
	method := ""
	if m.LedgerTxnPaymentMethod != nil {
		method = *m.LedgerTxnPaymentMethod
	}
	reverses := ""
	if m.LedgerTxnReversesID != nil {
		reverses = m.LedgerTxnReversesID.String()
	}

	parts := []string{
		m.LedgerTxnPrevHash,
		m.LedgerTxnID.String(),
		m.LedgerTxnAccountID.String(),
		strconv.FormatInt(m.LedgerTxnSequence, 10),
		string(m.LedgerTxnType),
		strconv.Itoa(int(m.LedgerTxnDirection)),
		m.LedgerTxnAmount.StringFixed(2),
		m.LedgerTxnBalanceBefore.StringFixed(2),
		m.LedgerTxnBalanceAfter.StringFixed(2),
		m.LedgerTxnDescription,
		m.LedgerTxnReference,
		method,
		m.LedgerTxnProcessedBy.String(),
		strconv.FormatInt(m.LedgerTxnProcessedAt.UTC().UnixMicro(), 10),
		m.LedgerTxnNotes,
		reverses,
	}
	sum := sha3.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
