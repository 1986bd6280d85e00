// file: internals/features/finance/payments/model/payment_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/* =========================================================
   ENUMS
========================================================= */

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusVerified PaymentStatus = "Verified"
	PaymentStatusRejected PaymentStatus = "Rejected"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodGateway      PaymentMethod = "GATEWAY"
)

// IsManual reports whether staff may record this method directly.
func (m PaymentMethod) IsManual() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodMobileMoney:
		return true
	}
	return false
}

/* =========================================================
   MODEL
========================================================= */

// PaymentModel is the receipt-bearing record of money received. Gateway
// payments start Pending without a ledger transaction; the PAYMENT
// transaction is linked when the provider confirms.
type PaymentModel struct {
	PaymentID            uuid.UUID  `gorm:"column:payment_id;type:uuid;primaryKey" json:"payment_id"`
	PaymentSchoolID      uuid.UUID  `gorm:"column:payment_school_id;type:uuid;not null;index" json:"payment_school_id"`
	PaymentStudentID     uuid.UUID  `gorm:"column:payment_student_id;type:uuid;not null;index" json:"payment_student_id"`
	PaymentAccountID     uuid.UUID  `gorm:"column:payment_account_id;type:uuid;not null" json:"payment_account_id"`
	PaymentTransactionID *uuid.UUID `gorm:"column:payment_transaction_id;type:uuid;uniqueIndex" json:"payment_transaction_id,omitempty"`

	PaymentReceiptNumber string          `gorm:"column:payment_receipt_number;size:20;not null;uniqueIndex" json:"payment_receipt_number"`
	PaymentAmount        decimal.Decimal `gorm:"column:payment_amount;type:numeric(14,2);not null" json:"payment_amount"`
	PaymentCurrency      string          `gorm:"column:payment_currency;size:3;not null" json:"payment_currency"`
	PaymentMethod        PaymentMethod   `gorm:"column:payment_method;size:20;not null" json:"payment_method"`
	PaymentStatus        PaymentStatus   `gorm:"column:payment_status;size:20;not null;index" json:"payment_status"`

	PaymentParentID           *uuid.UUID          `gorm:"column:payment_parent_id;type:uuid" json:"payment_parent_id,omitempty"`
	PaymentProspectiveBalance decimal.NullDecimal `gorm:"column:payment_prospective_balance;type:numeric(14,2)" json:"payment_prospective_balance"`
	PaymentVerifiedAt         *time.Time          `gorm:"column:payment_verified_at" json:"payment_verified_at,omitempty"`
	PaymentBankReference      *string             `gorm:"column:payment_bank_reference;size:120" json:"payment_bank_reference,omitempty"`
	PaymentRejectionReason    *string             `gorm:"column:payment_rejection_reason" json:"payment_rejection_reason,omitempty"`
	PaymentIdempotencyKey     *string             `gorm:"column:payment_idempotency_key;size:160;uniqueIndex" json:"-"`
	PaymentNotes              string              `gorm:"column:payment_notes;not null;default:''" json:"payment_notes"`
	PaymentRecordedBy         uuid.UUID           `gorm:"column:payment_recorded_by;type:uuid;not null" json:"payment_recorded_by"`

	PaymentCreatedAt time.Time `gorm:"column:payment_created_at;autoCreateTime" json:"payment_created_at"`
	PaymentUpdatedAt time.Time `gorm:"column:payment_updated_at;autoUpdateTime" json:"payment_updated_at"`
}

func (PaymentModel) TableName() string {
	return "payments"
}

func (m *PaymentModel) BeforeCreate(tx *gorm.DB) error {
	if m.PaymentID == uuid.Nil {
		m.PaymentID = uuid.New()
	}
	return nil
}

func (m *PaymentModel) IsPending() bool  { return m.PaymentStatus == PaymentStatusPending }
func (m *PaymentModel) IsVerified() bool { return m.PaymentStatus == PaymentStatusVerified }
