// file: internals/features/finance/payments/model/gateway_transaction_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GatewayStatus string

const (
	GatewayStatusPending    GatewayStatus = "PENDING"
	GatewayStatusProcessing GatewayStatus = "PROCESSING"
	GatewayStatusCompleted  GatewayStatus = "COMPLETED"
	GatewayStatusFailed     GatewayStatus = "FAILED"
	GatewayStatusCancelled  GatewayStatus = "CANCELLED"
	GatewayStatusExpired    GatewayStatus = "EXPIRED"
)

func (s GatewayStatus) Valid() bool {
	switch s {
	case GatewayStatusPending, GatewayStatusProcessing, GatewayStatusCompleted,
		GatewayStatusFailed, GatewayStatusCancelled, GatewayStatusExpired:
		return true
	}
	return false
}

// IsTerminal: COMPLETED, FAILED, CANCELLED and EXPIRED never change again.
func (s GatewayStatus) IsTerminal() bool {
	switch s {
	case GatewayStatusCompleted, GatewayStatusFailed, GatewayStatusCancelled, GatewayStatusExpired:
		return true
	}
	return false
}

func (s GatewayStatus) rank() int {
	switch s {
	case GatewayStatusPending:
		return 0
	case GatewayStatusProcessing:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether from → to is a forward move of the state
// machine. Same-state and backward moves are not transitions.
func CanTransition(from, to GatewayStatus) bool {
	if !to.Valid() || from.IsTerminal() || from == to {
		return false
	}
	return to.rank() > from.rank()
}

/*
  gateway_transactions = provider session per payment (1:1)
  - written before the client is redirected, so every session can be reconciled
  - (gateway, gateway_ref) identifies the provider order
*/

type GatewayTransactionModel struct {
	GatewayTxnID        uuid.UUID `gorm:"column:gateway_txn_id;type:uuid;primaryKey" json:"gateway_txn_id"`
	GatewayTxnSchoolID  uuid.UUID `gorm:"column:gateway_txn_school_id;type:uuid;not null;index" json:"gateway_txn_school_id"`
	GatewayTxnPaymentID uuid.UUID `gorm:"column:gateway_txn_payment_id;type:uuid;not null;uniqueIndex" json:"gateway_txn_payment_id"`

	GatewayTxnGateway string `gorm:"column:gateway_txn_gateway;size:30;not null;uniqueIndex:uq_gateway_txn_ref,priority:1" json:"gateway_txn_gateway"`
	GatewayTxnRef     string `gorm:"column:gateway_txn_ref;size:120;not null;uniqueIndex:uq_gateway_txn_ref,priority:2" json:"gateway_txn_ref"`

	GatewayTxnAmount      decimal.Decimal `gorm:"column:gateway_txn_amount;type:numeric(14,2);not null" json:"gateway_txn_amount"`
	GatewayTxnAmountMinor int64           `gorm:"column:gateway_txn_amount_minor;not null" json:"gateway_txn_amount_minor"`
	GatewayTxnCurrency    string          `gorm:"column:gateway_txn_currency;size:3;not null" json:"gateway_txn_currency"`
	GatewayTxnStatus      GatewayStatus   `gorm:"column:gateway_txn_status;size:20;not null;index" json:"gateway_txn_status"`

	GatewayTxnCallbackURL   string     `gorm:"column:gateway_txn_callback_url;not null;default:''" json:"gateway_txn_callback_url"`
	GatewayTxnReturnURL     string     `gorm:"column:gateway_txn_return_url;not null;default:''" json:"gateway_txn_return_url"`
	GatewayTxnPaymentURL    *string    `gorm:"column:gateway_txn_payment_url" json:"gateway_txn_payment_url,omitempty"`
	GatewayTxnProviderTxnID *string    `gorm:"column:gateway_txn_provider_txn_id;size:120" json:"gateway_txn_provider_txn_id,omitempty"`
	GatewayTxnExpiresAt     *time.Time `gorm:"column:gateway_txn_expires_at;index" json:"gateway_txn_expires_at,omitempty"`
	GatewayTxnCompletedAt   *time.Time `gorm:"column:gateway_txn_completed_at" json:"gateway_txn_completed_at,omitempty"`
	GatewayTxnFailedAt      *time.Time `gorm:"column:gateway_txn_failed_at" json:"gateway_txn_failed_at,omitempty"`
	GatewayTxnErrorMessage  *string    `gorm:"column:gateway_txn_error_message" json:"gateway_txn_error_message,omitempty"`

	GatewayTxnCreatedAt time.Time `gorm:"column:gateway_txn_created_at;autoCreateTime" json:"gateway_txn_created_at"`
	GatewayTxnUpdatedAt time.Time `gorm:"column:gateway_txn_updated_at;autoUpdateTime" json:"gateway_txn_updated_at"`
}

func (GatewayTransactionModel) TableName() string {
	return "gateway_transactions"
}

func (m *GatewayTransactionModel) BeforeCreate(tx *gorm.DB) error {
	if m.GatewayTxnID == uuid.Nil {
		m.GatewayTxnID = uuid.New()
	}
	return nil
}
