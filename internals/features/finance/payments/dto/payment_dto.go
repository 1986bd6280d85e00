package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schoolfinance_backend/internals/features/finance/payments/model"
)

/* =========================================================
   REQUEST DTOs
========================================================= */

// RecordPaymentRequest: cash / bank transfer / mobile money taken at the desk
type RecordPaymentRequest struct {
	StudentID     uuid.UUID       `json:"student_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method" validate:"required,oneof=CASH BANK_TRANSFER MOBILE_MONEY"`
	BankReference string          `json:"bank_reference" validate:"omitempty,max=120"`
	Notes         string          `json:"notes" validate:"omitempty,max=500"`
	ParentID      *uuid.UUID      `json:"parent_id"`
}

// InitiatePaymentRequest: open a hosted checkout at a gateway
type InitiatePaymentRequest struct {
	StudentID uuid.UUID       `json:"student_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3"`
	Gateway   string          `json:"gateway" validate:"required,max=40"`
	ReturnURL string          `json:"return_url" validate:"omitempty,url,max=500"`
}

/* =========================================================
   RESPONSE DTOs
========================================================= */

type PaymentResponse struct {
	PaymentID            uuid.UUID  `json:"payment_id"`
	PaymentStudentID     uuid.UUID  `json:"payment_student_id"`
	PaymentTransactionID *uuid.UUID `json:"payment_transaction_id,omitempty"`

	PaymentReceiptNumber string          `json:"payment_receipt_number"`
	PaymentAmount        decimal.Decimal `json:"payment_amount"`
	PaymentCurrency      string          `json:"payment_currency"`
	PaymentMethod        string          `json:"payment_method"`
	PaymentStatus        string          `json:"payment_status"`

	PaymentProspectiveBalance *decimal.Decimal `json:"payment_prospective_balance,omitempty"`
	PaymentBankReference      *string          `json:"payment_bank_reference,omitempty"`
	PaymentRejectionReason    *string          `json:"payment_rejection_reason,omitempty"`
	PaymentNotes              string           `json:"payment_notes,omitempty"`
	PaymentParentID           *uuid.UUID       `json:"payment_parent_id,omitempty"`
	PaymentRecordedBy         uuid.UUID        `json:"payment_recorded_by"`

	PaymentVerifiedAt *time.Time `json:"payment_verified_at,omitempty"`
	PaymentCreatedAt  time.Time  `json:"payment_created_at"`
}

func FromModel(m *model.PaymentModel) PaymentResponse {
	out := PaymentResponse{
		PaymentID:              m.PaymentID,
		PaymentStudentID:       m.PaymentStudentID,
		PaymentTransactionID:   m.PaymentTransactionID,
		PaymentReceiptNumber:   m.PaymentReceiptNumber,
		PaymentAmount:          m.PaymentAmount,
		PaymentCurrency:        m.PaymentCurrency,
		PaymentMethod:          string(m.PaymentMethod),
		PaymentStatus:          string(m.PaymentStatus),
		PaymentBankReference:   m.PaymentBankReference,
		PaymentRejectionReason: m.PaymentRejectionReason,
		PaymentNotes:           m.PaymentNotes,
		PaymentParentID:        m.PaymentParentID,
		PaymentRecordedBy:      m.PaymentRecordedBy,
		PaymentVerifiedAt:      m.PaymentVerifiedAt,
		PaymentCreatedAt:       m.PaymentCreatedAt,
	}
	if m.PaymentProspectiveBalance.Valid {
		b := m.PaymentProspectiveBalance.Decimal
		out.PaymentProspectiveBalance = &b
	}
	return out
}

func FromModels(rows []model.PaymentModel) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}

type GatewayTransactionResponse struct {
	GatewayTxnID           uuid.UUID       `json:"gateway_txn_id"`
	GatewayTxnGateway      string          `json:"gateway_txn_gateway"`
	GatewayTxnRef          string          `json:"gateway_txn_ref"`
	GatewayTxnAmount       decimal.Decimal `json:"gateway_txn_amount"`
	GatewayTxnCurrency     string          `json:"gateway_txn_currency"`
	GatewayTxnStatus       string          `json:"gateway_txn_status"`
	GatewayTxnPaymentURL   *string         `json:"gateway_txn_payment_url,omitempty"`
	GatewayTxnExpiresAt    *time.Time      `json:"gateway_txn_expires_at,omitempty"`
	GatewayTxnCompletedAt  *time.Time      `json:"gateway_txn_completed_at,omitempty"`
	GatewayTxnFailedAt     *time.Time      `json:"gateway_txn_failed_at,omitempty"`
	GatewayTxnErrorMessage *string         `json:"gateway_txn_error_message,omitempty"`
}

func FromGatewayModel(m *model.GatewayTransactionModel) *GatewayTransactionResponse {
	if m == nil {
		return nil
	}
	return &GatewayTransactionResponse{
		GatewayTxnID:           m.GatewayTxnID,
		GatewayTxnGateway:      m.GatewayTxnGateway,
		GatewayTxnRef:          m.GatewayTxnRef,
		GatewayTxnAmount:       m.GatewayTxnAmount,
		GatewayTxnCurrency:     m.GatewayTxnCurrency,
		GatewayTxnStatus:       string(m.GatewayTxnStatus),
		GatewayTxnPaymentURL:   m.GatewayTxnPaymentURL,
		GatewayTxnExpiresAt:    m.GatewayTxnExpiresAt,
		GatewayTxnCompletedAt:  m.GatewayTxnCompletedAt,
		GatewayTxnFailedAt:     m.GatewayTxnFailedAt,
		GatewayTxnErrorMessage: m.GatewayTxnErrorMessage,
	}
}

// PaymentStatusResponse: payment + session + student summary
type PaymentStatusResponse struct {
	Payment PaymentResponse             `json:"payment"`
	Gateway *GatewayTransactionResponse `json:"gateway,omitempty"`
	Student struct {
		StudentID   uuid.UUID       `json:"student_id"`
		StudentName string          `json:"student_name"`
		Balance     decimal.Decimal `json:"balance"`
	} `json:"student"`
}

// CallbackAck is what providers receive back. They only look at the status
// code; the body helps when replaying by hand.
type CallbackAck struct {
	Status         string `json:"status"`
	GatewayStatus  string `json:"gateway_status,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Changed        bool   `json:"changed"`
}
