// file: internals/features/finance/fees/dto/fee_structure_dto.go
package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateFeeStructureRequest struct {
	Name          string          `json:"name" validate:"required,min=2,max=160"`
	FeeType       string          `json:"fee_type" validate:"required,max=60"`
	StudentType   string          `json:"student_type" validate:"required,oneof=DAY_SCHOLAR BOARDER BOTH"`
	Curriculum    *string         `json:"curriculum" validate:"omitempty,max=60"`
	ClassID       *uuid.UUID      `json:"class_id"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       *time.Time      `json:"due_date"`
	BillingPeriod string          `json:"billing_period" validate:"omitempty,max=40"`
}

// UpdateFeeStructureRequest is a partial update; only allowed before the
// structure is first applied.
type UpdateFeeStructureRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=2,max=160"`
	FeeType       *string          `json:"fee_type" validate:"omitempty,max=60"`
	StudentType   *string          `json:"student_type" validate:"omitempty,oneof=DAY_SCHOLAR BOARDER BOTH"`
	Curriculum    *string          `json:"curriculum" validate:"omitempty,max=60"`
	ClassID       *uuid.UUID       `json:"class_id"`
	Amount        *decimal.Decimal `json:"amount"`
	DueDate       *time.Time       `json:"due_date"`
	BillingPeriod *string          `json:"billing_period" validate:"omitempty,max=40"`
}

type ApplyFeeStructureRequest struct {
	StudentIDs    []uuid.UUID `json:"student_ids" validate:"omitempty,max=5000"`
	BillingPeriod string      `json:"billing_period" validate:"omitempty,max=40"`
}

type CreateBursaryRequest struct {
	StudentID  uuid.UUID       `json:"student_id" validate:"required"`
	Name       string          `json:"name" validate:"omitempty,max=160"`
	Percentage decimal.Decimal `json:"percentage"`
	StartDate  *time.Time      `json:"start_date"`
	EndDate    *time.Time      `json:"end_date"`
}
