// file: internals/features/finance/fees/model/fee_structure_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StudentType string

const (
	StudentTypeDayScholar StudentType = "DAY_SCHOLAR"
	StudentTypeBoarder    StudentType = "BOARDER"
	StudentTypeBoth       StudentType = "BOTH"
)

func (t StudentType) Valid() bool {
	switch t {
	case StudentTypeDayScholar, StudentTypeBoarder, StudentTypeBoth:
		return true
	}
	return false
}

// Matches reports whether a student of type st is eligible for a structure
// targeting t.
func (t StudentType) Matches(st StudentType) bool {
	return t == StudentTypeBoth || t == st
}

/*
  fee_structures
  - applied_at is stamped on first application; after that the row is frozen
  - billing_period is part of the charge idempotency key
*/

type FeeStructureModel struct {
	FeeStructureID       uuid.UUID `gorm:"column:fee_structure_id;type:uuid;primaryKey" json:"fee_structure_id"`
	FeeStructureSchoolID uuid.UUID `gorm:"column:fee_structure_school_id;type:uuid;not null;index" json:"fee_structure_school_id"`

	FeeStructureName          string          `gorm:"column:fee_structure_name;size:160;not null" json:"fee_structure_name"`
	FeeStructureFeeType       string          `gorm:"column:fee_structure_fee_type;size:60;not null" json:"fee_structure_fee_type"`
	FeeStructureStudentType   StudentType     `gorm:"column:fee_structure_student_type;size:20;not null" json:"fee_structure_student_type"`
	FeeStructureCurriculum    *string         `gorm:"column:fee_structure_curriculum;size:60" json:"fee_structure_curriculum,omitempty"`
	FeeStructureClassID       *uuid.UUID      `gorm:"column:fee_structure_class_id;type:uuid" json:"fee_structure_class_id,omitempty"`
	FeeStructureAmount        decimal.Decimal `gorm:"column:fee_structure_amount;type:numeric(14,2);not null" json:"fee_structure_amount"`
	FeeStructureDueDate       *time.Time      `gorm:"column:fee_structure_due_date" json:"fee_structure_due_date,omitempty"`
	FeeStructureBillingPeriod string          `gorm:"column:fee_structure_billing_period;size:40;not null;default:''" json:"fee_structure_billing_period"`

	FeeStructureAppliedAt *time.Time `gorm:"column:fee_structure_applied_at" json:"fee_structure_applied_at,omitempty"`
	FeeStructureCreatedBy uuid.UUID  `gorm:"column:fee_structure_created_by;type:uuid;not null" json:"fee_structure_created_by"`

	FeeStructureCreatedAt time.Time `gorm:"column:fee_structure_created_at;autoCreateTime" json:"fee_structure_created_at"`
	FeeStructureUpdatedAt time.Time `gorm:"column:fee_structure_updated_at;autoUpdateTime" json:"fee_structure_updated_at"`
}

func (FeeStructureModel) TableName() string {
	return "fee_structures"
}

func (m *FeeStructureModel) BeforeCreate(tx *gorm.DB) error {
	if m.FeeStructureID == uuid.Nil {
		m.FeeStructureID = uuid.New()
	}
	return nil
}

func (m *FeeStructureModel) IsApplied() bool { return m.FeeStructureAppliedAt != nil }
