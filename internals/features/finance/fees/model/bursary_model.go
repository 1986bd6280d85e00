// file: internals/features/finance/fees/model/bursary_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BursaryModel struct {
	BursaryID        uuid.UUID `gorm:"column:bursary_id;type:uuid;primaryKey" json:"bursary_id"`
	BursarySchoolID  uuid.UUID `gorm:"column:bursary_school_id;type:uuid;not null;index" json:"bursary_school_id"`
	BursaryStudentID uuid.UUID `gorm:"column:bursary_student_id;type:uuid;not null;index" json:"bursary_student_id"`

	BursaryName       string          `gorm:"column:bursary_name;size:160;not null;default:''" json:"bursary_name"`
	BursaryPercentage decimal.Decimal `gorm:"column:bursary_percentage;type:numeric(5,2);not null" json:"bursary_percentage"`
	BursaryIsActive   bool            `gorm:"column:bursary_is_active;not null" json:"bursary_is_active"`
	BursaryStartDate  time.Time       `gorm:"column:bursary_start_date;not null" json:"bursary_start_date"`
	BursaryEndDate    *time.Time      `gorm:"column:bursary_end_date" json:"bursary_end_date,omitempty"`

	BursaryCreatedAt time.Time `gorm:"column:bursary_created_at;autoCreateTime" json:"bursary_created_at"`
	BursaryUpdatedAt time.Time `gorm:"column:bursary_updated_at;autoUpdateTime" json:"bursary_updated_at"`
}

func (BursaryModel) TableName() string {
	return "bursaries"
}

func (m *BursaryModel) BeforeCreate(tx *gorm.DB) error {
	if m.BursaryID == uuid.Nil {
		m.BursaryID = uuid.New()
	}
	return nil
}

// ValidAt reports whether the bursary applies at t.
func (m *BursaryModel) ValidAt(t time.Time) bool {
	if !m.BursaryIsActive || m.BursaryStartDate.After(t) {
		return false
	}
	return m.BursaryEndDate == nil || !m.BursaryEndDate.Before(t)
}
