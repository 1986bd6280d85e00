// file: internals/features/finance/ledger/model/student_account_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/*
  student_accounts = running balance per student (1:1)
  - balance > 0 means the student owes the school
  - balance always equals balance_after of the latest ledger transaction
  - version is bumped on every ledger write (compare-and-swap guard)
*/

type StudentAccountModel struct {
	StudentAccountID        uuid.UUID `gorm:"column:student_account_id;type:uuid;primaryKey" json:"student_account_id"`
	StudentAccountSchoolID  uuid.UUID `gorm:"column:student_account_school_id;type:uuid;not null;index" json:"student_account_school_id"`
	StudentAccountStudentID uuid.UUID `gorm:"column:student_account_student_id;type:uuid;not null;uniqueIndex" json:"student_account_student_id"`

	StudentAccountBalance           decimal.Decimal     `gorm:"column:student_account_balance;type:numeric(14,2);not null;default:0" json:"student_account_balance"`
	StudentAccountLastPaymentDate   *time.Time          `gorm:"column:student_account_last_payment_date" json:"student_account_last_payment_date"`
	StudentAccountLastPaymentAmount decimal.NullDecimal `gorm:"column:student_account_last_payment_amount;type:numeric(14,2)" json:"student_account_last_payment_amount"`

	StudentAccountVersion  int64  `gorm:"column:student_account_version;not null;default:0" json:"student_account_version"`
	StudentAccountLastHash string `gorm:"column:student_account_last_hash;size:64;not null;default:''" json:"-"`

	StudentAccountCreatedAt time.Time `gorm:"column:student_account_created_at;autoCreateTime" json:"student_account_created_at"`
	StudentAccountUpdatedAt time.Time `gorm:"column:student_account_updated_at;autoUpdateTime" json:"student_account_updated_at"`
}

func (StudentAccountModel) TableName() string {
	return "student_accounts"
}

func (m *StudentAccountModel) BeforeCreate(tx *gorm.DB) error {
	if m.StudentAccountID == uuid.Nil {
		m.StudentAccountID = uuid.New()
	}
	return nil
}
