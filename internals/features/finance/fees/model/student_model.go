// file: internals/features/finance/fees/model/student_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*
  students = read model of the school's student registry.
  Enrollment CRUD lives elsewhere; finance only reads these columns.
*/

type StudentModel struct {
	StudentID         uuid.UUID   `gorm:"column:student_id;type:uuid;primaryKey" json:"student_id"`
	StudentSchoolID   uuid.UUID   `gorm:"column:student_school_id;type:uuid;not null;index" json:"student_school_id"`
	StudentName       string      `gorm:"column:student_name;size:160;not null" json:"student_name"`
	StudentType       StudentType `gorm:"column:student_type;size:20;not null" json:"student_type"`
	StudentClassID    *uuid.UUID  `gorm:"column:student_class_id;type:uuid" json:"student_class_id,omitempty"`
	StudentCurriculum *string     `gorm:"column:student_curriculum;size:60" json:"student_curriculum,omitempty"`

	StudentUserID       *uuid.UUID `gorm:"column:student_user_id;type:uuid" json:"student_user_id,omitempty"`
	StudentParentUserID *uuid.UUID `gorm:"column:student_parent_user_id;type:uuid" json:"student_parent_user_id,omitempty"`
	StudentParentEmail  *string    `gorm:"column:student_parent_email;size:160" json:"student_parent_email,omitempty"`
	StudentIsActive     bool       `gorm:"column:student_is_active;not null" json:"student_is_active"`

	StudentCreatedAt time.Time `gorm:"column:student_created_at;autoCreateTime" json:"student_created_at"`
}

func (StudentModel) TableName() string {
	return "students"
}

func (m *StudentModel) BeforeCreate(tx *gorm.DB) error {
	if m.StudentID == uuid.Nil {
		m.StudentID = uuid.New()
	}
	return nil
}

// IsOwnedBy reports whether the user is the student or the student's parent.
func (m *StudentModel) IsOwnedBy(userID uuid.UUID) bool {
	if userID == uuid.Nil {
		return false
	}
	return (m.StudentUserID != nil && *m.StudentUserID == userID) ||
		(m.StudentParentUserID != nil && *m.StudentParentUserID == userID)
}
