package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/fees/model"
	"schoolfinance_backend/internals/features/finance/finerr"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

// LoadStudent reads one student of the school. Pass the transaction handle
// when called inside one.
func LoadStudent(ctx context.Context, db *gorm.DB, schoolID, studentID uuid.UUID) (*model.StudentModel, error) {
	var st model.StudentModel
	if err := db.WithContext(ctx).
		Where("student_id = ? AND student_school_id = ?", studentID, schoolID).
		Take(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("student %s not found", studentID)
		}
		return nil, err
	}
	return &st, nil
}

// AuthorizeStudent admits finance staff and the student or parent who owns
// the record. Other schools see NotFound.
func AuthorizeStudent(id *helperAuth.Identity, st *model.StudentModel) error {
	if id == nil {
		return finerr.New(finerr.ErrUnauthorized, "caller identity is required")
	}
	if id.SchoolID != st.StudentSchoolID {
		return finerr.NotFound("student %s not found", st.StudentID)
	}
	if id.IsFinanceStaff() {
		return nil
	}
	if id.StudentID != nil && *id.StudentID == st.StudentID {
		return nil
	}
	if st.IsOwnedBy(id.UserID) {
		return nil
	}
	return finerr.Forbidden("not allowed to act for this student")
}
