package students

import (
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/fees/model"
)

// StudentSeed mirrors the roster export of the school platform.
type StudentSeed struct {
	StudentID           uuid.UUID  `json:"student_id"`
	StudentSchoolID     uuid.UUID  `json:"student_school_id"`
	StudentName         string     `json:"student_name"`
	StudentType         string     `json:"student_type"`
	StudentClassID      *uuid.UUID `json:"student_class_id"`
	StudentCurriculum   *string    `json:"student_curriculum"`
	StudentUserID       *uuid.UUID `json:"student_user_id"`
	StudentParentUserID *uuid.UUID `json:"student_parent_user_id"`
	StudentParentEmail  *string    `json:"student_parent_email"`
	StudentIsActive     *bool      `json:"student_is_active"`
}

// SeedStudentsFromJSON inserts the students in filePath that are not in the
// table yet and returns how many were added.
func SeedStudentsFromJSON(db *gorm.DB, log *zap.Logger, filePath string) (int, error) {
	log.Info("📥 reading seed file", zap.String("path", filePath))

	file, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filePath, err)
	}
	var rows []StudentSeed
	if err := sonic.Unmarshal(file, &rows); err != nil {
		return 0, fmt.Errorf("decode %s: %w", filePath, err)
	}

	added := 0
	for i, s := range rows {
		st := model.StudentType(strings.ToUpper(strings.TrimSpace(s.StudentType)))
		if s.StudentSchoolID == uuid.Nil || strings.TrimSpace(s.StudentName) == "" || !st.Valid() || st == model.StudentTypeBoth {
			return added, fmt.Errorf("%s: row %d is incomplete", filePath, i)
		}

		if s.StudentID != uuid.Nil {
			var n int64
			if err := db.Model(&model.StudentModel{}).Where("student_id = ?", s.StudentID).Count(&n).Error; err != nil {
				return added, err
			}
			if n > 0 {
				log.Debug("student exists, skipping", zap.String("student_id", s.StudentID.String()))
				continue
			}
		}

		active := true
		if s.StudentIsActive != nil {
			active = *s.StudentIsActive
		}
		m := model.StudentModel{
			StudentID:           s.StudentID,
			StudentSchoolID:     s.StudentSchoolID,
			StudentName:         strings.TrimSpace(s.StudentName),
			StudentType:         st,
			StudentClassID:      s.StudentClassID,
			StudentCurriculum:   s.StudentCurriculum,
			StudentUserID:       s.StudentUserID,
			StudentParentUserID: s.StudentParentUserID,
			StudentParentEmail:  s.StudentParentEmail,
			StudentIsActive:     active,
		}
		if err := db.Create(&m).Error; err != nil {
			return added, fmt.Errorf("insert student %q: %w", m.StudentName, err)
		}
		added++
	}
	return added, nil
}
