// file: internals/features/finance/fees/service/fee_structure_service.go
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/fees/dto"
	"schoolfinance_backend/internals/features/finance/fees/model"
	"schoolfinance_backend/internals/features/finance/finerr"
)

type FeeStructureService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewFeeStructureService(db *gorm.DB, log *zap.Logger) *FeeStructureService {
	return &FeeStructureService{db: db, log: log.Named("fee_structures"), now: time.Now}
}

func validMoney(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() {
		return finerr.Validation("%s must be greater than zero", field)
	}
	if !amount.Equal(amount.Round(2)) {
		return finerr.Validation("%s must have at most 2 decimal places", field)
	}
	return nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *FeeStructureService) Create(ctx context.Context, schoolID, actor uuid.UUID, req dto.CreateFeeStructureRequest) (*model.FeeStructureModel, error) {
	if err := validMoney(req.Amount, "amount"); err != nil {
		return nil, err
	}
	st := model.StudentType(req.StudentType)
	if !st.Valid() {
		return nil, finerr.Validation("unknown student type %q", req.StudentType)
	}

	m := model.FeeStructureModel{
		FeeStructureSchoolID:      schoolID,
		FeeStructureName:          strings.TrimSpace(req.Name),
		FeeStructureFeeType:       strings.TrimSpace(req.FeeType),
		FeeStructureStudentType:   st,
		FeeStructureCurriculum:    trimPtr(req.Curriculum),
		FeeStructureClassID:       req.ClassID,
		FeeStructureAmount:        req.Amount,
		FeeStructureDueDate:       req.DueDate,
		FeeStructureBillingPeriod: strings.TrimSpace(req.BillingPeriod),
		FeeStructureCreatedBy:     actor,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *FeeStructureService) Get(ctx context.Context, schoolID, id uuid.UUID) (*model.FeeStructureModel, error) {
	var m model.FeeStructureModel
	if err := s.db.WithContext(ctx).
		Where("fee_structure_id = ? AND fee_structure_school_id = ?", id, schoolID).
		Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("fee structure %s not found", id)
		}
		return nil, err
	}
	return &m, nil
}

func (s *FeeStructureService) List(ctx context.Context, schoolID uuid.UUID, limit, offset int) ([]model.FeeStructureModel, int64, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.FeeStructureModel{}).
			Where("fee_structure_school_id = ?", schoolID)
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]model.FeeStructureModel, 0)
	if err := base().Order("fee_structure_created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Update edits a structure that has never been applied. Applied structures
// are frozen so past charges keep matching their source.
func (s *FeeStructureService) Update(ctx context.Context, schoolID, id uuid.UUID, req dto.UpdateFeeStructureRequest) (*model.FeeStructureModel, error) {
	var out *model.FeeStructureModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.FeeStructureModel
		if err := tx.Where("fee_structure_id = ? AND fee_structure_school_id = ?", id, schoolID).
			Take(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return finerr.NotFound("fee structure %s not found", id)
			}
			return err
		}
		if m.IsApplied() {
			return finerr.Conflict("fee structure was already applied; create a new one instead")
		}

		if req.Name != nil {
			m.FeeStructureName = strings.TrimSpace(*req.Name)
		}
		if req.FeeType != nil {
			m.FeeStructureFeeType = strings.TrimSpace(*req.FeeType)
		}
		if req.StudentType != nil {
			st := model.StudentType(*req.StudentType)
			if !st.Valid() {
				return finerr.Validation("unknown student type %q", *req.StudentType)
			}
			m.FeeStructureStudentType = st
		}
		if req.Curriculum != nil {
			m.FeeStructureCurriculum = trimPtr(req.Curriculum)
		}
		if req.ClassID != nil {
			m.FeeStructureClassID = req.ClassID
		}
		if req.Amount != nil {
			if err := validMoney(*req.Amount, "amount"); err != nil {
				return err
			}
			m.FeeStructureAmount = *req.Amount
		}
		if req.DueDate != nil {
			m.FeeStructureDueDate = req.DueDate
		}
		if req.BillingPeriod != nil {
			m.FeeStructureBillingPeriod = strings.TrimSpace(*req.BillingPeriod)
		}

		m.FeeStructureUpdatedAt = s.now().UTC()
		res := tx.Model(&model.FeeStructureModel{}).
			Where("fee_structure_id = ? AND fee_structure_applied_at IS NULL", m.FeeStructureID).
			Updates(map[string]any{
				"fee_structure_name":           m.FeeStructureName,
				"fee_structure_fee_type":       m.FeeStructureFeeType,
				"fee_structure_student_type":   m.FeeStructureStudentType,
				"fee_structure_curriculum":     m.FeeStructureCurriculum,
				"fee_structure_class_id":       m.FeeStructureClassID,
				"fee_structure_amount":         m.FeeStructureAmount,
				"fee_structure_due_date":       m.FeeStructureDueDate,
				"fee_structure_billing_period": m.FeeStructureBillingPeriod,
				"fee_structure_updated_at":     m.FeeStructureUpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return finerr.Conflict("fee structure was applied while being edited")
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

/* =========================================================
   Bursaries
========================================================= */

func (s *FeeStructureService) CreateBursary(ctx context.Context, schoolID uuid.UUID, req dto.CreateBursaryRequest) (*model.BursaryModel, error) {
	if !req.Percentage.IsPositive() || req.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return nil, finerr.Validation("percentage must be greater than 0 and at most 100")
	}
	start := s.now().UTC()
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, finerr.Validation("end date is before start date")
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&model.StudentModel{}).
		Where("student_id = ? AND student_school_id = ?", req.StudentID, schoolID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, finerr.NotFound("student %s not found", req.StudentID)
	}

	m := model.BursaryModel{
		BursarySchoolID:   schoolID,
		BursaryStudentID:  req.StudentID,
		BursaryName:       strings.TrimSpace(req.Name),
		BursaryPercentage: req.Percentage,
		BursaryIsActive:   true,
		BursaryStartDate:  start,
		BursaryEndDate:    req.EndDate,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}

	// a second concurrently valid bursary makes future charges fail for this student
	var overlapping int64
	_ = s.db.WithContext(ctx).Model(&model.BursaryModel{}).
		Where("bursary_student_id = ? AND bursary_is_active = ? AND bursary_id <> ?", req.StudentID, true, m.BursaryID).
		Count(&overlapping).Error
	if overlapping > 0 {
		s.log.Warn("student has several active bursaries",
			zap.String("student_id", req.StudentID.String()),
			zap.Int64("others", overlapping),
		)
	}
	return &m, nil
}

func (s *FeeStructureService) ListBursaries(ctx context.Context, schoolID uuid.UUID, studentID *uuid.UUID, limit, offset int) ([]model.BursaryModel, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.BursaryModel{}).Where("bursary_school_id = ?", schoolID)
		if studentID != nil {
			q = q.Where("bursary_student_id = ?", *studentID)
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]model.BursaryModel, 0)
	if err := base().Order("bursary_start_date DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *FeeStructureService) DeactivateBursary(ctx context.Context, schoolID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&model.BursaryModel{}).
		Where("bursary_id = ? AND bursary_school_id = ?", id, schoolID).
		Update("bursary_is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return finerr.NotFound("bursary %s not found", id)
	}
	return nil
}
