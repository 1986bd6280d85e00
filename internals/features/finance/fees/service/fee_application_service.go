// file: internals/features/finance/fees/service/fee_application_service.go
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/fees/model"
	"schoolfinance_backend/internals/features/finance/finerr"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	ledgerService "schoolfinance_backend/internals/features/finance/ledger/service"
)

// Charger is the slice of the ledger the fee engine writes through.
type Charger interface {
	EnsureAccounts(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID]ledgerModel.StudentAccountModel, error)
	ApplyTransaction(ctx context.Context, in ledgerService.ApplyInput) (*ledgerModel.LedgerTransactionModel, error)
}

// Failure codes reported per student.
const (
	FailureStudentNotFound     = "student_not_found"
	FailureStudentInactive     = "student_inactive"
	FailureStudentTypeMismatch = "student_type_mismatch"
	FailureClassMismatch       = "class_mismatch"
	FailureCurriculumMismatch  = "curriculum_mismatch"
	FailureAmbiguousBursary    = "ambiguous_bursary"
	FailureAlreadyApplied      = "already_applied"
	FailureLedger              = "ledger_error"
)

var ErrAmbiguousBursary = errors.New("fees: more than one active bursary applies")

type Target struct {
	// StudentIDs empty means every active student matching the structure.
	StudentIDs    []uuid.UUID
	BillingPeriod string
}

type ChargeSuccess struct {
	StudentID     uuid.UUID       `json:"student_id"`
	StudentName   string          `json:"student_name"`
	AccountID     uuid.UUID       `json:"account_id"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	Discount      decimal.Decimal `json:"discount"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	BursaryID     *uuid.UUID      `json:"bursary_id,omitempty"`
	Waived        bool            `json:"waived,omitempty"`
}

type ChargeFailure struct {
	StudentID uuid.UUID `json:"student_id"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
}

// Report is the outcome of one application run. Partial success is the
// normal case, not an error.
type Report struct {
	FeeStructureID uuid.UUID       `json:"fee_structure_id"`
	BillingPeriod  string          `json:"billing_period"`
	Requested      int             `json:"requested"`
	Succeeded      []ChargeSuccess `json:"succeeded"`
	Failed         []ChargeFailure `json:"failed"`
}

type FeeApplicationService struct {
	db      *gorm.DB
	charger Charger
	log     *zap.Logger
	workers int
	now     func() time.Time
}

func NewFeeApplicationService(db *gorm.DB, charger Charger, log *zap.Logger, workers int) *FeeApplicationService {
	if workers <= 0 {
		workers = 8
	}
	return &FeeApplicationService{
		db:      db,
		charger: charger,
		log:     log.Named("fees"),
		workers: workers,
		now:     time.Now,
	}
}

// ApplyFeeStructure charges the structure's amount (less any bursary) to
// each targeted student. Each student is an independent ledger write.
func (s *FeeApplicationService) ApplyFeeStructure(ctx context.Context, schoolID, feeStructureID uuid.UUID, target Target, actor uuid.UUID) (*Report, error) {
	var fs model.FeeStructureModel
	if err := s.db.WithContext(ctx).
		Where("fee_structure_id = ? AND fee_structure_school_id = ?", feeStructureID, schoolID).
		Take(&fs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("fee structure %s not found", feeStructureID)
		}
		return nil, err
	}
	if !fs.FeeStructureAmount.IsPositive() {
		return nil, finerr.Validation("fee structure amount must be greater than zero")
	}

	students, failures, err := s.resolveTargets(ctx, &fs, target.StudentIDs)
	if err != nil {
		return nil, err
	}
	if len(students) > 0 {
		seen := fs.FeeStructureUpdatedAt
		if err := s.freeze(ctx, &fs); err != nil {
			return nil, err
		}
		// an edit landed between the first read and the stamp
		if !fs.FeeStructureUpdatedAt.Equal(seen) {
			if !fs.FeeStructureAmount.IsPositive() {
				return nil, finerr.Validation("fee structure amount must be greater than zero")
			}
			if students, failures, err = s.resolveTargets(ctx, &fs, target.StudentIDs); err != nil {
				return nil, err
			}
		}
	}

	period := strings.TrimSpace(target.BillingPeriod)
	if period == "" {
		period = fs.FeeStructureBillingPeriod
	}
	if period == "" {
		period = "once"
	}

	report := &Report{
		FeeStructureID: fs.FeeStructureID,
		BillingPeriod:  period,
		Succeeded:      make([]ChargeSuccess, 0),
		Failed:         make([]ChargeFailure, 0),
	}
	report.Requested = len(students) + len(failures)
	report.Failed = append(report.Failed, failures...)
	if len(students) == 0 {
		return report, nil
	}

	ids := make([]uuid.UUID, len(students))
	for i, st := range students {
		ids[i] = st.StudentID
	}

	// accounts first, in short batches, before any charge takes a lock
	accounts, err := s.charger.EnsureAccounts(ctx, schoolID, ids)
	if err != nil {
		return nil, err
	}
	bursaries, err := s.activeBursaries(ctx, schoolID, ids)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		ok   *ChargeSuccess
		fail *ChargeFailure
	}
	outcomes := make([]outcome, len(students))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range students {
		st := students[i]
		g.Go(func() error {
			acct, ok := accounts[st.StudentID]
			if !ok {
				outcomes[i].fail = &ChargeFailure{StudentID: st.StudentID, Code: FailureLedger, Reason: "student account could not be created"}
				return nil
			}
			succ, fail := s.chargeOne(ctx, &fs, &st, &acct, bursaries[st.StudentID], period, actor)
			outcomes[i] = outcome{ok: succ, fail: fail}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch {
		case o.ok != nil:
			report.Succeeded = append(report.Succeeded, *o.ok)
		case o.fail != nil:
			report.Failed = append(report.Failed, *o.fail)
		}
	}

	s.log.Info("fee structure applied",
		zap.String("fee_structure_id", fs.FeeStructureID.String()),
		zap.String("billing_period", period),
		zap.Int("requested", report.Requested),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// freeze stamps applied_at before any charge is written and reloads the row,
// so every charge uses the amount that edits can no longer change.
func (s *FeeApplicationService) freeze(ctx context.Context, fs *model.FeeStructureModel) error {
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.FeeStructureModel{}).
		Where("fee_structure_id = ? AND fee_structure_applied_at IS NULL", fs.FeeStructureID).
		UpdateColumn("fee_structure_applied_at", s.now().UTC()).Error; err != nil {
		return err
	}
	var fresh model.FeeStructureModel
	if err := db.Where("fee_structure_id = ?", fs.FeeStructureID).Take(&fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return finerr.NotFound("fee structure %s not found", fs.FeeStructureID)
		}
		return err
	}
	*fs = fresh
	return nil
}

func (s *FeeApplicationService) chargeOne(
	ctx context.Context,
	fs *model.FeeStructureModel,
	st *model.StudentModel,
	acct *ledgerModel.StudentAccountModel,
	bursaries []model.BursaryModel,
	period string,
	actor uuid.UUID,
) (*ChargeSuccess, *ChargeFailure) {
	bursary, err := PickBursary(bursaries, s.now())
	if err != nil {
		return nil, &ChargeFailure{StudentID: st.StudentID, Code: FailureAmbiguousBursary, Reason: finerr.PublicMessage(err)}
	}

	gross := fs.FeeStructureAmount
	discount := decimal.Zero
	res := &ChargeSuccess{
		StudentID:   st.StudentID,
		StudentName: st.StudentName,
		AccountID:   acct.StudentAccountID,
		GrossAmount: gross,
	}
	notes := ""
	if bursary != nil {
		discount = Discount(gross, bursary.BursaryPercentage)
		res.BursaryID = &bursary.BursaryID
		notes = "bursary " + bursary.BursaryPercentage.String() + "%"
	}
	final := gross.Sub(discount)
	res.Discount = discount
	res.ChargedAmount = final

	if !final.IsPositive() {
		res.Waived = true
		res.BalanceAfter = acct.StudentAccountBalance
		return res, nil
	}

	txn, err := s.charger.ApplyTransaction(ctx, ledgerService.ApplyInput{
		SchoolID:       fs.FeeStructureSchoolID,
		AccountID:      acct.StudentAccountID,
		Type:           ledgerModel.TransactionTypeCharge,
		Amount:         final,
		Description:    fs.FeeStructureName,
		Reference:      "FEE-" + fs.FeeStructureID.String(),
		ProcessedBy:    actor,
		Notes:          notes,
		IdempotencyKey: ChargeIdempotencyKey(fs.FeeStructureID, st.StudentID, period),
	})
	if err != nil {
		if errors.Is(err, ledgerService.ErrDuplicateRequest) {
			return nil, &ChargeFailure{StudentID: st.StudentID, Code: FailureAlreadyApplied, Reason: "fee structure already applied for " + period}
		}
		s.log.Warn("charge failed",
			zap.String("student_id", st.StudentID.String()),
			zap.String("fee_structure_id", fs.FeeStructureID.String()),
			zap.Error(err),
		)
		return nil, &ChargeFailure{StudentID: st.StudentID, Code: FailureLedger, Reason: finerr.PublicMessage(err)}
	}

	res.TransactionID = &txn.LedgerTxnID
	res.BalanceAfter = txn.LedgerTxnBalanceAfter
	return res, nil
}

/* =========================================================
   Target resolution
========================================================= */

func (s *FeeApplicationService) resolveTargets(ctx context.Context, fs *model.FeeStructureModel, explicit []uuid.UUID) ([]model.StudentModel, []ChargeFailure, error) {
	db := s.db.WithContext(ctx)

	if len(explicit) == 0 {
		q := db.Where("student_school_id = ? AND student_is_active = ?", fs.FeeStructureSchoolID, true)
		if fs.FeeStructureStudentType != model.StudentTypeBoth {
			q = q.Where("student_type = ?", fs.FeeStructureStudentType)
		}
		if fs.FeeStructureClassID != nil {
			q = q.Where("student_class_id = ?", *fs.FeeStructureClassID)
		}
		if fs.FeeStructureCurriculum != nil {
			q = q.Where("student_curriculum = ?", *fs.FeeStructureCurriculum)
		}
		var rows []model.StudentModel
		if err := q.Order("student_name ASC, student_id ASC").Find(&rows).Error; err != nil {
			return nil, nil, err
		}
		return rows, nil, nil
	}

	ids := dedupe(explicit)
	var rows []model.StudentModel
	if err := db.Where("student_school_id = ? AND student_id IN ?", fs.FeeStructureSchoolID, ids).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]model.StudentModel, len(rows))
	for _, r := range rows {
		byID[r.StudentID] = r
	}

	students := make([]model.StudentModel, 0, len(ids))
	failures := make([]ChargeFailure, 0)
	for _, id := range ids {
		st, ok := byID[id]
		if !ok {
			failures = append(failures, ChargeFailure{StudentID: id, Code: FailureStudentNotFound, Reason: "student not found in this school"})
			continue
		}
		if code, reason := eligibility(fs, &st); code != "" {
			failures = append(failures, ChargeFailure{StudentID: id, Code: code, Reason: reason})
			continue
		}
		students = append(students, st)
	}
	return students, failures, nil
}

// eligibility re-checks an explicitly requested student against the
// structure. Mismatches are reported, never coerced.
func eligibility(fs *model.FeeStructureModel, st *model.StudentModel) (string, string) {
	if !st.StudentIsActive {
		return FailureStudentInactive, "student is not active"
	}
	if !fs.FeeStructureStudentType.Matches(st.StudentType) {
		return FailureStudentTypeMismatch, "fee structure is for " + string(fs.FeeStructureStudentType) + ", student is " + string(st.StudentType)
	}
	if fs.FeeStructureClassID != nil && (st.StudentClassID == nil || *st.StudentClassID != *fs.FeeStructureClassID) {
		return FailureClassMismatch, "student is not in the fee structure's class"
	}
	if fs.FeeStructureCurriculum != nil && (st.StudentCurriculum == nil || !strings.EqualFold(*st.StudentCurriculum, *fs.FeeStructureCurriculum)) {
		return FailureCurriculumMismatch, "student is not on the fee structure's curriculum"
	}
	return "", ""
}

func (s *FeeApplicationService) activeBursaries(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID][]model.BursaryModel, error) {
	var rows []model.BursaryModel
	if err := s.db.WithContext(ctx).
		Where("bursary_school_id = ? AND bursary_student_id IN ? AND bursary_is_active = ?", schoolID, studentIDs, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]model.BursaryModel, len(rows))
	for _, b := range rows {
		out[b.BursaryStudentID] = append(out[b.BursaryStudentID], b)
	}
	return out, nil
}

/* =========================================================
   Pure helpers
========================================================= */

// PickBursary returns the single bursary valid at now, nil when none is.
// Several valid bursaries are an error: no tie-break is assumed.
func PickBursary(bursaries []model.BursaryModel, now time.Time) (*model.BursaryModel, error) {
	var picked *model.BursaryModel
	for i := range bursaries {
		if !bursaries[i].ValidAt(now) {
			continue
		}
		if picked != nil {
			return nil, finerr.Wrap(finerr.ErrConflict, ErrAmbiguousBursary, "student has more than one active bursary")
		}
		picked = &bursaries[i]
	}
	return picked, nil
}

// Discount is amount × percentage / 100, rounded to cents.
func Discount(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
}

// ChargeIdempotencyKey identifies one charge of a structure to a student
// for a billing period.
func ChargeIdempotencyKey(feeStructureID, studentID uuid.UUID, period string) string {
	sum := sha3.Sum256([]byte(feeStructureID.String() + "|" + studentID.String() + "|" + period))
	return "FEE-" + hex.EncodeToString(sum[:])
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
