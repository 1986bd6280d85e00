// file: internals/features/finance/ledger/service/ledger_service.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	database "schoolfinance_backend/internals/databases"
	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/ledger/model"
)

var (
	ErrDuplicateRequest = errors.New("ledger: idempotency key already used")
	ErrConcurrentUpdate = errors.New("ledger: account changed concurrently")
)

// LedgerService owns StudentAccount balances. Every balance change in the
// system goes through ApplyTransaction / ApplyTransactionTx.
type LedgerService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time

	reversalHooks []ReversalHook
}

func NewLedgerService(db *gorm.DB, log *zap.Logger) *LedgerService {
	return &LedgerService{db: db, log: log.Named("ledger"), now: time.Now}
}

// ApplyInput describes one ledger write. Direction is only read for
// ADJUSTMENT; CHARGE and PAYMENT have fixed signs.
type ApplyInput struct {
	SchoolID       uuid.UUID
	AccountID      uuid.UUID
	Type           model.TransactionType
	Amount         decimal.Decimal
	Direction      model.Direction
	Description    string
	Reference      string
	PaymentMethod  *string
	ProcessedBy    uuid.UUID
	Notes          string
	IdempotencyKey string
	ReversesID     *uuid.UUID
}

func (in *ApplyInput) direction() model.Direction {
	switch in.Type {
	case model.TransactionTypeCharge:
		return model.DirectionDebit
	case model.TransactionTypePayment:
		return model.DirectionCredit
	default:
		return in.Direction
	}
}

func validateApply(in *ApplyInput) error {
	if in.AccountID == uuid.Nil {
		return finerr.Validation("account id is required")
	}
	if !in.Type.Valid() {
		return finerr.Validation("unknown transaction type %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return finerr.Validation("amount must be greater than zero")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return finerr.Validation("amount must have at most 2 decimal places")
	}
	if in.Type == model.TransactionTypeAdjustment && !in.Direction.Valid() {
		return finerr.Validation("adjustment requires an explicit direction")
	}
	return nil
}

// ApplyTransaction runs one ledger write in its own database transaction.
func (s *LedgerService) ApplyTransaction(ctx context.Context, in ApplyInput) (*model.LedgerTransactionModel, error) {
	if err := validateApply(&in); err != nil {
		return nil, err
	}
	var out *model.LedgerTransactionModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.ApplyTransactionTx(ctx, tx, in)
		if err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTransactionTx performs the locked read-modify-write inside tx. The
// caller owns commit/rollback, so a failure anywhere in the caller's unit of
// work leaves the account untouched.
func (s *LedgerService) ApplyTransactionTx(ctx context.Context, tx *gorm.DB, in ApplyInput) (*model.LedgerTransactionModel, error) {
	if err := validateApply(&in); err != nil {
		return nil, err
	}
	tx = tx.WithContext(ctx)

	var acct model.StudentAccountModel
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_account_id = ?", in.AccountID)
	if in.SchoolID != uuid.Nil {
		q = q.Where("student_account_school_id = ?", in.SchoolID)
	}
	if err := q.Take(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("student account %s not found", in.AccountID)
		}
		return nil, err
	}

	// checked under the account lock so same-account writers see each other
	var key *string
	if in.IdempotencyKey != "" {
		var n int64
		if err := tx.Model(&model.LedgerTransactionModel{}).
			Where("ledger_txn_idempotency_key = ?", in.IdempotencyKey).
			Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, duplicateRequest(in.IdempotencyKey)
		}
		k := in.IdempotencyKey
		key = &k
	}

	dir := in.direction()
	before := acct.StudentAccountBalance
	txn := model.LedgerTransactionModel{
		LedgerTxnID:             uuid.New(),
		LedgerTxnSchoolID:       acct.StudentAccountSchoolID,
		LedgerTxnAccountID:      acct.StudentAccountID,
		LedgerTxnSequence:       acct.StudentAccountVersion + 1,
		LedgerTxnType:           in.Type,
		LedgerTxnDirection:      dir,
		LedgerTxnAmount:         in.Amount,
		LedgerTxnBalanceBefore:  before,
		LedgerTxnDescription:    in.Description,
		LedgerTxnReference:      in.Reference,
		LedgerTxnPaymentMethod:  in.PaymentMethod,
		LedgerTxnProcessedBy:    in.ProcessedBy,
		LedgerTxnProcessedAt:    s.now().UTC().Truncate(time.Microsecond),
		LedgerTxnNotes:          in.Notes,
		LedgerTxnReversesID:     in.ReversesID,
		LedgerTxnIdempotencyKey: key,
		LedgerTxnPrevHash:       acct.StudentAccountLastHash,
	}
	txn.LedgerTxnBalanceAfter = before.Add(txn.SignedAmount())
	txn.LedgerTxnHash = txn.ComputeHash()

	if err := tx.Create(&txn).Error; err != nil {
		return nil, insertError(err, in.IdempotencyKey)
	}

	updates := map[string]any{
		"student_account_balance":    txn.LedgerTxnBalanceAfter,
		"student_account_version":    acct.StudentAccountVersion + 1,
		"student_account_last_hash":  txn.LedgerTxnHash,
		"student_account_updated_at": txn.LedgerTxnProcessedAt,
	}
	if in.Type == model.TransactionTypePayment {
		updates["student_account_last_payment_date"] = txn.LedgerTxnProcessedAt
		updates["student_account_last_payment_amount"] = decimal.NewNullDecimal(in.Amount)
	}
	res := tx.Model(&model.StudentAccountModel{}).
		Where("student_account_id = ? AND student_account_version = ?", acct.StudentAccountID, acct.StudentAccountVersion).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, finerr.Wrap(finerr.ErrConflict, ErrConcurrentUpdate, "account %s changed concurrently, retry the request", acct.StudentAccountID)
	}

	s.log.Debug("ledger write",
		zap.String("account_id", acct.StudentAccountID.String()),
		zap.String("type", string(in.Type)),
		zap.String("amount", in.Amount.StringFixed(2)),
		zap.String("balance_after", txn.LedgerTxnBalanceAfter.StringFixed(2)),
		zap.Int64("sequence", txn.LedgerTxnSequence),
	)
	return &txn, nil
}

func duplicateRequest(key string) error {
	return finerr.Wrap(finerr.ErrConflict, ErrDuplicateRequest, "request %s was already applied", key)
}

// insertError classifies a failed transaction insert. A writer on another
// account can still race past the key lookup; the unique index settles it.
func insertError(err error, key string) error {
	switch {
	case key != "" && database.IsUniqueViolationOn(err, "idempotency_key"):
		return duplicateRequest(key)
	case database.IsUniqueViolation(err):
		return finerr.Wrap(finerr.ErrConflict, ErrConcurrentUpdate, "ledger write conflicted, retry the request")
	}
	return err
}

/* =========================================================
   Accounts
========================================================= */

// EnsureAccount returns the student's account, creating it on first use.
func (s *LedgerService) EnsureAccount(ctx context.Context, schoolID, studentID uuid.UUID) (*model.StudentAccountModel, error) {
	accts, err := s.EnsureAccounts(ctx, schoolID, []uuid.UUID{studentID})
	if err != nil {
		return nil, err
	}
	acct, ok := accts[studentID]
	if !ok {
		return nil, finerr.NotFound("account for student %s not found", studentID)
	}
	return &acct, nil
}

// EnsureAccounts bulk-creates missing accounts in short batches and returns
// every account keyed by student id. Accounts of another school are left
// out of the result.
func (s *LedgerService) EnsureAccounts(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID]model.StudentAccountModel, error) {
	out := make(map[uuid.UUID]model.StudentAccountModel, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	db := s.db.WithContext(ctx)

	if err := s.loadAccounts(db, schoolID, studentIDs, out); err != nil {
		return nil, err
	}

	missing := make([]model.StudentAccountModel, 0)
	for _, id := range studentIDs {
		if _, ok := out[id]; ok {
			continue
		}
		missing = append(missing, model.StudentAccountModel{
			StudentAccountID:        uuid.New(),
			StudentAccountSchoolID:  schoolID,
			StudentAccountStudentID: id,
			StudentAccountBalance:   decimal.Zero,
		})
	}
	if len(missing) == 0 {
		return out, nil
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&missing, 200).Error; err != nil {
		return nil, err
	}
	s.log.Info("created student accounts", zap.Int("count", len(missing)), zap.String("school_id", schoolID.String()))

	if err := s.loadAccounts(db, schoolID, studentIDs, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) loadAccounts(db *gorm.DB, schoolID uuid.UUID, studentIDs []uuid.UUID, out map[uuid.UUID]model.StudentAccountModel) error {
	const chunk = 500
	for start := 0; start < len(studentIDs); start += chunk {
		end := min(start+chunk, len(studentIDs))
		var rows []model.StudentAccountModel
		if err := db.Where("student_account_school_id = ? AND student_account_student_id IN ?", schoolID, studentIDs[start:end]).
			Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			out[r.StudentAccountStudentID] = r
		}
	}
	return nil
}

func (s *LedgerService) GetAccountByStudent(ctx context.Context, schoolID, studentID uuid.UUID) (*model.StudentAccountModel, error) {
	var acct model.StudentAccountModel
	err := s.db.WithContext(ctx).
		Where("student_account_school_id = ? AND student_account_student_id = ?", schoolID, studentID).
		Take(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("no account for student %s", studentID)
		}
		return nil, err
	}
	return &acct, nil
}

/* =========================================================
   Transactions (read)
========================================================= */

func (s *LedgerService) GetTransaction(ctx context.Context, schoolID, txnID uuid.UUID) (*model.LedgerTransactionModel, error) {
	var txn model.LedgerTransactionModel
	err := s.db.WithContext(ctx).
		Where("ledger_txn_id = ? AND ledger_txn_school_id = ?", txnID, schoolID).
		Take(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, finerr.NotFound("transaction %s not found", txnID)
		}
		return nil, err
	}
	return &txn, nil
}

// ListTransactions returns the newest rows first.
func (s *LedgerService) ListTransactions(ctx context.Context, schoolID, accountID uuid.UUID, limit, offset int) ([]model.LedgerTransactionModel, int64, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.LedgerTransactionModel{}).
			Where("ledger_txn_school_id = ? AND ledger_txn_account_id = ?", schoolID, accountID)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := make([]model.LedgerTransactionModel, 0)
	if err := base().Order("ledger_txn_sequence DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
