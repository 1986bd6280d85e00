package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/features/finance/finerr"
	"schoolfinance_backend/internals/features/finance/payments/model"
	helperAuth "schoolfinance_backend/internals/helpers/auth"
)

type StudentSummary struct {
	StudentID   uuid.UUID       `json:"student_id"`
	StudentName string          `json:"student_name"`
	Balance     decimal.Decimal `json:"balance"`
}

type StatusView struct {
	Payment model.PaymentModel             `json:"payment"`
	Gateway *model.GatewayTransactionModel `json:"gateway,omitempty"`
	Student StudentSummary                 `json:"student"`
}

// PaymentStatus returns the payment with its gateway session and a student
// summary. With refresh, an unfinished session is polled first; a failed
// poll still returns the stored state.
func (s *PaymentService) PaymentStatus(ctx context.Context, caller *helperAuth.Identity, paymentID uuid.UUID, refresh bool) (*StatusView, error) {
	if caller == nil {
		return nil, finerr.New(finerr.ErrUnauthorized, "caller identity is required")
	}
	p, err := s.loadPayment(ctx, caller.SchoolID, paymentID)
	if err != nil {
		return nil, err
	}
	st, err := s.loadStudent(ctx, s.db, p.PaymentSchoolID, p.PaymentStudentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudent(caller, st); err != nil {
		return nil, err
	}

	view := &StatusView{Payment: *p}
	var gt model.GatewayTransactionModel
	err = s.db.WithContext(ctx).Where("gateway_txn_payment_id = ?", p.PaymentID).Take(&gt).Error
	switch {
	case err == nil:
		if refresh && !gt.GatewayTxnStatus.IsTerminal() {
			if res, perr := s.Poll(ctx, gt.GatewayTxnGateway, gt.GatewayTxnRef); perr != nil {
				s.log.Warn("status refresh failed",
					zap.String("payment_id", p.PaymentID.String()),
					zap.Error(perr),
				)
			} else {
				gt = res.GatewayTransaction
				view.Payment = res.Payment
			}
		}
		view.Gateway = &gt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	view.Student = StudentSummary{StudentID: st.StudentID, StudentName: st.StudentName}
	if acct, err := s.ledger.GetAccountByStudent(ctx, st.StudentSchoolID, st.StudentID); err == nil {
		view.Student.Balance = acct.StudentAccountBalance
	}
	return view, nil
}
