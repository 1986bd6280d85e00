// file: internals/features/finance/notify/notifier.go
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Receipt is what a payer is told after money is credited.
type Receipt struct {
	To            string
	StudentName   string
	Amount        decimal.Decimal
	Currency      string
	ReceiptNumber string
	Method        string
	Date          time.Time
}

type Notifier interface {
	NotifyReceipt(ctx context.Context, r Receipt) error
}

// LogNotifier only logs. Used when no mail transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) NotifyReceipt(_ context.Context, r Receipt) error {
	n.log.Info("receipt issued",
		zap.String("to", r.To),
		zap.String("receipt_number", r.ReceiptNumber),
		zap.String("amount", r.Amount.StringFixed(2)),
		zap.String("method", r.Method),
	)
	return nil
}

// Dispatcher delivers receipts off the request path. Delivery failures are
// logged and never returned.
type Dispatcher struct {
	n       Notifier
	log     *zap.Logger
	timeout time.Duration
}

func NewDispatcher(n Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{n: n, log: log.Named("notify"), timeout: 30 * time.Second}
}

// Send fires and forgets. done, when non-nil, is closed after the attempt.
func (d *Dispatcher) Send(r Receipt, done chan<- struct{}) {
	if d == nil || d.n == nil {
		if done != nil {
			close(done)
		}
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				d.log.Error("receipt notifier panicked", zap.Any("panic", rec))
			}
			if done != nil {
				close(done)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.n.NotifyReceipt(ctx, r); err != nil {
			d.log.Warn("receipt notification failed",
				zap.String("receipt_number", r.ReceiptNumber),
				zap.String("to", r.To),
				zap.Error(err),
			)
		}
	}()
}
