package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type funcNotifier func(ctx context.Context, r Receipt) error

func (f funcNotifier) NotifyReceipt(ctx context.Context, r Receipt) error { return f(ctx, r) }

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was never attempted")
	}
}

func TestDispatcher_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(funcNotifier(func(context.Context, Receipt) error {
		return errors.New("smtp down")
	}), zap.New(core))

	done := make(chan struct{})
	d.Send(Receipt{To: "p@example.com", ReceiptNumber: "RCP202500001", Amount: decimal.NewFromInt(150)}, done)
	wait(t, done)

	require.Equal(t, 1, logs.FilterMessage("receipt notification failed").Len())
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d := NewDispatcher(funcNotifier(func(context.Context, Receipt) error {
		panic("boom")
	}), zap.NewNop())

	done := make(chan struct{})
	d.Send(Receipt{ReceiptNumber: "RCP202500002"}, done)
	wait(t, done)
}

func TestDispatcher_Delivers(t *testing.T) {
	var got atomic.Value
	d := NewDispatcher(funcNotifier(func(_ context.Context, r Receipt) error {
		got.Store(r.ReceiptNumber)
		return nil
	}), zap.NewNop())

	done := make(chan struct{})
	d.Send(Receipt{ReceiptNumber: "RCP202500003"}, done)
	wait(t, done)
	assert.Equal(t, "RCP202500003", got.Load())
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	done := make(chan struct{})
	d.Send(Receipt{}, done)
	wait(t, done)
}

func TestSMTPNotifier_RequiresRecipient(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 2525, From: "bursar@example.com"})
	err := n.NotifyReceipt(context.Background(), Receipt{ReceiptNumber: "RCP202500004"})
	assert.Error(t, err)
}
