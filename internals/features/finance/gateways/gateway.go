// file: internals/features/finance/gateways/gateway.go
package gateways

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/finerr"
)

// Status is the provider-neutral state of a gateway session.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

const (
	NameMidtrans = "midtrans"
	NameStripe   = "stripe"
	NameXendit   = "xendit"
	NamePayOS    = "payos"
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

type InitiateRequest struct {
	// Reference is our order id; providers echo it back in callbacks.
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Customer    Customer
	CallbackURL string
	ReturnURL   string
	ExpiresIn   time.Duration
}

type InitiateResult struct {
	GatewayRef string
	PaymentURL string
	Token      string
	Status     Status
	ExpiresAt  *time.Time
}

// CallbackData is a verified provider event in canonical form.
type CallbackData struct {
	GatewayRef    string
	Status        Status
	Amount        decimal.Decimal
	Currency      string
	ProviderTxnID string
	RawStatus     string
	FailureReason string
}

// Gateway is one payment provider. Every call may block on the network and
// must honor ctx.
type Gateway interface {
	Name() string
	InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	VerifyCallback(ctx context.Context, raw []byte, signature string) (*CallbackData, error)
	QueryPaymentStatus(ctx context.Context, ref string) (*CallbackData, error)
	CancelPayment(ctx context.Context, ref string) (bool, error)
}

/* =========================================================
   Registry
========================================================= */

type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry(gs ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gs))}
	for _, g := range gs {
		r.Register(g)
	}
	return r
}

func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[strings.ToLower(g.Name())] = g
}

func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, finerr.NotFound("unknown payment gateway %q", name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

/* =========================================================
   Provider call helpers
========================================================= */

// call runs fn under timeout. A call that outlives its deadline is reported
// as unconfirmed; its eventual result is discarded.
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, finerr.Wrap(finerr.ErrGatewayTimeout, ctx.Err(), "payment provider did not respond in time")
		}
		return zero, ctx.Err()
	}
}

func notImplemented(gateway, capability string) error {
	return finerr.New(finerr.ErrNotImplemented, "%s gateway does not implement %s yet", gateway, capability)
}

// unimplemented is a declared provider whose capabilities are not built.
type unimplemented struct {
	name string
}

// NewUnimplemented returns a gateway that fails every call with
// ErrNotImplemented.
func NewUnimplemented(name string) Gateway {
	return &unimplemented{name: name}
}

func (u *unimplemented) Name() string { return u.name }

// Supported reports whether g is a built-out provider.
func Supported(g Gateway) bool {
	_, stub := g.(*unimplemented)
	return !stub
}

func (u *unimplemented) InitiatePayment(context.Context, InitiateRequest) (*InitiateResult, error) {
	return nil, notImplemented(u.name, "payment initiation")
}

func (u *unimplemented) VerifyCallback(context.Context, []byte, string) (*CallbackData, error) {
	return nil, notImplemented(u.name, "callback verification")
}

func (u *unimplemented) QueryPaymentStatus(context.Context, string) (*CallbackData, error) {
	return nil, notImplemented(u.name, "status query")
}

func (u *unimplemented) CancelPayment(context.Context, string) (bool, error) {
	return false, notImplemented(u.name, "cancellation")
}

// NewDefaultRegistry registers every provider the platform knows about.
// Only Midtrans is built out.
func NewDefaultRegistry(mt MidtransConfig, log *zap.Logger) *Registry {
	return NewRegistry(
		NewMidtrans(mt, log),
		NewUnimplemented(NameStripe),
		NewUnimplemented(NameXendit),
		NewUnimplemented(NamePayOS),
	)
}
