package gateways

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolfinance_backend/internals/features/finance/finerr"
)

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(MidtransConfig{}, zap.NewNop())
	assert.Equal(t, []string{"midtrans", "payos", "stripe", "xendit"}, r.Names())

	g, err := r.Get(" Midtrans ")
	require.NoError(t, err)
	assert.Equal(t, NameMidtrans, g.Name())
	assert.True(t, Supported(g))

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, finerr.ErrNotFound)
}

func TestUnimplementedGatewaysFailFast(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{NameStripe, NameXendit, NamePayOS} {
		g := NewUnimplemented(name)
		assert.False(t, Supported(g), name)
		_, err := g.InitiatePayment(ctx, InitiateRequest{})
		assert.ErrorIs(t, err, finerr.ErrNotImplemented, name)
		_, err = g.VerifyCallback(ctx, nil, "")
		assert.ErrorIs(t, err, finerr.ErrNotImplemented, name)
		_, err = g.QueryPaymentStatus(ctx, "ref")
		assert.ErrorIs(t, err, finerr.ErrNotImplemented, name)
		ok, err := g.CancelPayment(ctx, "ref")
		assert.False(t, ok)
		assert.ErrorIs(t, err, finerr.ErrNotImplemented, name)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount, currency string
		want             int64
		ok               bool
	}{
		{"150000", "IDR", 150000, true},
		{"150000.00", "idr", 150000, true},
		{"150000.50", "IDR", 0, false},
		{"12.34", "KES", 1234, true},
		{"12.345", "USD", 0, false},
		{"1.234", "KWD", 1234, true},
		{"10", "XYZ", 0, false},
		{"0", "USD", 0, false},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if !tc.ok {
			assert.ErrorIs(t, err, finerr.ErrValidation, "%s %s", tc.amount, tc.currency)
			continue
		}
		require.NoError(t, err, "%s %s", tc.amount, tc.currency)
		assert.Equal(t, tc.want, got)
	}

	back, err := FromMinorUnits(1234, "KES")
	require.NoError(t, err)
	assert.True(t, back.Equal(decimal.RequireFromString("12.34")))
}
