package exchange

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remora/internal/core"
)

func TestNormalizeQuantity_MinNotionalForcesFloor(t *testing.T) {
	// 50 USDT at 58500 raw-computes to 0.000854, below the BTCUSDT
	// minimum quantity; the floor lifts it to exactly one step.
	qty, err := NormalizeQuantity("BTCUSDT", 58500, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, qty, 1e-12)
}

func TestNormalizeQuantity_RoundsHalfUpToStep(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		amount float64
		want   float64
	}{
		{"exact step", 10000, 30, 0.003},
		{"rounds up at half", 10000, 35, 0.004},
		{"rounds down below half", 10000, 34, 0.003},
		{"rounds up above half", 10000, 36, 0.004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, err := NormalizeQuantity("BTCUSDT", tt.price, tt.amount)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, qty, 1e-12)
		})
	}
}

func TestNormalizeQuantity_RaisesToMinQty(t *testing.T) {
	// 6 USDT at 3000 is 0.002 ETH, below the 0.01 minimum.
	qty, err := NormalizeQuantity("ETHUSDT", 3000, 6)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, qty, 1e-12)
}

func TestNormalizeQuantity_RaisesToMinNotional(t *testing.T) {
	// 2 USDT at 0.5 is 4 XRP, above min qty but worth less than the
	// 5 USDT minimum notional; the order grows until it qualifies.
	qty, err := NormalizeQuantity("XRPUSDT", 0.5, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10, qty, 1e-9)
	assert.GreaterOrEqual(t, qty*0.5, 5.0)
}

func TestNormalizeQuantity_UnknownSymbolUsesDefaults(t *testing.T) {
	qty, err := NormalizeQuantity("DOGEUSDT", 100, 0.5)
	require.NoError(t, err)
	// Default filters: min qty 0.001, step 0.001, min notional 5.
	assert.InDelta(t, 0.05, qty, 1e-12)
	assert.GreaterOrEqual(t, qty*100, 5.0)
}

func TestNormalizeQuantity_InvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		amount float64
	}{
		{"zero price", 0, 50},
		{"negative price", -1, 50},
		{"zero amount", 58500, 0},
		{"negative amount", 58500, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeQuantity("BTCUSDT", tt.price, tt.amount)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidParameter))
		})
	}
}

func TestNormalizeQuantity_Deterministic(t *testing.T) {
	a, err := NormalizeQuantity("BTCUSDT", 58500, 50)
	require.NoError(t, err)
	b, err := NormalizeQuantity("BTCUSDT", 58500, 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeQuantity_InvariantsHold(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "UNKNOWNUSDT"}
	prices := []float64{0.02, 0.5, 3.7, 250, 3000, 58500, 104000}
	amounts := []float64{0.5, 5, 17, 50, 333.33, 10000}

	for _, sym := range symbols {
		f := FiltersFor(sym)
		for _, price := range prices {
			for _, amount := range amounts {
				qty, err := NormalizeQuantity(sym, price, amount)
				require.NoError(t, err)

				assert.GreaterOrEqual(t, qty, f.MinQty,
					"%s price=%v amount=%v: below min qty", sym, price, amount)
				assert.GreaterOrEqual(t, qty*price, f.MinNotional-1e-6,
					"%s price=%v amount=%v: below min notional", sym, price, amount)

				steps := qty / f.QtyStep
				assert.InDelta(t, math.Round(steps), steps, 1e-6,
					"%s price=%v amount=%v: not on step grid", sym, price, amount)
			}
		}
	}
}

func TestFiltersFor(t *testing.T) {
	btc := FiltersFor("BTCUSDT")
	if btc.MinQty != 0.001 || btc.QtyStep != 0.001 || btc.MinNotional != 5 {
		t.Errorf("unexpected BTCUSDT filters: %+v", btc)
	}
	def := FiltersFor("NOPEUSDT")
	if def.MinQty != 0.001 || def.QtyStep != 0.001 {
		t.Errorf("unexpected default filters: %+v", def)
	}
}
