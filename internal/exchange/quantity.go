package exchange

import (
	"math"

	"remora/internal/core"
)

// SymbolFilters describes the venue's lot-size constraints for one symbol.
type SymbolFilters struct {
	// MinQty is the minimum tradable quantity in base currency.
	MinQty float64
	// QtyStep is the quantity increment.
	QtyStep float64
	// MinNotional is the minimum order value in quote currency.
	MinNotional float64
}

// defaultMinNotional is the venue-wide minimum order value in USDT.
const defaultMinNotional = 5.0

// symbolFilters holds lot sizes for the linear contracts this bot trades.
// Symbols missing from the table fall back to a conservative default.
var symbolFilters = map[string]SymbolFilters{
	"BTCUSDT": {MinQty: 0.001, QtyStep: 0.001, MinNotional: defaultMinNotional},
	"ETHUSDT": {MinQty: 0.01, QtyStep: 0.01, MinNotional: defaultMinNotional},
	"BNBUSDT": {MinQty: 0.01, QtyStep: 0.01, MinNotional: defaultMinNotional},
	"SOLUSDT": {MinQty: 0.1, QtyStep: 0.1, MinNotional: defaultMinNotional},
	"XRPUSDT": {MinQty: 1, QtyStep: 1, MinNotional: defaultMinNotional},
}

// FiltersFor returns the lot-size filters for a symbol.
func FiltersFor(symbol string) SymbolFilters {
	if f, ok := symbolFilters[symbol]; ok {
		return f
	}
	return SymbolFilters{MinQty: 0.001, QtyStep: 0.001, MinNotional: defaultMinNotional}
}

// NormalizeQuantity converts a quote-currency budget into a tradable
// base-currency quantity: raise to the symbol's minimum quantity, raise
// again if the order value would sit below the minimum notional, then round
// half-up to the quantity step. Deterministic, so repeated execution
// attempts for the same strategy always request the same quantity.
func NormalizeQuantity(symbol string, entryPrice, usdtAmount float64) (float64, error) {
	if !(entryPrice > 0) {
		return 0, core.Errorf(core.ErrInvalidParameter, "entry price must be positive, got %v", entryPrice)
	}
	if !(usdtAmount > 0) {
		return 0, core.Errorf(core.ErrInvalidParameter, "usdt amount must be positive, got %v", usdtAmount)
	}

	f := FiltersFor(symbol)
	qty := usdtAmount / entryPrice

	if qty < f.MinQty {
		qty = f.MinQty
	}
	if qty*entryPrice < f.MinNotional {
		qty = f.MinNotional / entryPrice
	}

	// Round half-up to the step grid.
	qty = math.Floor(qty/f.QtyStep+0.5) * f.QtyStep

	// Rounding down by half a step can undercut the floors in edge cases;
	// snap back up so the result always honors min qty and min notional.
	if qty < f.MinQty {
		qty = f.MinQty
	}
	if qty*entryPrice < f.MinNotional {
		qty = math.Ceil(f.MinNotional/entryPrice/f.QtyStep) * f.QtyStep
	}

	return qty, nil
}
