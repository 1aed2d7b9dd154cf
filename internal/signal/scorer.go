// Package signal scores technical-indicator snapshots into a trade-worthiness
// assessment. Scoring is additive over a weighted rule set: each rule whose
// inputs are present contributes strength and may lean the direction. A
// direction, once set, is never flipped to the opposing side by a later rule.
package signal

import (
	"fmt"
	"strings"

	"remora/internal/core"
)

const (
	// maxStrength caps the additive score.
	maxStrength = 10.0
	// analyzeThreshold is the minimum strength that justifies spending a
	// reasoning call on the snapshot.
	analyzeThreshold = 2.0
	// confluenceCount is how many same-side reasons earn the bonus.
	confluenceCount = 3
)

var (
	bullishKeywords = []string{"oversold", "bullish", "uptrend"}
	bearishKeywords = []string{"overbought", "bearish", "downtrend"}
)

// Scorer evaluates indicator snapshots. Stateless and safe for concurrent use.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score runs the rule set over one snapshot. Absent indicator fields skip
// their rule without error; identical snapshots always produce identical
// assessments.
func (s *Scorer) Score(snap *core.IndicatorSnapshot) core.SignalAssessment {
	out := core.SignalAssessment{Direction: core.DirectionNeutral}
	if snap == nil {
		return out
	}

	s.scoreRSI(snap, &out)
	s.scoreMACD(snap, &out)
	s.scoreTrend(snap, &out)
	s.scoreBollinger(snap, &out)
	s.scoreADX(snap, &out)
	s.scoreATR(snap, &out)
	s.scoreConfluence(&out)

	if out.Strength > maxStrength {
		out.Strength = maxStrength
	}
	out.ShouldAnalyze = out.Strength >= analyzeThreshold
	return out
}

func (s *Scorer) scoreRSI(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	if snap.RSI == nil {
		return
	}
	rsi := *snap.RSI
	switch {
	case rsi < 25:
		s.add(out, 2.0, core.DirectionBullish, fmt.Sprintf("RSI extreme oversold (%.1f)", rsi))
	case rsi < 35:
		s.add(out, 1.5, core.DirectionBullish, fmt.Sprintf("RSI oversold (%.1f)", rsi))
	case rsi > 75:
		s.add(out, 2.0, core.DirectionBearish, fmt.Sprintf("RSI extreme overbought (%.1f)", rsi))
	case rsi > 65:
		s.add(out, 1.5, core.DirectionBearish, fmt.Sprintf("RSI overbought (%.1f)", rsi))
	}
}

func (s *Scorer) scoreMACD(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	if snap.MACD == nil || snap.MACDSignal == nil || snap.MACDHistogram == nil {
		return
	}
	macd, sig, hist := *snap.MACD, *snap.MACDSignal, *snap.MACDHistogram
	switch {
	case macd > sig && hist > 0:
		s.add(out, 1.5, core.DirectionBullish, "MACD bullish crossover")
	case macd < sig && hist < 0:
		s.add(out, 1.5, core.DirectionBearish, "MACD bearish crossover")
	}
}

func (s *Scorer) scoreTrend(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	price := snap.Price
	if price <= 0 {
		return
	}

	emaStack := snap.EMA20 != nil && snap.EMA200 != nil
	smaStack := snap.SMA50 != nil && snap.SMA200 != nil

	if emaStack && smaStack {
		strongUp := price > *snap.EMA20 && *snap.EMA20 > *snap.EMA200 &&
			price > *snap.SMA50 && *snap.SMA50 > *snap.SMA200
		strongDown := price < *snap.EMA20 && *snap.EMA20 < *snap.EMA200 &&
			price < *snap.SMA50 && *snap.SMA50 < *snap.SMA200
		if strongUp {
			s.add(out, 1.5, core.DirectionBullish, "Strong uptrend (price above stacked EMAs and SMAs)")
			return
		}
		if strongDown {
			s.add(out, 1.5, core.DirectionBearish, "Strong downtrend (price below stacked EMAs and SMAs)")
			return
		}
	}

	if snap.EMA20 != nil && snap.SMA50 != nil &&
		price > *snap.EMA20 && *snap.EMA20 > *snap.SMA50 {
		s.add(out, 1.0, core.DirectionBullish, "Partial uptrend alignment (price above EMA20 and SMA50)")
	}
}

func (s *Scorer) scoreBollinger(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	if snap.BollUpper == nil || snap.BollLower == nil {
		return
	}
	upper, lower := *snap.BollUpper, *snap.BollLower
	if upper <= lower {
		return
	}
	pos := (snap.Price - lower) / (upper - lower)
	switch {
	case pos < 0.1:
		s.add(out, 1.0, core.DirectionBullish, "Price near lower Bollinger band (oversold zone)")
	case pos > 0.9:
		s.add(out, 1.0, core.DirectionBearish, "Price near upper Bollinger band (overbought zone)")
	}
}

func (s *Scorer) scoreADX(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	if snap.ADX == nil {
		return
	}
	adx := *snap.ADX
	switch {
	case adx > 40:
		s.add(out, 1.0, core.DirectionNeutral, fmt.Sprintf("ADX strong trend (%.1f)", adx))
	case adx > 25:
		s.add(out, 0.5, core.DirectionNeutral, fmt.Sprintf("ADX moderate trend (%.1f)", adx))
	}
}

func (s *Scorer) scoreATR(snap *core.IndicatorSnapshot, out *core.SignalAssessment) {
	if snap.ATR14 == nil || snap.Price <= 0 {
		return
	}
	pct := *snap.ATR14 / snap.Price * 100
	if pct > 5 {
		s.add(out, 0.5, core.DirectionNeutral, fmt.Sprintf("High volatility (ATR %.2f%% of price)", pct))
	}
}

// scoreConfluence runs last: three or more same-side reasons earn a bonus
// and pull the direction toward that side, subject to the same no-flip rule
// as every other write.
func (s *Scorer) scoreConfluence(out *core.SignalAssessment) {
	bull, bear := 0, 0
	for _, reason := range out.Reasons {
		lower := strings.ToLower(reason)
		if containsAny(lower, bullishKeywords) {
			bull++
		}
		if containsAny(lower, bearishKeywords) {
			bear++
		}
	}
	switch {
	case bull >= confluenceCount:
		s.add(out, 1.0, core.DirectionBullish, fmt.Sprintf("Bullish confluence (%d aligned signals)", bull))
	case bear >= confluenceCount:
		s.add(out, 1.0, core.DirectionBearish, fmt.Sprintf("Bearish confluence (%d aligned signals)", bear))
	}
}

// add applies one fired rule: strength always accumulates, the reason is
// recorded, and the direction is written only when it does not contradict an
// already-set side.
func (s *Scorer) add(out *core.SignalAssessment, weight float64, dir core.Direction, reason string) {
	out.Strength += weight
	out.Reasons = append(out.Reasons, reason)
	if dir == core.DirectionNeutral {
		return
	}
	if out.Direction == core.DirectionNeutral || out.Direction == dir {
		out.Direction = dir
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
