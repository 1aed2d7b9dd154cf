package snapshot

import (
	"fmt"
	"math"

	"remora/internal/core"
)

// summarize aggregates a snapshot window. Each aggregate skips points
// missing its indicator, so Points can exceed the sample size behind any
// single mean. Both backends summarize in Go rather than SQL so memory and
// sqlite windows read identically.
func summarize(window []core.IndicatorSnapshot) *Summary {
	if len(window) == 0 {
		return nil
	}

	s := &Summary{
		Points: len(window),
		RSIMin: math.Inf(1),
		RSIMax: math.Inf(-1),
	}

	var rsiSum, histSum, bwSum, distSum float64
	var rsiN, histN, bwN, distN int

	for _, p := range window {
		if p.RSI != nil {
			rsiSum += *p.RSI
			s.RSIMin = math.Min(s.RSIMin, *p.RSI)
			s.RSIMax = math.Max(s.RSIMax, *p.RSI)
			rsiN++
		}
		if p.MACDHistogram != nil {
			histSum += *p.MACDHistogram
			histN++
		}
		if p.BollUpper != nil && p.BollMiddle != nil && p.BollLower != nil && *p.BollMiddle != 0 {
			bwSum += (*p.BollUpper - *p.BollLower) / *p.BollMiddle
			bwN++
		}
		if p.SMA50 != nil && *p.SMA50 != 0 {
			distSum += math.Abs(p.Price-*p.SMA50) / *p.SMA50
			distN++
		}
	}

	if rsiN > 0 {
		s.RSIMean = rsiSum / float64(rsiN)
	} else {
		s.RSIMin, s.RSIMax = 0, 0
	}
	if histN > 0 {
		s.MACDHistMean = histSum / float64(histN)
	}
	if bwN > 0 {
		s.BollWidthMean = bwSum / float64(bwN)
	}
	if distN > 0 {
		s.DistSMA50Mean = distSum / float64(distN)
	}

	return s
}

// detectEvents walks a newest-first snapshot window and names indicator
// crossings between chronologically adjacent points. Index 0 is the latest
// point, so "macd_cross_up@t-0" means the histogram turned positive on the
// most recent capture. MACD events come before RSI events, each ordered
// newest first.
func detectEvents(window []core.IndicatorSnapshot) []string {
	var events []string

	for i := 0; i+1 < len(window); i++ {
		curr, prev := window[i].MACDHistogram, window[i+1].MACDHistogram
		if curr == nil || prev == nil {
			continue
		}
		switch {
		case *prev <= 0 && *curr > 0:
			events = append(events, fmt.Sprintf("macd_cross_up@t-%d", i))
		case *prev >= 0 && *curr < 0:
			events = append(events, fmt.Sprintf("macd_cross_down@t-%d", i))
		}
	}

	for i := 0; i+1 < len(window); i++ {
		curr, prev := window[i].RSI, window[i+1].RSI
		if curr == nil || prev == nil {
			continue
		}
		switch {
		case *prev <= 30 && *curr > 30:
			events = append(events, fmt.Sprintf("rsi_out_of_oversold@t-%d", i))
		case *prev >= 70 && *curr < 70:
			events = append(events, fmt.Sprintf("rsi_out_of_overbought@t-%d", i))
		}
	}

	return events
}
