package analyzer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remora/internal/exchange"
	"remora/internal/storage/snapshot"
)

const systemPrompt = "You are a professional trader, expert in technical " +
	"analysis and risk management. Always respond with a single valid JSON object."

// buildPrompt renders the market context into the oracle prompt. The layout
// stays stable across cycles so replies remain comparable; only the numbers
// move.
func buildPrompt(mc *MarketContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# PROFESSIONAL TECHNICAL ANALYSIS - 3X LEVERAGED TRADING\n\n")
	fmt.Fprintf(&b, "**OPERATING CONTEXT:**\n")
	fmt.Fprintf(&b, "- Symbol: %s\n", mc.Symbol)
	fmt.Fprintf(&b, "- Timeframe: %s (medium-horizon analysis)\n", mc.Interval)
	fmt.Fprintf(&b, "- Leverage: 3X (risk management is critical)\n")
	fmt.Fprintf(&b, "- Modes available: LONG or SHORT\n")
	fmt.Fprintf(&b, "- Timestamp: %s\n\n", mc.Now.Format(time.RFC3339))

	writePositionSection(&b, mc.Position)
	writeLatestSection(&b, mc)
	writeSummarySection(&b, "30", mc.Summary30)
	writeSummarySection(&b, "60", mc.Summary60)
	writeEventsSection(&b, mc.Events)

	fmt.Fprintf(&b, "## RECENT HISTORY:\n%d snapshots available for momentum analysis.\n\n", len(mc.Recent))
	b.WriteString("---\n\n")
	writeInstructions(&b, mc.Position != nil)

	return b.String()
}

func writePositionSection(b *strings.Builder, pos *exchange.Position) {
	if pos == nil {
		b.WriteString("## POSITION STATUS:\n- No active position - analysis targets a new entry\n\n")
		return
	}

	direction := "LONG"
	if pos.Side == exchange.SideSell {
		direction = "SHORT"
	}
	pnlState := "FLAT"
	switch {
	case pos.UnrealizedPL > 0:
		pnlState = "WINNING"
	case pos.UnrealizedPL < 0:
		pnlState = "LOSING"
	}

	fmt.Fprintf(b, "## ACTIVE POSITION:\n")
	fmt.Fprintf(b, "- Symbol: %s\n", pos.Symbol)
	fmt.Fprintf(b, "- Side: %s (%s)\n", pos.Side, direction)
	fmt.Fprintf(b, "- Size: %s\n", formatFloat(pos.Size))
	fmt.Fprintf(b, "- Average Price: $%.2f\n", pos.EntryPrice)
	fmt.Fprintf(b, "- Mark Price: $%.2f\n", pos.MarkPrice)
	fmt.Fprintf(b, "- Unrealized PnL: $%.2f (%s)\n", pos.UnrealizedPL, pnlState)
	if pos.Leverage > 0 {
		fmt.Fprintf(b, "- Leverage: %sx\n", formatFloat(pos.Leverage))
	}
	if pos.EntryPrice > 0 {
		fmt.Fprintf(b, "- Mark vs Entry: %+.2f%%\n", (pos.MarkPrice-pos.EntryPrice)/pos.EntryPrice*100)
	}
	b.WriteString("\n**POSITION MANAGEMENT REQUIRED**: an exposure already exists; " +
		"weigh keeping it, adding to it, or reversing before proposing any new entry.\n\n")
}

func writeLatestSection(b *strings.Builder, mc *MarketContext) {
	latest := mc.Latest

	b.WriteString("## CURRENT TECHNICAL DATA:\n")
	fmt.Fprintf(b, "- **RSI**: %s (momentum)\n", val(latest.RSI))
	fmt.Fprintf(b, "- **MACD**: %s / Signal: %s\n", val(latest.MACD), val(latest.MACDSignal))
	fmt.Fprintf(b, "- **MACD Histogram**: %s (divergence)\n", val(latest.MACDHistogram))
	fmt.Fprintf(b, "- **EMA20/EMA200**: %s / %s\n", val(latest.EMA20), val(latest.EMA200))
	fmt.Fprintf(b, "- **SMA50/SMA200**: %s / %s (price vs trend)\n", val(latest.SMA50), val(latest.SMA200))
	fmt.Fprintf(b, "- **ADX**: %s (trend strength)\n", val(latest.ADX))
	fmt.Fprintf(b, "- **ATR14**: %s (volatility)\n", val(latest.ATR14))
	fmt.Fprintf(b, "- **Bollinger Bands**: Upper: %s | Middle: %s | Lower: %s\n",
		val(latest.BollUpper), val(latest.BollMiddle), val(latest.BollLower))
	fmt.Fprintf(b, "- **Current Price**: $%s\n\n", formatFloat(latest.Price))
}

func writeSummarySection(b *strings.Builder, window string, sum *snapshot.Summary) {
	fmt.Fprintf(b, "## HISTORICAL CONTEXT (%s points):\n", window)
	if sum == nil {
		b.WriteString("- Insufficient history for this window\n\n")
		return
	}
	fmt.Fprintf(b, "- RSI Range: %.1f-%.1f (mean: %.1f)\n", sum.RSIMin, sum.RSIMax, sum.RSIMean)
	fmt.Fprintf(b, "- MACD Hist Mean: %.3f\n", sum.MACDHistMean)
	fmt.Fprintf(b, "- BB Volatility: %.3f\n", sum.BollWidthMean)
	fmt.Fprintf(b, "- Distance vs SMA50: %.3f\n", sum.DistSMA50Mean)
	fmt.Fprintf(b, "- Points: %d\n\n", sum.Points)
}

func writeEventsSection(b *strings.Builder, events []string) {
	b.WriteString("## DETECTED EVENTS:\n")
	if len(events) == 0 {
		b.WriteString("No significant events detected\n\n")
		return
	}
	b.WriteString(strings.Join(events, ", "))
	b.WriteString("\n\n")
}

func writeInstructions(b *strings.Builder, hasPosition bool) {
	b.WriteString("**ANALYSIS INSTRUCTIONS:**\n\n")
	b.WriteString("You are an experienced professional trader with 10+ years in crypto markets. ")
	if hasPosition {
		b.WriteString("Your goal is to manage the current exposure optimally while judging any new entry on the 4H timeframe.\n\n")
	} else {
		b.WriteString("Your goal is to identify entry opportunities with a strong risk/reward profile on the 4H timeframe.\n\n")
	}

	b.WriteString("**ANALYZE:**\n")
	b.WriteString("1. **Momentum**: does the RSI suggest oversold (<30) or overbought (>70)? Any divergences?\n")
	b.WriteString("2. **Trend**: is the MACD crossing? Does the ADX show trending strength (>25)?\n")
	b.WriteString("3. **Price vs mean**: is price near the SMA? Breaking support or resistance?\n")
	b.WriteString("4. **Volatility**: are the Bollinger Bands expanding or contracting?\n")
	b.WriteString("5. **Context**: do the detected events support the decision?\n\n")

	b.WriteString("**REQUIRED DECISION:**\n")
	b.WriteString("- **ACTION**: LONG, SHORT, or WAIT\n")
	b.WriteString("- **CONFIDENCE**: high (>80), medium (50-80), low (<50), as an integer percentage\n")
	b.WriteString("- **ENTRY**: suggested entry price\n")
	b.WriteString("- **STOP LOSS**: risk level (at most 2% away under 3X leverage)\n")
	b.WriteString("- **TAKE PROFIT**: realistic target for the next 4-12 hours\n")
	b.WriteString("- **REASON**: convincing, professional technical argument\n\n")

	b.WriteString("**RISK PROFILE**: aggressive but calculated. Take positions when the odds are favorable, keep risk management strict.\n\n")

	b.WriteString("**RESPOND WITH ONE CONCISE JSON OBJECT:**\n")
	b.WriteString(`{
  "action": "LONG|SHORT|WAIT",
  "confidence": 85,
  "entry_price": 58500,
  "stop_loss": 57200,
  "take_profit": 61200,
  "risk_reward_ratio": 2.3,
  "justification": "One-paragraph technical argument",
  "key_factors": ["Factor 1", "Factor 2", "Factor 3"],
  "timeframe_outlook": "4-12h",
  "risk_level": "LOW|MEDIUM|HIGH"
}`)
	b.WriteString("\n\n**SPECIFIC INSTRUCTIONS:**\n")
	b.WriteString("- At most 3 key factors, one line each\n")
	b.WriteString("- No long explanations, concise data only\n")
	b.WriteString("- Prices rounded to whole numbers\n")
	b.WriteString("- Confidence as an integer percentage\n")
	b.WriteString("- This message is relayed as a mobile alert\n\n")
	b.WriteString("**BE DECISIVE AND CONCISE.**")
}

// val renders an optional indicator, N/A when the feed had no value.
func val(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return formatFloat(*p)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
