package parser

import (
	"regexp"
	"strings"

	"signalrelay/internal/models"
)

var patternStrengthPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

// categorizePattern maps the free-text pattern description onto one of the
// fixed categories by substring match, English or Russian.
func categorizePattern(text string) models.PatternKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "trend") && strings.Contains(lower, "revers"):
		return models.PatternTrendReversal
	case strings.Contains(lower, "пробой"), strings.Contains(lower, "breakout"):
		return models.PatternBreakout
	case strings.Contains(lower, "откат"), strings.Contains(lower, "pullback"):
		return models.PatternPullback
	case strings.Contains(lower, "дивергенц"), strings.Contains(lower, "diverg"):
		return models.PatternDivergence
	case strings.Contains(lower, "ob") && strings.Contains(lower, "revers"):
		return models.PatternOBReversal
	case strings.Contains(lower, "os") && strings.Contains(lower, "revers"):
		return models.PatternOSReversal
	default:
		return models.PatternUnknown
	}
}

// extractSide reads the colored emoji marker: green ⇒ long, red ⇒ short.
// Falls back to an explicit LONG/SHORT word when no marker is present.
func extractSide(text string) models.Side {
	switch {
	case strings.Contains(text, "🟢"):
		return models.SideLong
	case strings.Contains(text, "🔴"):
		return models.SideShort
	}
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "LONG"):
		return models.SideLong
	case strings.Contains(upper, "SHORT"):
		return models.SideShort
	default:
		return ""
	}
}

func extractPatternStrength(text string) float64 {
	m := patternStrengthPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	f := parseFloatField(m[1])
	if f == nil {
		return 0
	}
	return *f
}

// parseStrongMedium builds the strong_signal/medium_signal variant. priority
// is 1 for strong, 2 for medium (§4.2), and selects the resulting SignalType.
func parseStrongMedium(ctx parseContext, priority int) *models.TradingSignal {
	ticker := extractTicker(ctx.text)
	exchange := extractExchange(ctx.text)
	side := extractSide(ctx.text)
	if ticker == nil || exchange == "" || side == "" {
		return nil
	}

	pattern := categorizePattern(ctx.text)
	strength := extractPatternStrength(ctx.text)
	rsi, rsiSignal := extractRSI(ctx.text)
	signalTime := extractSignalTime(ctx.text, ctx.messageDate)

	conf := newConfidence(50)
	conf.add(15, "ticker identified")
	conf.add(10, "exchange identified")
	if pattern != models.PatternUnknown {
		conf.add(10, "pattern categorized")
	} else {
		conf.subtract(15, "pattern uncategorized")
	}
	if strength >= 50 {
		conf.add(10, "high pattern strength")
	}
	if rsiSignal != nil && *rsiSignal != models.RSINeutral {
		conf.add(10, "RSI confirms extreme reading")
	}
	if signalTime != nil {
		conf.add(5, "signal time present")
	}

	signalType := models.SignalMediumSignal
	if priority == 1 {
		signalType = models.SignalStrongSignal
	}

	return &models.TradingSignal{
		Type:     signalType,
		Ticker:   ticker,
		Exchange: strPtr(exchange),
		Direction: &models.DirectionInfo{
			Side:            side,
			Pattern:         pattern,
			PatternStrength: strength,
		},
		Indicators: &models.Indicators{
			RSI:       rsi,
			RSISignal: rsiSignal,
		},
		Confidence: conf.build(),
	}
}

func strPtr(s string) *string { return &s }
