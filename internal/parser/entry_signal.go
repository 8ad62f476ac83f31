package parser

import (
	"regexp"
	"strings"
	"time"

	"signalrelay/internal/models"
)

var (
	entryMarkerPattern    = regexp.MustCompile(`\*\*Entry:\*\*`)
	targetsMarkerPattern  = regexp.MustCompile(`\*\*Targets:\*\*`)
	entryPricePattern     = regexp.MustCompile(`\*\*Entry:\*\*\s*([\d.]+)`)
	targetsListPattern    = regexp.MustCompile(`\*\*Targets:\*\*\s*([^\n]+)`)
	stop05Pattern         = regexp.MustCompile(`\*\*Stop-Loss 0\.5%:\*\*\s*([\d.]+)`)
	stop1Pattern          = regexp.MustCompile(`\*\*Stop-Loss 1%:\*\*\s*([\d.]+)`)
	expectedProfitPattern = regexp.MustCompile(`\*\*Expected Profit:\*\*\s*([^\n]+)`)
	progressPattern       = regexp.MustCompile(`\*\*Progress:\*\*\s*([^\n]+)`)
	numberListSplit       = regexp.MustCompile(`[\d.]+`)
)

// isEntrySignal reports whether both the Entry and Targets markers are
// present, the entry_signal detection test (§4.2 step 6).
func isEntrySignal(text string) bool {
	return entryMarkerPattern.MatchString(text) && targetsMarkerPattern.MatchString(text)
}

func extractTargets(text string) []float64 {
	m := targetsListPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	raw := numberListSplit.FindAllString(m[1], -1)
	var out []float64
	for _, r := range raw {
		if f := parseFloatField(r); f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// parseEntrySignal builds the entry_signal variant (priority 2).
func parseEntrySignal(ctx parseContext) *models.TradingSignal {
	ticker := extractTicker(ctx.text)
	exchange := extractExchange(ctx.text)
	side := extractSide(ctx.text)
	if ticker == nil || exchange == "" || side == "" {
		return nil
	}

	entryPrice := extractField(entryPricePattern, ctx.text)
	targets := extractTargets(ctx.text)
	stopLoss := models.StopLossLevels{
		Stop0_5: extractField(stop05Pattern, ctx.text),
		Stop1:   extractField(stop1Pattern, ctx.text),
	}
	expectedProfit := extractText(expectedProfitPattern, ctx.text)
	progress := extractText(progressPattern, ctx.text)
	signalTime := extractSignalTime(ctx.text, ctx.messageDate)

	var expiresAt *time.Time
	if signalTime != nil {
		t := signalTime.Add(2 * time.Hour)
		expiresAt = &t
	}

	conf := newConfidence(50)
	conf.add(10, "ticker identified")
	conf.add(10, "exchange identified")
	if entryPrice != nil {
		conf.add(15, "entry price extracted")
	} else {
		conf.subtract(15, "entry price missing")
	}
	if len(targets) > 0 {
		conf.add(10, "targets extracted")
	}
	if stopLoss.Stop0_5 != nil || stopLoss.Stop1 != nil {
		conf.add(10, "stop-loss levels extracted")
	}
	if signalTime != nil {
		conf.add(5, "signal time present")
	}

	return &models.TradingSignal{
		Type:     models.SignalEntrySignal,
		Ticker:   ticker,
		Exchange: strPtr(exchange),
		EntrySignal: &models.EntrySignalInfo{
			Side:             side,
			EntryPrice:       entryPrice,
			Targets:          targets,
			StopLoss:         stopLoss,
			ExpectedProfit:   expectedProfit,
			ProgressToTarget: progress,
			ExpiresAt:        expiresAt,
		},
		Confidence: conf.build(),
	}
}

func extractField(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseFloatField(m[1])
}

func extractText(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
