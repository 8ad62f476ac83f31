package parser

import (
	"regexp"
	"strconv"
	"time"

	"signalrelay/internal/models"
)

var (
	growthPhrasePattern  = regexp.MustCompile(`(?i)НОВАЯ ЦЕЛЬ РОСТА`)
	declinePhrasePattern = regexp.MustCompile(`(?i)НОВАЯ ЦЕЛЬ ПАДЕНИЯ`)
	leadingTimestamp     = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2}):(\d{2})`)
	quickEntryPattern    = regexp.MustCompile(`\*\*Вход:\*\*\s*([\d.]+)`)
	quickTargetsPattern  = regexp.MustCompile(`\*\*Цели:\*\*\s*([^\n]+)`)
)

// isQuickTarget reports whether the growth/decline Cyrillic phrase is
// present (§4.2 step 2).
func isQuickTarget(text string) bool {
	return growthPhrasePattern.MatchString(text) || declinePhrasePattern.MatchString(text)
}

func extractLeadingTimestamp(text string, messageDate time.Time) *time.Time {
	m := leadingTimestamp.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hh, e1 := strconv.Atoi(m[1])
	mm, e2 := strconv.Atoi(m[2])
	ss, e3 := strconv.Atoi(m[3])
	if e1 != nil || e2 != nil || e3 != nil {
		return nil
	}
	d := messageDate.UTC()
	t := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, ss, 0, time.UTC)
	return &t
}

// parseQuickTarget builds the quick_target variant (priority 2).
func parseQuickTarget(ctx parseContext) *models.TradingSignal {
	ticker := extractTicker(ctx.text)
	exchange := extractExchange(ctx.text)
	if ticker == nil || exchange == "" {
		return nil
	}

	var side models.Side
	switch {
	case growthPhrasePattern.MatchString(ctx.text):
		side = models.SideLong
	case declinePhrasePattern.MatchString(ctx.text):
		side = models.SideShort
	default:
		return nil
	}

	signalTime := extractLeadingTimestamp(ctx.text, ctx.messageDate)
	if signalTime == nil {
		signalTime = extractSignalTime(ctx.text, ctx.messageDate)
	}
	entry := extractField(quickEntryPattern, ctx.text)
	targets := extractTargetsFrom(quickTargetsPattern, ctx.text)

	var expiresAt *time.Time
	if signalTime != nil {
		t := signalTime.Add(30 * time.Minute)
		expiresAt = &t
	}

	conf := newConfidence(50)
	conf.add(10, "ticker identified")
	conf.add(10, "exchange identified")
	if entry != nil {
		conf.add(15, "entry price extracted")
	}
	if len(targets) > 0 {
		conf.add(10, "targets extracted")
	}
	if signalTime != nil {
		conf.add(10, "signal time present")
	}

	return &models.TradingSignal{
		Type:     models.SignalQuickTarget,
		Ticker:   ticker,
		Exchange: strPtr(exchange),
		QuickTarget: &models.QuickTargetInfo{
			Side:       side,
			Exchange:   exchange,
			EntryPrice: entry,
			Targets:    targets,
			SignalTime: signalTime,
			ExpiresAt:  expiresAt,
		},
		Confidence: conf.build(),
	}
}

func extractTargetsFrom(re *regexp.Regexp, text string) []float64 {
	m := re.FindStringSubmatch(text)
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
