package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signalrelay/internal/models"
)

var (
	tickerHashPattern  = regexp.MustCompile(`#([A-Z]{3,10})\b`)
	tickerLabelPattern = regexp.MustCompile(`\*\*Ticker:\*\*\s*([A-Z]{3,10})`)
	exchangePattern    = regexp.MustCompile(`(?i)\b(BINANCE|BYBIT|MEXC|BATS)\b`)
	rsiPattern         = regexp.MustCompile(`\*\*RSI:\*\*\s*([\d.]+)`)
	signalTimePattern  = regexp.MustCompile(`T\s*(\d{1,2}):(\d{2}):(\d{2})\s*UTC`)
)

// timeframeTable maps every accepted English/Russian spelling onto its
// canonical form.
var timeframeTable = map[string]string{
	"1min": "1min", "1m": "1min", "1 мин": "1min", "1мин": "1min",
	"3min": "3min", "3m": "3min", "3 мин": "3min", "3мин": "3min",
	"5min": "5min", "5m": "5min", "5 мин": "5min", "5мин": "5min",
	"15min": "15min", "15m": "15min", "15 мин": "15min", "15мин": "15min",
	"30min": "30min", "30m": "30min", "30 мин": "30min", "30мин": "30min",
	"1h": "1h", "1ч": "1h", "1 ч": "1h", "1час": "1h",
	"2h": "2h", "2ч": "2h", "2 ч": "2h", "2часа": "2h",
	"4h": "4h", "4ч": "4h", "4 ч": "4h", "4часа": "4h",
	"12h": "12h", "12ч": "12h", "12 ч": "12h", "12часов": "12h",
	"1d": "1d", "1д": "1d", "1 д": "1d", "1день": "1d",
}

// extractTicker finds a hashtag ticker or a labeled "**Ticker:**" field.
func extractTicker(text string) *string {
	if m := tickerHashPattern.FindStringSubmatch(text); m != nil {
		return &m[1]
	}
	if m := tickerLabelPattern.FindStringSubmatch(text); m != nil {
		return &m[1]
	}
	return nil
}

// extractExchange finds one of the closed-vocabulary exchange names,
// returned upper-cased.
func extractExchange(text string) string {
	m := exchangePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// NormalizeTimeframe looks raw up in the canonical table, case- and
// space-insensitively.
func NormalizeTimeframe(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	canonical, ok := timeframeTable[key]
	return canonical, ok
}

// extractRSI returns the raw RSI reading and its classification, or nil if
// absent. 30 and 70 themselves classify as neutral.
func extractRSI(text string) (*float64, *models.RSISignal) {
	m := rsiPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, nil
	}
	sig := classifyRSI(val)
	return &val, &sig
}

func classifyRSI(val float64) models.RSISignal {
	switch {
	case val < 30:
		return models.RSIOversold
	case val > 70:
		return models.RSIOverbought
	default:
		return models.RSINeutral
	}
}

// extractSignalTime overlays a "T hh:mm:ss UTC" pattern onto the message
// date's UTC calendar day.
func extractSignalTime(text string, messageDate time.Time) *time.Time {
	m := signalTimePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	hh, err1 := strconv.Atoi(m[1])
	mm, err2 := strconv.Atoi(m[2])
	ss, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	d := messageDate.UTC()
	t := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, ss, 0, time.UTC)
	return &t
}

// parseDecimal parses a captured numeric string, treating the Unicode
// minus sign U+2212 as an ASCII hyphen. Empty or malformed captures yield
// nil, not zero.
func parseDecimal(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "−", "-")
	raw = strings.ReplaceAll(raw, ",", ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

// decimalToFloat converts a *decimal.Decimal capture to *float64 for the
// parsed document's wire form, nil-safe.
func decimalToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// parseFloatField is a convenience wrapper combining parseDecimal and
// decimalToFloat for regex captures that feed directly into a *float64
// document field.
func parseFloatField(raw string) *float64 {
	return decimalToFloat(parseDecimal(raw))
}
