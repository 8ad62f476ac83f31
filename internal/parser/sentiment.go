package parser

import (
	"regexp"
	"strings"

	"signalrelay/internal/models"
)

var (
	sentimentTagPattern      = regexp.MustCompile(`#SENTIMENT`)
	dayPercentHeaderPattern  = regexp.MustCompile(`(?i)day\s*[:\-]\s*[+\-−]?\d`)
	dayChangePattern         = regexp.MustCompile(`(?i)day\s*[:\-]\s*([+\-−]?[\d.]+)\s*%`)
	change24hPattern         = regexp.MustCompile(`(?i)24h?\s*[:\-]\s*([+\-−]?[\d.]+)\s*%`)
	sentimentZonePattern     = regexp.MustCompile(`(?i)(▲|▼|△|▽)\s*(OB|OS)?\s*([+\-−]?[\d.]+)%\s*(?:RSI\s*([\d.]+))?\s*(\S+)?`)
)

// isSentiment reports whether text carries the #SENTIMENT tag or a
// day-percentage header.
func isSentiment(text string) bool {
	return sentimentTagPattern.MatchString(text) || dayPercentHeaderPattern.MatchString(text)
}

// parseSentiment builds the sentiment variant. Side is always neutral.
func parseSentiment(ctx parseContext) *models.TradingSignal {
	ticker := extractTicker(ctx.text)
	exchange := extractExchange(ctx.text)
	if ticker == nil || exchange == "" {
		return nil
	}

	dayChange := extractPercent(dayChangePattern, ctx.text)
	change24h := extractPercent(change24hPattern, ctx.text)

	var zones []models.SentimentZone
	for _, m := range sentimentZonePattern.FindAllStringSubmatch(ctx.text, -1) {
		zone := models.SentimentZone{
			TrendTriangle: m[1],
			OSOBMarker:    m[2],
			ZonePercent:   parseFloatField(m[3]),
		}
		if m[4] != "" {
			zone.RSI = parseFloatField(m[4])
		}
		if m[5] != "" {
			if tf, ok := NormalizeTimeframe(m[5]); ok {
				zone.Timeframe = tf
			}
		}
		zones = append(zones, zone)
	}

	conf := newConfidence(50)
	if ticker != nil {
		conf.add(10, "ticker identified")
	}
	if exchange != "" {
		conf.add(5, "exchange identified")
	}
	if dayChange != nil {
		conf.add(10, "day change extracted")
	}
	if change24h != nil {
		conf.add(10, "24h change extracted")
	}
	if len(zones) > 0 {
		conf.add(10, "timeframe zones extracted")
	} else {
		conf.subtract(10, "no timeframe zones found")
	}

	var exchangePtr *string
	if exchange != "" {
		exchangePtr = strPtr(exchange)
	}

	return &models.TradingSignal{
		Type:     models.SignalSentiment,
		Ticker:   ticker,
		Exchange: exchangePtr,
		Direction: &models.DirectionInfo{
			Side: models.SideNeutral,
		},
		Sentiment: &models.SentimentInfo{
			DayChangePercent: dayChange,
			Change24hPercent: change24h,
			Zones:            zones,
		},
		Confidence: conf.build(),
	}
}

func extractPercent(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseFloatField(strings.ReplaceAll(m[1], "−", "-"))
}
