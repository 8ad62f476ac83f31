package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"signalrelay/internal/models"
)

var (
	fundingMarkerPattern   = regexp.MustCompile(`(?i)сигнал по фандингу`)
	fundingExchangePattern = regexp.MustCompile(`\(([A-Za-z]+)\)`)
	fundingInstrumentPattern = regexp.MustCompile(`\[([A-Za-z0-9]+)\]\(`)
	fundingTimePattern     = regexp.MustCompile(`\*\*Время:\*\*\s*(\d{2})\.(\d{2})\.(\d{4})\s+(\d{2}):(\d{2})`)
	fundingRatePattern     = regexp.MustCompile(`\*\*Ставка:\*\*\s*([−\-+]?[\d.]+)\s*%`)
	longsReceivePattern    = regexp.MustCompile(`(?i)лонги получают`)
)

// isFundingRate reports whether text carries the funding-bot marker
// phrase (§4.2 step 1, highest priority).
func isFundingRate(text string) bool {
	return fundingMarkerPattern.MatchString(text)
}

func extractFundingTime(text string) *time.Time {
	m := fundingTimePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	day, e1 := strconv.Atoi(m[1])
	month, e2 := strconv.Atoi(m[2])
	year, e3 := strconv.Atoi(m[3])
	hh, e4 := strconv.Atoi(m[4])
	mm, e5 := strconv.Atoi(m[5])
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
		return nil
	}
	t := time.Date(year, time.Month(month), day, hh, mm, 0, 0, time.UTC)
	return &t
}

// parseFundingRate builds the funding_rate variant (priority 3, base
// confidence 70 rather than 50).
func parseFundingRate(ctx parseContext) *models.TradingSignal {
	exchangeMatch := fundingExchangePattern.FindStringSubmatch(ctx.text)
	instrumentMatch := fundingInstrumentPattern.FindStringSubmatch(ctx.text)
	if exchangeMatch == nil || instrumentMatch == nil {
		return nil
	}
	exchange := strings.ToUpper(exchangeMatch[1])
	instrument := instrumentMatch[1]

	fundingTime := extractFundingTime(ctx.text)
	rate := extractField(fundingRatePattern, ctx.text)
	if rate == nil {
		return nil
	}

	var receiver, recommendedAction models.Side
	if *rate < 0 {
		receiver = models.SideLong
	} else {
		receiver = models.SideShort
	}
	if longsReceivePattern.MatchString(ctx.text) || *rate < 0 {
		recommendedAction = models.SideLong
	} else {
		recommendedAction = models.SideShort
	}

	var nextFundingIn int64
	if fundingTime != nil {
		delta := fundingTime.Sub(ctx.messageDate.UTC())
		if delta > 0 {
			nextFundingIn = int64(delta.Seconds())
		}
	}

	conf := newConfidence(70)
	conf.add(10, "exchange identified")
	conf.add(10, "instrument identified")
	if fundingTime != nil {
		conf.add(10, "funding time parsed")
	} else {
		conf.subtract(10, "funding time missing")
	}
	conf.add(5, "funding rate parsed")

	return &models.TradingSignal{
		Type: models.SignalFundingRate,
		FundingInfo: &models.FundingRateInfo{
			Exchange:           exchange,
			Instrument:         instrument,
			FundingTime:        fundingTime,
			FundingRatePercent: rate,
			Receiver:           receiver,
			RecommendedAction:  recommendedAction,
			NextFundingIn:      nextFundingIn,
		},
		Confidence: conf.build(),
	}
}
