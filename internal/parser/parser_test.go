package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/models"
)

func TestClassifyRSI_Boundaries(t *testing.T) {
	assert.Equal(t, models.RSIOversold, classifyRSI(29.999))
	assert.Equal(t, models.RSINeutral, classifyRSI(30))
	assert.Equal(t, models.RSINeutral, classifyRSI(70))
	assert.Equal(t, models.RSIOverbought, classifyRSI(70.0001))
}

func TestParse_StrongSignal(t *testing.T) {
	text := "#BTCUSDT #StrongSignal\nBINANCE, T10:30:00 UTC\n🔴🔴**↓ TREND Reversal ↑** 65%\n**RSI:** 72\n**SHORT**"

	p := New()
	signal := p.Parse(Input{
		Text:              text,
		ChannelName:       "Signals",
		ChannelID:         "-1001234567890",
		UpstreamMessageID: 42,
		MessageDate:       time.Date(2026, 2, 28, 10, 30, 0, 0, time.UTC),
	})

	require.NotNil(t, signal)
	assert.Equal(t, models.SignalStrongSignal, signal.Type)
	require.NotNil(t, signal.Direction)
	assert.Equal(t, models.SideShort, signal.Direction.Side)
	assert.Equal(t, models.PatternTrendReversal, signal.Direction.Pattern)
	assert.Equal(t, 65.0, signal.Direction.PatternStrength)
	require.NotNil(t, signal.Indicators)
	require.NotNil(t, signal.Indicators.RSISignal)
	assert.Equal(t, models.RSIOverbought, *signal.Indicators.RSISignal)
	assert.GreaterOrEqual(t, signal.Confidence.Score, 80)
	assert.NotEmpty(t, signal.SignalID)
}

func TestParse_FundingRate(t *testing.T) {
	text := "⚡️ Сигнал по фандингу (BYBIT)\n**Инструмент:** [BTCUSDT](https://example.test)\n" +
		"**Время:** 28.02.2026 10:00\n**Ставка:** −0.6000%\nЛонги получают"

	p := New()
	signal := p.Parse(Input{
		Text:              text,
		ChannelName:       "Funding",
		ChannelID:         "-1009876543210",
		UpstreamMessageID: 7,
		MessageDate:       time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC),
	})

	require.NotNil(t, signal)
	assert.Equal(t, models.SignalFundingRate, signal.Type)
	require.NotNil(t, signal.FundingInfo)
	require.NotNil(t, signal.FundingInfo.FundingRatePercent)
	assert.InDelta(t, -0.6, *signal.FundingInfo.FundingRatePercent, 0.0001)
	assert.Equal(t, models.SideLong, signal.FundingInfo.Receiver)
	assert.Equal(t, models.SideLong, signal.FundingInfo.RecommendedAction)
	assert.GreaterOrEqual(t, signal.Confidence.Score, 85)
}

func TestFundingReceiver_Boundaries(t *testing.T) {
	cases := []struct {
		rate     string
		receiver models.Side
	}{
		{"−0.0001", models.SideLong},
		{"0", models.SideShort},
		{"+0.0001", models.SideShort},
	}
	p := New()
	for _, tc := range cases {
		text := "Сигнал по фандингу (BYBIT)\n**Инструмент:** [ETHUSDT](https://example.test)\n" +
			"**Время:** 28.02.2026 10:00\n**Ставка:** " + tc.rate + "%"
		signal := p.Parse(Input{Text: text, MessageDate: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)})
		require.NotNil(t, signal, "rate %s", tc.rate)
		assert.Equal(t, tc.receiver, signal.FundingInfo.Receiver, "rate %s", tc.rate)
	}
}

func TestParse_NoMatchReturnsNil(t *testing.T) {
	p := New()
	signal := p.Parse(Input{Text: "just some chat noise, nothing special", MessageDate: time.Now()})
	assert.Nil(t, signal)
}

func TestParse_IsPureAsideFromIDAndDuration(t *testing.T) {
	text := "#BTCUSDT #StrongSignal\nBINANCE, T10:30:00 UTC\n🟢🟢**↑ Breakout** 80%\n**RSI:** 25"
	in := Input{Text: text, MessageDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	p := New()
	a := p.Parse(in)
	b := p.Parse(in)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.SignalID, b.SignalID)
	assert.Equal(t, a.Type, b.Type)
	assert.Equal(t, a.Direction, b.Direction)
	assert.Equal(t, a.Indicators, b.Indicators)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, models.LanguageEN, DetectLanguage("Strong breakout on BTCUSDT"))
	assert.Equal(t, models.LanguageRU, DetectLanguage("Сигнал по фандингу получен"))
	assert.Equal(t, models.LanguageMixed, DetectLanguage("Сигнал по BTCUSDT готов"))
}

func TestNormalizeTimeframe(t *testing.T) {
	canonical, ok := NormalizeTimeframe("15m")
	require.True(t, ok)
	assert.Equal(t, "15min", canonical)

	canonical, ok = NormalizeTimeframe("1 ч")
	require.True(t, ok)
	assert.Equal(t, "1h", canonical)

	_, ok = NormalizeTimeframe("not-a-timeframe")
	assert.False(t, ok)
}
