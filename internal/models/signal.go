package models

import "time"

// SignalType discriminates the six TradingSignal variants. The detection
// priority among them is owned by the parser, not this package.
type SignalType string

const (
	SignalStrongSignal SignalType = "strong_signal"
	SignalMediumSignal SignalType = "medium_signal"
	SignalSentiment    SignalType = "sentiment"
	SignalEntrySignal  SignalType = "entry_signal"
	SignalQuickTarget  SignalType = "quick_target"
	SignalFundingRate  SignalType = "funding_rate"
)

// Language is the detected natural language of the source text.
type Language string

const (
	LanguageEN    Language = "en"
	LanguageRU    Language = "ru"
	LanguageMixed Language = "mixed"
)

// Side is the directional lean a variant extracts, where applicable.
type Side string

const (
	SideLong    Side = "long"
	SideShort   Side = "short"
	SideNeutral Side = "neutral"
)

// RSISignal classifies an RSI reading per the §4.2 boundaries: <30
// oversold, >70 overbought, else neutral (30 and 70 themselves are neutral).
type RSISignal string

const (
	RSIOversold   RSISignal = "oversold"
	RSIOverbought RSISignal = "overbought"
	RSINeutral    RSISignal = "neutral"
)

// PatternKind categorizes the strong/medium signal's described chart
// pattern by substring match.
type PatternKind string

const (
	PatternTrendReversal PatternKind = "trend_reversal"
	PatternOBReversal    PatternKind = "ob_reversal"
	PatternOSReversal    PatternKind = "os_reversal"
	PatternBreakout      PatternKind = "breakout"
	PatternPullback      PatternKind = "pullback"
	PatternDivergence    PatternKind = "divergence"
	PatternUnknown       PatternKind = "unknown"
)

// SignalSource records where a signal came from: the source block common
// to every variant.
type SignalSource struct {
	ChannelName       string         `json:"channel_name"`
	ChannelID         string         `json:"channel_id"`
	UpstreamMessageID int64          `json:"upstream_message_id"`
	OriginalText      string         `json:"original_text"`
	Media             []UpstreamFile `json:"media,omitempty"`
}

// SignalMetadata records how a signal was produced: the metadata block
// common to every variant.
type SignalMetadata struct {
	ParserVersion      string        `json:"parser_version"`
	ProcessingDuration time.Duration `json:"processing_duration_ns"`
	Language           Language      `json:"language"`
	Tags               []string      `json:"tags,omitempty"`
}

// Confidence is the per-variant score plus the human-readable factors that
// moved it away from the base. The factor list is part of the contract:
// tests assert both presence and direction of effect.
type Confidence struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

// DirectionInfo holds the strong/medium signal's extracted pattern and side.
type DirectionInfo struct {
	Side            Side        `json:"side"`
	Pattern         PatternKind `json:"pattern"`
	PatternStrength float64     `json:"pattern_strength"`
}

// Indicators holds the common RSI/timeframe readings a variant attached.
type Indicators struct {
	RSI       *float64   `json:"rsi,omitempty"`
	RSISignal *RSISignal `json:"rsi_signal,omitempty"`
	Timeframe string     `json:"timeframe,omitempty"`
}

// StopLossLevels holds the entry_signal variant's two stop-loss sub-fields.
type StopLossLevels struct {
	Stop0_5 *float64 `json:"stop_0_5,omitempty"`
	Stop1   *float64 `json:"stop_1,omitempty"`
}

// EntrySignalInfo is the entry_signal variant payload.
type EntrySignalInfo struct {
	Side             Side            `json:"side"`
	EntryPrice       *float64        `json:"entry_price,omitempty"`
	Targets          []float64       `json:"targets,omitempty"`
	StopLoss         StopLossLevels  `json:"stop_loss"`
	ExpectedProfit   string          `json:"expected_profit,omitempty"`
	ProgressToTarget string          `json:"progress_to_target,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

// QuickTargetInfo is the quick_target variant payload.
type QuickTargetInfo struct {
	Side       Side       `json:"side"`
	Exchange   string     `json:"exchange,omitempty"`
	EntryPrice *float64   `json:"entry_price,omitempty"`
	Targets    []float64  `json:"targets,omitempty"`
	SignalTime *time.Time `json:"signal_time,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// SentimentZone is one repeating sub-pattern entry in a sentiment signal.
type SentimentZone struct {
	TrendTriangle string   `json:"trend_triangle,omitempty"`
	OSOBMarker    string   `json:"os_ob_marker,omitempty"`
	ZonePercent   *float64 `json:"zone_percent,omitempty"`
	RSI           *float64 `json:"rsi,omitempty"`
	Timeframe     string   `json:"timeframe,omitempty"`
}

// SentimentInfo is the sentiment variant payload. Side is always neutral.
type SentimentInfo struct {
	DayChangePercent   *float64        `json:"day_change_percent,omitempty"`
	Change24hPercent   *float64        `json:"change_24h_percent,omitempty"`
	Zones              []SentimentZone `json:"zones,omitempty"`
}

// FundingRateInfo is the funding_rate variant payload.
type FundingRateInfo struct {
	Exchange          string     `json:"exchange,omitempty"`
	Instrument        string     `json:"instrument,omitempty"`
	FundingTime       *time.Time `json:"funding_time,omitempty"`
	FundingRatePercent *float64  `json:"funding_rate_percent,omitempty"`
	Receiver          Side       `json:"receiver"`
	RecommendedAction Side       `json:"recommended_action"`
	NextFundingIn     int64      `json:"next_funding_in_seconds"`
}

// TradingSignal is the discriminated union over the six parser outcomes.
// Type selects which payload fields are set: strong/medium signals carry
// Direction and Indicators; sentiment carries Direction (neutral side) and
// Sentiment; entry_signal, quick_target and funding_rate carry EntrySignal,
// QuickTarget and FundingInfo respectively. The other payload fields are nil.
type TradingSignal struct {
	SignalID string         `json:"signal_id"`
	Type     SignalType     `json:"type"`
	EmittedAt time.Time     `json:"emitted_at"`
	Source   SignalSource   `json:"source"`
	Metadata SignalMetadata `json:"metadata"`

	Ticker   *string `json:"ticker,omitempty"`
	Exchange *string `json:"exchange,omitempty"`

	Confidence Confidence `json:"confidence"`

	Direction  *DirectionInfo   `json:"direction,omitempty"`
	Indicators *Indicators      `json:"indicators,omitempty"`

	EntrySignal *EntrySignalInfo `json:"entry_signal,omitempty"`
	QuickTarget *QuickTargetInfo `json:"quick_target,omitempty"`
	Sentiment   *SentimentInfo   `json:"sentiment,omitempty"`
	FundingInfo *FundingRateInfo `json:"funding_info,omitempty"`
}
