package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the long/short side projected onto the legacy columns.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Message is the persisted row: a denormalized legacy projection alongside
// the full parsed signal document. The legacy columns may be null when the
// parser found no structure.
type Message struct {
	ID              int64
	Fingerprint     string
	SourceID        string
	Direction       *Direction
	Ticker          *string
	Entry           *decimal.Decimal
	StopLoss        *decimal.Decimal
	TakeProfit      *decimal.Decimal
	Text            string
	OriginalTime    time.Time
	CreatedAt       time.Time
	ParsedSignal    json.RawMessage
}

// MessageInput is the argument to MessageRepo.save: the legacy projection
// plus the full parsed document, keyed by fingerprint.
type MessageInput struct {
	Fingerprint  string
	SourceID     string
	Direction    *Direction
	Ticker       *string
	Entry        *decimal.Decimal
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
	Text         string
	OriginalTime time.Time
	ParsedSignal json.RawMessage
}

// MessageStats is the aggregate returned by MessageRepo.stats.
type MessageStats struct {
	Total      int64 `json:"total"`
	Today      int64 `json:"today"`
	WithTicker int64 `json:"with_ticker"`
	LongCount  int64 `json:"long_count"`
	ShortCount int64 `json:"short_count"`
}

// ProcessedMessage is the flat broadcast projection of a persisted Message.
type ProcessedMessage struct {
	ID         int64      `json:"id"`
	Channel    string     `json:"channel"`
	Direction  *Direction `json:"direction,omitempty"`
	Ticker     *string    `json:"ticker,omitempty"`
	EntryPrice *float64   `json:"entryPrice,omitempty"`
	StopLoss   *float64   `json:"stopLoss,omitempty"`
	TakeProfit *float64   `json:"takeProfit,omitempty"`
	Text       string     `json:"text"`
	Timestamp  int64      `json:"timestamp_unix_seconds"`
	Parsed     *TradingSignal `json:"parsed,omitempty"`
}

// BufferedItem is a write that failed persistence and is awaiting retry.
type BufferedItem struct {
	Raw         UpstreamMessage
	Parsed      *TradingSignal
	Fingerprint string
	RetryCount  int
	EnqueuedAt  time.Time
}

// decimalToFloatPtr is a small shared helper for building ProcessedMessage
// from decimal-typed legacy columns; nil-safe.
func decimalToFloatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// ToProcessedMessage projects a persisted Message into its wire form.
func (m Message) ToProcessedMessage(channelName string, parsed *TradingSignal) ProcessedMessage {
	return ProcessedMessage{
		ID:         m.ID,
		Channel:    channelName,
		Direction:  m.Direction,
		Ticker:     m.Ticker,
		EntryPrice: decimalToFloatPtr(m.Entry),
		StopLoss:   decimalToFloatPtr(m.StopLoss),
		TakeProfit: decimalToFloatPtr(m.TakeProfit),
		Text:       m.Text,
		Timestamp:  m.OriginalTime.Unix(),
		Parsed:     parsed,
	}
}
