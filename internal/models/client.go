// Package models holds the relay's persisted and wire-level data shapes:
// Client, Channel, Message, the TradingSignal variants, and the payloads
// that move between the processor and the broadcaster.
package models

import "time"

// Client is a subscriber credential. Deletion is hard: the row is removed,
// never soft-deleted.
type Client struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"api_key"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientKeyTag prefixes every generated API key so leaked keys are
// recognizable in logs without exposing the secret portion.
const ClientKeyTag = "rlay"
