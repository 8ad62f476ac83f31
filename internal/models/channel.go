package models

import "time"

// Channel is a whitelisted upstream source. SourceID is the normalized
// 13-digit negative supergroup form (§4.3); it is the primary key.
type Channel struct {
	SourceID  string    `json:"source_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelInput is the upsert argument: only the fields an admin supplies.
type ChannelInput struct {
	SourceID string
	Name     string
	IsActive bool
}
