package models

import "time"

// UpstreamFile describes a media attachment referenced by an upstream
// message; the relay never fetches file contents, only records descriptors.
type UpstreamFile struct {
	FileID   string `json:"file_id"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// UpstreamMessage is the raw "message" object nested in a new_message frame
// or a backfill response entry.
type UpstreamMessage struct {
	MessageID   int64          `json:"message_id"`
	ChatID      int64          `json:"chat_id"`
	ChatTitle   string         `json:"chat_title"`
	Text        string         `json:"text"`
	SenderName  string         `json:"sender_name"`
	MessageDate time.Time      `json:"message_date"`
	HasMedia    bool           `json:"has_media,omitempty"`
	Files       []UpstreamFile `json:"files,omitempty"`
}

// UpstreamEventType enumerates the three frame kinds the connector accepts.
type UpstreamEventType string

const (
	EventNewMessage      UpstreamEventType = "new_message"
	EventMessageEdited   UpstreamEventType = "message_edited"
	EventMessagesDeleted UpstreamEventType = "messages_deleted"
)

// UpstreamEvent is the envelope received over the upstream push socket.
type UpstreamEvent struct {
	Type     UpstreamEventType `json:"type"`
	Message  *UpstreamMessage  `json:"message,omitempty"`
	Messages []int64           `json:"messages,omitempty"`
}

// BackfillResponse is the body of a GET /messages backfill call.
type BackfillResponse struct {
	Messages []UpstreamMessage `json:"messages"`
}
