package store

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

// MessageRepo is the typed accessor over the messages table.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo builds a MessageRepo bound to pool.
func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Exists reports whether a message with this fingerprint was already saved.
func (r *MessageRepo) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE unique_hash = $1)`, fingerprint).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrTransientStore, "check message exists", err)
	}
	return exists, nil
}

// Save inserts a message. A nil Message with a nil error means the insert
// was a no-op: the fingerprint already existed (race-lost duplicate).
func (r *MessageRepo) Save(ctx context.Context, input models.MessageInput) (*models.Message, error) {
	channelID, err := parseSourceID(input.SourceID)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO messages
			(unique_hash, channel_id, direction, ticker, entry_price, stop_loss, take_profit,
			 content_text, original_timestamp, parsed_signal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (unique_hash) DO NOTHING
		 RETURNING id, unique_hash, channel_id, direction, ticker, entry_price, stop_loss,
			take_profit, content_text, original_timestamp, created_at, parsed_signal`,
		input.Fingerprint, channelID, input.Direction, input.Ticker,
		input.Entry, input.StopLoss, input.TakeProfit,
		input.Text, input.OriginalTime, jsonOrNull(input.ParsedSignal),
	)

	var (
		m           models.Message
		chatID      int64
		parsedBytes []byte
	)
	err = row.Scan(&m.ID, &m.Fingerprint, &chatID, &m.Direction, &m.Ticker,
		&m.Entry, &m.StopLoss, &m.TakeProfit, &m.Text, &m.OriginalTime, &m.CreatedAt, &parsedBytes)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.ErrTransientStore, "save message", err)
	}
	m.SourceID = formatSourceID(chatID)
	if len(parsedBytes) > 0 {
		m.ParsedSignal = json.RawMessage(parsedBytes)
	}
	return &m, nil
}

func jsonOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func formatSourceID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// GetRecent returns the most recently created messages, newest first.
func (r *MessageRepo) GetRecent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, unique_hash, channel_id, direction, ticker, entry_price, stop_loss,
			take_profit, content_text, original_timestamp, created_at, parsed_signal
		 FROM messages ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "get recent messages", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m           models.Message
			chatID      int64
			parsedBytes []byte
		)
		if err := rows.Scan(&m.ID, &m.Fingerprint, &chatID, &m.Direction, &m.Ticker,
			&m.Entry, &m.StopLoss, &m.TakeProfit, &m.Text, &m.OriginalTime, &m.CreatedAt, &parsedBytes); err != nil {
			return nil, apperr.Wrap(apperr.ErrTransientStore, "scan message row", err)
		}
		m.SourceID = formatSourceID(chatID)
		if len(parsedBytes) > 0 {
			m.ParsedSignal = json.RawMessage(parsedBytes)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "iterate message rows", err)
	}
	return out, nil
}

// DeleteBySource removes every message row for a normalized source-id,
// clearing loaded history without touching the channel whitelist entry
// itself. Returns the number of rows removed.
func (r *MessageRepo) DeleteBySource(ctx context.Context, normalizedSourceID string) (int64, error) {
	channelID, err := parseSourceID(normalizedSourceID)
	if err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE channel_id = $1`, channelID)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrTransientStore, "delete messages by source", err)
	}
	return tag.RowsAffected(), nil
}

// Stats computes the aggregate counts described in §4.1: today is a
// rolling 24-hour window; long_count/short_count derive direction from
// either the legacy column or the parsed document's direction side.
func (r *MessageRepo) Stats(ctx context.Context) (models.MessageStats, error) {
	var s models.MessageStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE created_at > now() - interval '24 hours') AS today,
			COUNT(*) FILTER (WHERE ticker IS NOT NULL) AS with_ticker,
			COUNT(*) FILTER (
				WHERE direction = 'LONG' OR parsed_signal->'direction'->>'side' = 'long'
			) AS long_count,
			COUNT(*) FILTER (
				WHERE direction = 'SHORT' OR parsed_signal->'direction'->>'side' = 'short'
			) AS short_count
		FROM messages
	`).Scan(&s.Total, &s.Today, &s.WithTicker, &s.LongCount, &s.ShortCount)
	if err != nil {
		return models.MessageStats{}, apperr.Wrap(apperr.ErrTransientStore, "compute message stats", err)
	}
	return s, nil
}
