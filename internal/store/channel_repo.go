package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

// ChannelRepo is the typed accessor over the channels table. Source-ids are
// carried as strings throughout to stay safe above the 53-bit integer
// limit (§9), even though the column itself is BIGINT.
type ChannelRepo struct {
	pool *pgxpool.Pool
}

// NewChannelRepo builds a ChannelRepo bound to pool.
func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func parseSourceID(sourceID string) (int64, error) {
	id, err := strconv.ParseInt(sourceID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid source id %q: %w", sourceID, err)
	}
	return id, nil
}

// IsActive reports whether sourceID names an active channel. A missing
// channel is treated as not active, not an error.
func (r *ChannelRepo) IsActive(ctx context.Context, sourceID string) (bool, error) {
	id, err := parseSourceID(sourceID)
	if err != nil {
		return false, err
	}
	var active bool
	err = r.pool.QueryRow(ctx, `SELECT is_active FROM channels WHERE chat_id = $1`, id).Scan(&active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, apperr.Wrap(apperr.ErrTransientStore, "check channel active", err)
	}
	return active, nil
}

// Get returns the single channel named by sourceID, or apperr.ErrNotFound
// if no such channel exists.
func (r *ChannelRepo) Get(ctx context.Context, sourceID string) (models.Channel, error) {
	id, err := parseSourceID(sourceID)
	if err != nil {
		return models.Channel{}, err
	}
	row := r.pool.QueryRow(ctx,
		`SELECT chat_id, name, is_active, created_at, updated_at FROM channels WHERE chat_id = $1`, id)
	c, err := scanChannel(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Channel{}, apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("channel %s", sourceID), nil)
		}
		return models.Channel{}, apperr.Wrap(apperr.ErrTransientStore, "get channel", err)
	}
	return c, nil
}

func scanChannel(row pgx.Row) (models.Channel, error) {
	var (
		c     models.Channel
		chatID int64
	)
	if err := row.Scan(&chatID, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Channel{}, err
	}
	c.SourceID = strconv.FormatInt(chatID, 10)
	return c, nil
}

// ListActive returns every channel with is_active = true.
func (r *ChannelRepo) ListActive(ctx context.Context) ([]models.Channel, error) {
	return r.list(ctx, true)
}

// ListAll returns every channel regardless of activity.
func (r *ChannelRepo) ListAll(ctx context.Context) ([]models.Channel, error) {
	return r.list(ctx, false)
}

func (r *ChannelRepo) list(ctx context.Context, activeOnly bool) ([]models.Channel, error) {
	query := `SELECT chat_id, name, is_active, created_at, updated_at FROM channels`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "list channels", err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrTransientStore, "scan channel row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "iterate channel rows", err)
	}
	return out, nil
}

// Upsert inserts a channel or, on a primary-key conflict, updates its name
// and updated_at instant.
func (r *ChannelRepo) Upsert(ctx context.Context, input models.ChannelInput) (models.Channel, error) {
	id, err := parseSourceID(input.SourceID)
	if err != nil {
		return models.Channel{}, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO channels (chat_id, name, is_active)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id) DO UPDATE
		   SET name = EXCLUDED.name, updated_at = now()
		 RETURNING chat_id, name, is_active, created_at, updated_at`,
		id, input.Name, input.IsActive,
	)
	c, err := scanChannel(row)
	if err != nil {
		return models.Channel{}, apperr.Wrap(apperr.ErrTransientStore, "upsert channel", err)
	}
	return c, nil
}

// SetActive toggles a channel's active flag.
func (r *ChannelRepo) SetActive(ctx context.Context, sourceID string, active bool) error {
	id, err := parseSourceID(sourceID)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE channels SET is_active = $1, updated_at = now() WHERE chat_id = $2`, active, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStore, "set channel active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("channel %s", sourceID), nil)
	}
	return nil
}

// Delete removes a channel row; messages referencing it cascade per the
// foreign-key ON DELETE CASCADE.
func (r *ChannelRepo) Delete(ctx context.Context, sourceID string) error {
	id, err := parseSourceID(sourceID)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE chat_id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStore, "delete channel", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("channel %s", sourceID), nil)
	}
	return nil
}
