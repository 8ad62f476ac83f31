package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

// ClientRepo is the typed accessor over the clients table.
type ClientRepo struct {
	pool *pgxpool.Pool
}

// NewClientRepo builds a ClientRepo bound to pool. The pool is never
// retrieved from a package-global; it is passed in here explicitly.
func NewClientRepo(pool *pgxpool.Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

// generateAPIKey returns a tagged hex token: a 4-char tag followed by 48
// hex characters derived from 24 random bytes.
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return models.ClientKeyTag + hex.EncodeToString(buf), nil
}

// Create inserts a new active client with a freshly generated API key.
func (r *ClientRepo) Create(ctx context.Context) (models.Client, error) {
	key, err := generateAPIKey()
	if err != nil {
		return models.Client{}, apperr.Wrap(apperr.ErrTransientStore, "generate client key", err)
	}

	id := uuid.New().String()
	var c models.Client
	err = r.pool.QueryRow(ctx,
		`INSERT INTO clients (id, api_key, is_active) VALUES ($1, $2, true)
		 RETURNING id, api_key, is_active, created_at`,
		id, key,
	).Scan(&c.ID, &c.APIKey, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return models.Client{}, apperr.Wrap(apperr.ErrTransientStore, "insert client", err)
	}
	return c, nil
}

// LookupByKey returns the client for key if it exists and is active; a
// ErrNotFound-wrapped error is returned for no match or an inactive row.
func (r *ClientRepo) LookupByKey(ctx context.Context, key string) (models.Client, error) {
	var c models.Client
	err := r.pool.QueryRow(ctx,
		`SELECT id, api_key, is_active, created_at FROM clients WHERE api_key = $1 AND is_active = true`,
		key,
	).Scan(&c.ID, &c.APIKey, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Client{}, apperr.Wrap(apperr.ErrNotFound, "lookup client by key", nil)
		}
		return models.Client{}, apperr.Wrap(apperr.ErrTransientStore, "lookup client by key", err)
	}
	return c, nil
}

// List returns every client, active or not.
func (r *ClientRepo) List(ctx context.Context) ([]models.Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, api_key, is_active, created_at FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "list clients", err)
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.APIKey, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.ErrTransientStore, "scan client row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientStore, "iterate client rows", err)
	}
	return out, nil
}

// SetActive toggles a client's active flag.
func (r *ClientRepo) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE clients SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStore, "set client active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("client %s", id), nil)
	}
	return nil
}

// Delete hard-deletes a client row.
func (r *ClientRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransientStore, "delete client", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(apperr.ErrNotFound, fmt.Sprintf("client %s", id), nil)
	}
	return nil
}
