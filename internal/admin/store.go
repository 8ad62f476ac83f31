package admin

import (
	"context"

	"signalrelay/internal/models"
	"signalrelay/internal/upstream"
)

// ClientStore is the subset of store.ClientRepo the admin surface depends
// on. LookupByKey is included alongside the CRUD methods so a ClientStore
// value can also be passed anywhere a ClientKeyResolver is expected (the
// auth middleware's principal resolution, §4.7).
type ClientStore interface {
	Create(ctx context.Context) (models.Client, error)
	List(ctx context.Context) ([]models.Client, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	LookupByKey(ctx context.Context, key string) (models.Client, error)
}

// ChannelStore is the subset of store.ChannelRepo the admin surface depends on.
type ChannelStore interface {
	Upsert(ctx context.Context, input models.ChannelInput) (models.Channel, error)
	Get(ctx context.Context, sourceID string) (models.Channel, error)
	ListActive(ctx context.Context) ([]models.Channel, error)
	ListAll(ctx context.Context) ([]models.Channel, error)
	SetActive(ctx context.Context, sourceID string, active bool) error
	Delete(ctx context.Context, sourceID string) error
}

// MessageStore is the subset of store.MessageRepo the admin surface depends on.
type MessageStore interface {
	GetRecent(ctx context.Context, limit int) ([]models.Message, error)
	Stats(ctx context.Context) (models.MessageStats, error)
	DeleteBySource(ctx context.Context, normalizedSourceID string) (int64, error)
}

// HistoryLoader is the subset of upstream.Loader the admin surface depends on.
type HistoryLoader interface {
	Load(ctx context.Context, sourceID int64, limit int) (upstream.LoadResult, error)
}

// Pinger is the subset of *pgxpool.Pool the health check depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}
