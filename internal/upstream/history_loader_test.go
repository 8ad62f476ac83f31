package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

type loaderFakeProcessor struct {
	dupeAt map[int64]bool
	failAt map[int64]bool
	seen   []int64
}

func (f *loaderFakeProcessor) Process(_ context.Context, raw models.UpstreamMessage) (*models.Message, error) {
	f.seen = append(f.seen, raw.MessageID)
	if f.failAt[raw.MessageID] {
		return nil, assert.AnError
	}
	if f.dupeAt[raw.MessageID] {
		return nil, nil
	}
	return &models.Message{ID: raw.MessageID, Fingerprint: "fp"}, nil
}

func TestLoader_LoadReturnsTotals(t *testing.T) {
	var gotQuery string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[
			{"message_id":1,"chat_id":-1001,"text":"a","message_date":"2026-01-01T00:00:00Z"},
			{"message_id":2,"chat_id":-1001,"text":"b","message_date":"2026-01-01T00:00:01Z"},
			{"message_id":3,"chat_id":-1001,"text":"c","message_date":"2026-01-01T00:00:02Z"}
		]}`))
	}))
	defer srv.Close()

	proc := &loaderFakeProcessor{dupeAt: map[int64]bool{2: true}}
	loader := NewLoader(LoaderConfig{BaseURL: srv.URL, APIKey: "k-123", Processor: proc, Logger: zerolog.Nop()})

	result, err := loader.Load(context.Background(), -1001, 50)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Loaded: 3, Saved: 2, Duplicates: 1}, result)
	assert.Equal(t, "k-123", gotKey)
	assert.Contains(t, gotQuery, "chat_id=-1001")
	assert.Contains(t, gotQuery, "limit=50")
}

func TestLoader_LoadOmitsLimitWhenZero(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	proc := &loaderFakeProcessor{}
	loader := NewLoader(LoaderConfig{BaseURL: srv.URL, APIKey: "k", Processor: proc, Logger: zerolog.Nop()})

	result, err := loader.Load(context.Background(), -1001, 0)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{}, result)
	assert.NotContains(t, gotQuery, "limit=")
}

func TestLoader_ProcessingFailureSkipsCountButKeepsGoing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[
			{"message_id":1,"chat_id":-1001,"text":"a","message_date":"2026-01-01T00:00:00Z"},
			{"message_id":2,"chat_id":-1001,"text":"b","message_date":"2026-01-01T00:00:01Z"}
		]}`))
	}))
	defer srv.Close()

	proc := &loaderFakeProcessor{failAt: map[int64]bool{1: true}}
	loader := NewLoader(LoaderConfig{BaseURL: srv.URL, APIKey: "k", Processor: proc, Logger: zerolog.Nop()})

	result, err := loader.Load(context.Background(), -1001, 0)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Loaded: 2, Saved: 1, Duplicates: 0}, result)
}

func TestLoader_UnauthorizedReturnsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	proc := &loaderFakeProcessor{}
	loader := NewLoader(LoaderConfig{BaseURL: srv.URL, APIKey: "bad", Processor: proc, Logger: zerolog.Nop()})

	_, err := loader.Load(context.Background(), -1001, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)
}
