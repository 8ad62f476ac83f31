package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
	"signalrelay/internal/upstream"
)

type fakeClients struct {
	byKey   map[string]models.Client
	created models.Client
	deleted []string
}

func (f *fakeClients) Create(ctx context.Context) (models.Client, error) { return f.created, nil }
func (f *fakeClients) List(ctx context.Context) ([]models.Client, error) {
	out := make([]models.Client, 0, len(f.byKey))
	for _, c := range f.byKey {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeClients) SetActive(ctx context.Context, id string, active bool) error { return nil }
func (f *fakeClients) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeClients) LookupByKey(ctx context.Context, key string) (models.Client, error) {
	if c, ok := f.byKey[key]; ok {
		return c, nil
	}
	return models.Client{}, assert.AnError
}

type fakeChannels struct {
	active []models.Channel
	all    []models.Channel
	byID   map[string]models.Channel
}

func (f *fakeChannels) Upsert(ctx context.Context, input models.ChannelInput) (models.Channel, error) {
	return models.Channel{SourceID: input.SourceID, Name: input.Name, IsActive: input.IsActive}, nil
}
func (f *fakeChannels) Get(ctx context.Context, sourceID string) (models.Channel, error) {
	ch, ok := f.byID[sourceID]
	if !ok {
		return models.Channel{}, apperr.Wrap(apperr.ErrNotFound, "channel "+sourceID, nil)
	}
	return ch, nil
}
func (f *fakeChannels) ListActive(ctx context.Context) ([]models.Channel, error) { return f.active, nil }
func (f *fakeChannels) ListAll(ctx context.Context) ([]models.Channel, error)    { return f.all, nil }
func (f *fakeChannels) SetActive(ctx context.Context, sourceID string, active bool) error { return nil }
func (f *fakeChannels) Delete(ctx context.Context, sourceID string) error                 { return nil }

type fakeMessages struct {
	recent []models.Message
	stats  models.MessageStats
}

func (f *fakeMessages) GetRecent(ctx context.Context, limit int) ([]models.Message, error) {
	return f.recent, nil
}
func (f *fakeMessages) Stats(ctx context.Context) (models.MessageStats, error) { return f.stats, nil }
func (f *fakeMessages) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	return 3, nil
}

type fakeHistory struct {
	result upstream.LoadResult
}

func (f *fakeHistory) Load(ctx context.Context, sourceID int64, limit int) (upstream.LoadResult, error) {
	return f.result, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer() (*Server, *fakeClients) {
	clients := &fakeClients{byKey: map[string]models.Client{
		"client-key": {ID: "c1", APIKey: "client-key", IsActive: true},
	}}
	s := New(Config{
		Clients:  clients,
		Channels: &fakeChannels{byID: map[string]models.Channel{
			"-1001111111111": {SourceID: "-1001111111111", Name: "alpha-calls", IsActive: true},
		}},
		Messages: &fakeMessages{stats: models.MessageStats{Total: 5}},
		History:  &fakeHistory{result: upstream.LoadResult{Loaded: 2, Saved: 2}},
		DB:       &fakePinger{},
		MasterKey: "admin-secret",
	})
	return s, clients
}

func doRequest(s *Server, method, path string, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth_ReportsDatabaseStatus(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestValidate_AdminKeyWins(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/auth/validate", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "admin", body["role"])
}

func TestValidate_ClientKeyResolved(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/auth/validate", map[string]string{"X-API-Key": "client-key"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "client", body["role"])
	assert.Equal(t, "c1", body["clientId"])
}

func TestValidate_NoKeyRejected(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/auth/validate", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["error"])
}

func TestValidate_InvalidKeyReportsInvalid(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/auth/validate", map[string]string{"X-API-Key": "not-a-real-key"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["valid"])
}

func TestAdminEndpoint_RejectsClientKey(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/admin/clients", map[string]string{"X-API-Key": "client-key"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpoint_AcceptsMasterKey(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/admin/clients", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteClient_RemovesByID(t *testing.T) {
	s, clients := newTestServer()
	rec := doRequest(s, http.MethodDelete, "/admin/clients/c1", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"c1"}, clients.deleted)
}

func TestGetChannel_ReturnsChannel(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/admin/channels/-1001111111111", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body models.Channel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alpha-calls", body.Name)
}

func TestGetChannel_UnknownSourceReturns404(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/admin/channels/-1009999999999", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadHistory_RequiresChatID(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodPost, "/admin/history/load", map[string]string{"X-Admin-Key": "admin-secret"}, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadHistory_ReturnsTotals(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodPost, "/admin/history/load", map[string]string{"X-Admin-Key": "admin-secret"}, []byte(`{"chat_id":123,"limit":10}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result upstream.LoadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Saved)
}

func TestDeleteHistory_ReturnsDeletedCount(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodDelete, "/admin/history/123", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body["deleted"])
}

func TestStats_AvailableToClientPrincipal(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/stats", map[string]string{"X-API-Key": "client-key"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats models.MessageStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(5), stats.Total)
}

func TestUnknownRoute_Returns404JSON(t *testing.T) {
	s, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/not-a-route", map[string]string{"X-Admin-Key": "admin-secret"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}
