package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/models"
)

func TestBroadcaster_AuthSuccessReceivesWelcomeAndLive(t *testing.T) {
	validator := ValidatorFunc(func(_ context.Context, key string) (bool, error) {
		return key == "good-key", nil
	})
	b := New(Config{Validator: validator, Logger: zerolog.Nop()})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.HandleWebSocket(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, _, err := ws.Dialer{}.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	body, err := json.Marshal(authFrame{Action: "auth", APIKey: "good-key"})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientMessage(conn, ws.OpText, body))

	raw, _, err := wsutil.ReadServerData(conn)
	require.NoError(t, err)
	var welcome statusFrame
	require.NoError(t, json.Unmarshal(raw, &welcome))
	assert.Equal(t, "authenticated", welcome.Status)

	require.Eventually(t, func() bool { return b.Count() == 1 }, time.Second, 5*time.Millisecond)

	b.Broadcast(models.ProcessedMessage{ID: 1, Channel: "c", Text: "hi"})

	raw, _, err = wsutil.ReadServerData(conn)
	require.NoError(t, err)
	var frame liveFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "signal", frame.Type)
	require.NotNil(t, frame.Data)
	assert.Equal(t, int64(1), frame.Data.ID)
}

func TestBroadcaster_InvalidKeyCloses(t *testing.T) {
	validator := ValidatorFunc(func(_ context.Context, key string) (bool, error) {
		return false, nil
	})
	b := New(Config{Validator: validator, Logger: zerolog.Nop()})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.HandleWebSocket(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, _, err := ws.Dialer{}.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	body, err := json.Marshal(authFrame{Action: "auth", APIKey: "bad-key"})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientMessage(conn, ws.OpText, body))

	raw, _, err := wsutil.ReadServerData(conn)
	require.NoError(t, err)
	var status statusFrame
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, "error", status.Status)

	_, op, err := wsutil.ReadServerData(conn)
	closed := err != nil || op == ws.OpClose
	assert.True(t, closed, "expected connection to be closed after invalid key")
	assert.Equal(t, 0, b.Count())
}

func TestBroadcaster_NewSubscriberReceivesBacklogOldestFirst(t *testing.T) {
	validator := ValidatorFunc(func(_ context.Context, key string) (bool, error) { return true, nil })
	b := New(Config{Validator: validator, Logger: zerolog.Nop()})

	b.Broadcast(models.ProcessedMessage{ID: 1, Text: "first"})
	b.Broadcast(models.ProcessedMessage{ID: 2, Text: "second"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.HandleWebSocket(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, _, err := ws.Dialer{}.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	body, err := json.Marshal(authFrame{Action: "auth", APIKey: "any"})
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientMessage(conn, ws.OpText, body))

	raw, _, err := wsutil.ReadServerData(conn) // welcome
	require.NoError(t, err)
	var welcome statusFrame
	require.NoError(t, json.Unmarshal(raw, &welcome))
	require.Equal(t, "authenticated", welcome.Status)

	raw, _, err = wsutil.ReadServerData(conn)
	require.NoError(t, err)
	var f1 liveFrame
	require.NoError(t, json.Unmarshal(raw, &f1))
	require.NotNil(t, f1.Data)
	assert.Equal(t, int64(1), f1.Data.ID)

	raw, _, err = wsutil.ReadServerData(conn)
	require.NoError(t, err)
	var f2 liveFrame
	require.NoError(t, json.Unmarshal(raw, &f2))
	require.NotNil(t, f2.Data)
	assert.Equal(t, int64(2), f2.Data.ID)
}

func TestBacklog_EvictsOldestOnOverflow(t *testing.T) {
	bl := newBacklog(defaultBacklogCapacity, defaultReplayCount)
	for i := 0; i < defaultBacklogCapacity+5; i++ {
		bl.add(models.ProcessedMessage{ID: int64(i)})
	}
	assert.Len(t, bl.entries, defaultBacklogCapacity)
	assert.Equal(t, int64(5), bl.entries[0].ID)
}

func TestBacklog_RecentReturnsLastReplayCount(t *testing.T) {
	bl := newBacklog(defaultBacklogCapacity, defaultReplayCount)
	for i := 0; i < 20; i++ {
		bl.add(models.ProcessedMessage{ID: int64(i)})
	}
	recent := bl.recent()
	require.Len(t, recent, defaultReplayCount)
	assert.Equal(t, int64(10), recent[0].ID)
	assert.Equal(t, int64(19), recent[len(recent)-1].ID)
}
