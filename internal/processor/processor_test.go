package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrelay/internal/buffer"
	"signalrelay/internal/models"
	"signalrelay/internal/parser"
)

type fakeChannels struct {
	active map[string]bool
	err    error
}

func (f *fakeChannels) IsActive(_ context.Context, sourceID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.active[sourceID], nil
}

type fakeMessages struct {
	mu       sync.Mutex
	saved    map[string]models.Message
	nextID   int64
	existsErr error
	saveErr   error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{saved: make(map[string]models.Message)}
}

func (f *fakeMessages) Exists(_ context.Context, fingerprint string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.saved[fingerprint]
	return ok, nil
}

func (f *fakeMessages) Save(_ context.Context, input models.MessageInput) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if _, ok := f.saved[input.Fingerprint]; ok {
		return nil, nil
	}
	f.nextID++
	msg := models.Message{
		ID:           f.nextID,
		Fingerprint:  input.Fingerprint,
		SourceID:     input.SourceID,
		Direction:    input.Direction,
		Ticker:       input.Ticker,
		Entry:        input.Entry,
		StopLoss:     input.StopLoss,
		TakeProfit:   input.TakeProfit,
		Text:         input.Text,
		OriginalTime: input.OriginalTime,
		ParsedSignal: input.ParsedSignal,
	}
	f.saved[input.Fingerprint] = msg
	return &msg, nil
}

type recordingHandler struct {
	messages []models.ProcessedMessage
	signals  []models.TradingSignal
}

func (h *recordingHandler) HandleProcessedMessage(m models.ProcessedMessage) {
	h.messages = append(h.messages, m)
}

func (h *recordingHandler) HandleSignal(s models.TradingSignal) {
	h.signals = append(h.signals, s)
}

func newTestProcessor(channels *fakeChannels, messages *fakeMessages, handler *recordingHandler) *Processor {
	return New(Config{
		Channels:         channels,
		Messages:         messages,
		Parser:           parser.New(),
		Buffer:           buffer.New(10, zerolog.Nop()),
		BroadcastEnabled: true,
		MessageHandler:   handler,
		SignalHandler:    handler,
		Logger:           zerolog.Nop(),
	})
}

func TestNormalizeSourceID_Boundaries(t *testing.T) {
	assert.Equal(t, "-1000000000123", NormalizeSourceID(123))
	assert.Equal(t, "-1000000000123", NormalizeSourceID(-123))
	assert.Equal(t, "-1002678035223", NormalizeSourceID(-1002678035223))
}

func TestProcess_WhitelistDrop(t *testing.T) {
	channels := &fakeChannels{active: map[string]bool{}}
	messages := newFakeMessages()
	handler := &recordingHandler{}
	p := newTestProcessor(channels, messages, handler)

	raw := models.UpstreamMessage{ChatID: -1001, MessageID: 1, Text: "🟢 LONG BTC", MessageDate: time.Now()}

	msg, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Empty(t, handler.messages)

	normalized := NormalizeSourceID(-1001)
	channels.active[normalized] = true

	msg, err = p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Len(t, handler.messages, 1)
}

func TestProcess_Duplicate(t *testing.T) {
	channels := &fakeChannels{active: map[string]bool{NormalizeSourceID(-1001): true}}
	messages := newFakeMessages()
	handler := &recordingHandler{}
	p := newTestProcessor(channels, messages, handler)

	raw := models.UpstreamMessage{ChatID: -1001, MessageID: 7, Text: "hello", MessageDate: time.Now()}

	first, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, handler.messages, 1)
}

func TestProcess_BufferRecovery(t *testing.T) {
	channels := &fakeChannels{active: map[string]bool{NormalizeSourceID(-1001): true}}
	messages := newFakeMessages()
	messages.saveErr = errors.New("store unreachable")
	handler := &recordingHandler{}
	p := newTestProcessor(channels, messages, handler)

	for i := int64(1); i <= 3; i++ {
		raw := models.UpstreamMessage{ChatID: -1001, MessageID: i, Text: "hello", MessageDate: time.Now()}
		msg, err := p.Process(context.Background(), raw)
		require.NoError(t, err)
		assert.Nil(t, msg)
	}

	require.Eventually(t, func() bool { return p.buffer.Len() == 3 }, time.Second, 10*time.Millisecond)

	messages.mu.Lock()
	messages.saveErr = nil
	messages.mu.Unlock()

	ok := p.FlushBuffer(context.Background())
	require.True(t, ok)
	assert.Equal(t, 0, p.buffer.Len())
	assert.Len(t, messages.saved, 3)

	ok = p.FlushBuffer(context.Background())
	require.True(t, ok)
	assert.Equal(t, 0, p.buffer.Len())
}
