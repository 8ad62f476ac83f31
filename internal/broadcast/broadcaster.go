// Package broadcast implements the Broadcaster / Subscriber Server: the
// persistent push side of the relay. Every subscriber connection runs the
// auth state machine described in §4.6 before joining the live fan-out set
// (§4.6, §5).
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"signalrelay/internal/metrics"
	"signalrelay/internal/models"
)

// defaultAuthTimeout bounds how long a connection may sit in AwaitingAuth
// before being closed with code 4001, absent explicit configuration.
const defaultAuthTimeout = 5 * time.Second

// Close codes outside the standard 1000-range, used for the auth state
// machine's semantic failures (§4.6, §7).
const (
	closeAuthTimeout = ws.StatusCode(4001)
	closeInvalidKey  = ws.StatusCode(4002)
)

// closeNormalShutdown is the code every live subscriber is closed with
// during graceful process shutdown (§5).
const closeNormalShutdown = ws.StatusGoingAway

// KeyValidator resolves a subscriber's presented API key to active/inactive.
// Satisfied by an adapter over store.ClientRepo.LookupByKey; kept as a
// narrow interface so the broadcaster never depends on the store package.
type KeyValidator interface {
	ValidateClientKey(ctx context.Context, key string) (bool, error)
}

// ValidatorFunc adapts a plain function to a KeyValidator.
type ValidatorFunc func(ctx context.Context, key string) (bool, error)

func (f ValidatorFunc) ValidateClientKey(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

// authFrame is the single frame a subscriber must send within authTimeout.
type authFrame struct {
	Action string `json:"action"`
	APIKey string `json:"api_key"`
}

// statusFrame is sent on auth success or failure, before any live frames.
type statusFrame struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// liveFrame is the envelope for both broadcast callbacks (§4.6): exactly
// one of Data or Payload is set.
type liveFrame struct {
	Type    string                   `json:"type"`
	Data    *models.ProcessedMessage `json:"data,omitempty"`
	Payload *models.TradingSignal    `json:"payload,omitempty"`
}

// Broadcaster owns the live connection set and the recent-backlog ring. A
// single exclusive guard covers both, since broadcast co-mutates them (§5).
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	backlog     *backlog

	validator   KeyValidator
	logger      zerolog.Logger
	authTimeout time.Duration
	nextID      atomic.Int64
}

// Config bundles a Broadcaster's dependencies and §5 timeouts. Zero-valued
// AuthTimeout, BacklogCapacity, or ReplayCount fall back to the §4.6
// defaults.
type Config struct {
	Validator       KeyValidator
	Logger          zerolog.Logger
	AuthTimeout     time.Duration
	BacklogCapacity int
	ReplayCount     int
}

// New builds a Broadcaster from cfg.
func New(cfg Config) *Broadcaster {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.BacklogCapacity <= 0 {
		cfg.BacklogCapacity = defaultBacklogCapacity
	}
	if cfg.ReplayCount <= 0 {
		cfg.ReplayCount = defaultReplayCount
	}
	return &Broadcaster{
		subscribers: make(map[*subscriber]struct{}),
		backlog:     newBacklog(cfg.BacklogCapacity, cfg.ReplayCount),
		validator:   cfg.Validator,
		logger:      cfg.Logger,
		authTimeout: cfg.AuthTimeout,
	}
}

// HandleWebSocket upgrades r to a WebSocket connection and drives it through
// the auth state machine in its own goroutine.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		b.logger.Error().Err(err).Msg("subscriber upgrade failed")
		return
	}

	sub := newSubscriber(b.nextID.Add(1), conn)
	go b.serve(sub)
}

// serve runs one subscriber connection end to end: authenticate, join the
// live set, pump writes, and clean up on exit.
func (b *Broadcaster) serve(sub *subscriber) {
	defer sub.closeConn()

	if !b.authenticate(sub) {
		return
	}

	// The status frame and backlog replay are enqueued into sub.send, and
	// sub only joins b.subscribers, under the same lock: a Broadcast that
	// runs the instant the lock releases can already see sub in the map,
	// so its frame must queue behind the backlog rather than race it
	// (§8 invariant #4: backlog replay precedes any post-auth live frame).
	b.mu.Lock()
	sub.authAt = time.Now()
	if data, err := json.Marshal(statusFrame{Status: "authenticated", Message: "connected"}); err == nil {
		sub.tryEnqueue(data)
	}
	for _, msg := range b.backlog.recent() {
		data, err := json.Marshal(liveFrame{Type: "signal", Data: &msg})
		if err != nil {
			b.logger.Error().Err(err).Msg("failed to marshal backlog frame")
			continue
		}
		sub.tryEnqueue(data)
	}
	b.subscribers[sub] = struct{}{}
	active := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSubscribersActive(active)

	done := make(chan struct{})
	go b.writePump(sub, done)
	b.readUntilClose(sub)
	sub.closeConn()
	<-done
	b.remove(sub)
}

// authenticate reads the first frame within authTimeout and validates it.
// Returns true only on a successfully validated key.
func (b *Broadcaster) authenticate(sub *subscriber) bool {
	sub.conn.SetReadDeadline(time.Now().Add(b.authTimeout))
	defer sub.conn.SetReadDeadline(time.Time{})

	msg, _, err := wsutil.ReadClientData(sub.conn)
	if err != nil {
		metrics.IncSubscriberRejected("timeout")
		b.closeWithCode(sub, closeAuthTimeout, "auth timeout")
		return false
	}

	sub.setState(stateValidatingKey)

	var frame authFrame
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Action != "auth" || frame.APIKey == "" {
		metrics.IncSubscriberRejected("malformed")
		b.sendStatus(sub, statusFrame{Status: "error", Message: "Invalid API Key"})
		b.closeWithCode(sub, closeInvalidKey, "malformed auth frame")
		return false
	}

	valid, err := b.validator.ValidateClientKey(context.Background(), frame.APIKey)
	if err != nil || !valid {
		metrics.IncSubscriberRejected("invalid_key")
		b.sendStatus(sub, statusFrame{Status: "error", Message: "Invalid API Key"})
		b.closeWithCode(sub, closeInvalidKey, "invalid api key")
		return false
	}

	sub.setState(stateAuthenticated)
	metrics.IncSubscriberConnected()
	return true
}

func (b *Broadcaster) sendStatus(sub *subscriber, frame statusFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	return b.writeDirect(sub, data)
}

func (b *Broadcaster) writeDirect(sub *subscriber, data []byte) bool {
	sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := wsutil.WriteServerMessage(sub.conn, ws.OpText, data); err != nil {
		b.logger.Debug().Err(err).Int64("subscriber_id", sub.id).Msg("write failed")
		return false
	}
	return true
}

func (b *Broadcaster) closeWithCode(sub *subscriber, code ws.StatusCode, reason string) {
	body := ws.NewCloseFrameBody(code, reason)
	ws.WriteFrame(sub.conn, ws.NewCloseFrame(body))
}

// writePump drains sub.send and writes frames and periodic pings until the
// connection is closed or a write fails.
func (b *Broadcaster) writePump(sub *subscriber, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(27 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			if !ok {
				return
			}
			if !b.writeDirect(sub, data) {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := wsutil.WriteServerMessage(sub.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClose blocks reading frames from sub until the peer closes or an
// error occurs. Subscribers are not expected to send anything after
// authenticating; any payload received is discarded.
func (b *Broadcaster) readUntilClose(sub *subscriber) {
	for {
		_, op, err := wsutil.ReadClientData(sub.conn)
		if err != nil || op == ws.OpClose {
			return
		}
	}
}

func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	active := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSubscribersActive(active)
}

// Broadcast fans a processed message out to every authenticated subscriber
// whose send-buffer is writable, and records it in the recent-backlog ring.
// Never blocks: a full subscriber buffer is skipped, not waited on (§4.6).
func (b *Broadcaster) Broadcast(msg models.ProcessedMessage) {
	frame := liveFrame{Type: "signal", Data: &msg}
	data, err := json.Marshal(frame)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}

	b.mu.Lock()
	b.backlog.add(msg)
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.tryEnqueue(data) {
			metrics.IncBroadcastSent()
		} else {
			metrics.IncBroadcastDropped()
			b.logger.Debug().Int64("subscriber_id", s.id).Msg("subscriber buffer full, broadcast skipped")
		}
	}
}

// BroadcastSignal fans a parsed trading signal out using the payload
// envelope. Not recorded in the recent-backlog ring, which holds only
// ProcessedMessages (§4.6).
func (b *Broadcaster) BroadcastSignal(signal models.TradingSignal) {
	frame := liveFrame{Type: "signal", Payload: &signal}
	data, err := json.Marshal(frame)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal broadcast signal")
		return
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.tryEnqueue(data) {
			metrics.IncBroadcastSent()
		} else {
			metrics.IncBroadcastDropped()
			b.logger.Debug().Int64("subscriber_id", s.id).Msg("subscriber buffer full, signal broadcast skipped")
		}
	}
}

// Count returns the number of currently authenticated subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Shutdown closes every live subscriber with the normal-shutdown code
// (§5). It returns once every connection is closed; it does not wait for
// the per-connection goroutines to exit.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.closeWithCode(s, closeNormalShutdown, "server shutting down")
		s.closeConn()
	}
}
