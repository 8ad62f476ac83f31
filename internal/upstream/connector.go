// Package upstream implements the two capture-service clients: the
// long-lived push Connector and the request-driven history Loader (§4.4,
// §4.5). Both materialize capture-service frames into models.UpstreamMessage
// and hand them to a processor instance; neither parses or persists itself.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signalrelay/internal/metrics"
	"signalrelay/internal/models"
)

// MessageProcessor is the subset of processor.Processor the connector needs.
type MessageProcessor interface {
	Process(ctx context.Context, raw models.UpstreamMessage) (*models.Message, error)
}

// Default exponential backoff bounds, used when a Connector isn't
// configured with its own ReconnectInitial/ReconnectMax.
const (
	defaultReconnectInitialDelay = 1 * time.Second
	defaultReconnectMaxDelay     = 60 * time.Second
)

// Connector is the long-lived push client to the capture service (§4.4).
// Dial failures and read errors both trigger reconnection with exponential
// backoff starting at ReconnectInitial, doubling, capped at ReconnectMax; a
// successful connection resets the delay. Close sets a manual-close flag so
// the reconnect loop exits instead of redialing.
type Connector struct {
	wsURL  string
	apiKey string

	processor MessageProcessor
	logger    zerolog.Logger

	dialer *websocket.Dialer

	reconnectInitial time.Duration
	reconnectMax     time.Duration

	manualClose atomic.Bool
	done        chan struct{}
}

// Config bundles a Connector's dependencies. Zero-valued ReconnectInitial or
// ReconnectMax fall back to the package defaults.
type Config struct {
	WSURL            string
	APIKey           string
	Processor        MessageProcessor
	Logger           zerolog.Logger
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// New builds a Connector. Call Run in its own goroutine to start the
// connect/read/reconnect loop.
func New(cfg Config) *Connector {
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = defaultReconnectInitialDelay
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMaxDelay
	}
	return &Connector{
		wsURL:            cfg.WSURL,
		apiKey:           cfg.APIKey,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
		dialer:           &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectInitial: cfg.ReconnectInitial,
		reconnectMax:     cfg.ReconnectMax,
		done:             make(chan struct{}),
	}
}

// Run blocks, dialing and redialing the upstream socket until ctx is
// cancelled or Close is called.
func (c *Connector) Run(ctx context.Context) {
	defer close(c.done)

	delay := c.reconnectInitial
	for {
		if ctx.Err() != nil || c.manualClose.Load() {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			metrics.IncUpstreamReconnect()
			c.logger.Error().Err(err).Dur("retry_in", delay).Msg("upstream connect failed")
			if !c.sleep(ctx, delay) {
				return
			}
			delay = c.nextDelay(delay)
			continue
		}

		c.logger.Info().Str("url", c.wsURL).Msg("upstream connected")
		metrics.SetUpstreamConnected(true)
		delay = c.reconnectInitial

		readErr := c.readLoop(ctx, conn)
		conn.Close()
		metrics.SetUpstreamConnected(false)

		if ctx.Err() != nil || c.manualClose.Load() {
			return
		}
		metrics.IncUpstreamReconnect()
		c.logger.Warn().Err(readErr).Dur("retry_in", delay).Msg("upstream connection lost, reconnecting")
		if !c.sleep(ctx, delay) {
			return
		}
		delay = c.nextDelay(delay)
	}
}

// Close disables reconnection and stops Run as soon as its current blocking
// operation (dial, sleep, or read) returns.
func (c *Connector) Close() {
	c.manualClose.Store(true)
}

// Wait blocks until Run has returned.
func (c *Connector) Wait() {
	<-c.done
}

func (c *Connector) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > c.reconnectMax {
		return c.reconnectMax
	}
	return d
}

func (c *Connector) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	header := http.Header{}
	header.Set("X-API-Key", c.apiKey)

	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial upstream: %w", err)
	}
	return conn, nil
}

// readLoop reads frames until the connection errors or ctx is cancelled.
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Closing the connection on cancellation unblocks a pending ReadMessage,
	// which does not observe ctx itself.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.manualClose.Load() {
			return nil
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event models.UpstreamEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.logger.Debug().Err(err).Msg("malformed upstream frame, dropped")
			continue
		}

		c.handleEvent(ctx, event)
	}
}

func (c *Connector) handleEvent(ctx context.Context, event models.UpstreamEvent) {
	switch event.Type {
	case models.EventNewMessage:
		if event.Message == nil {
			c.logger.Debug().Msg("new_message frame missing message body, dropped")
			return
		}
		if _, err := c.processor.Process(ctx, *event.Message); err != nil {
			c.logger.Error().Err(err).Msg("processing upstream message failed")
		}
	case models.EventMessageEdited:
		c.logger.Debug().Msg("message_edited event ignored")
	case models.EventMessagesDeleted:
		c.logger.Debug().Ints64("message_ids", event.Messages).Msg("messages_deleted event ignored")
	default:
		c.logger.Debug().Str("type", string(event.Type)).Msg("unknown upstream event type, dropped")
	}
}
