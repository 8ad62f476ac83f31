// Package processor implements the message processor: the orchestrator
// that normalizes, filters, deduplicates, parses, persists, and emits
// every upstream message, falling back to the durable buffer on write
// failure (§4.3).
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"signalrelay/internal/buffer"
	"signalrelay/internal/metrics"
	"signalrelay/internal/models"
	"signalrelay/internal/parser"
)

// MessageHandler receives every successfully persisted message. Registered
// at construction, not captured as a closure, so the broadcaster's
// broadcast path never calls back into the processor (§9).
type MessageHandler interface {
	HandleProcessedMessage(models.ProcessedMessage)
}

// SignalHandler receives every successfully persisted message whose text
// parsed into a TradingSignal.
type SignalHandler interface {
	HandleSignal(models.TradingSignal)
}

// ChannelChecker is the subset of ChannelRepo the processor depends on.
type ChannelChecker interface {
	IsActive(ctx context.Context, sourceID string) (bool, error)
}

// MessageStore is the subset of MessageRepo the processor depends on.
type MessageStore interface {
	Exists(ctx context.Context, fingerprint string) (bool, error)
	Save(ctx context.Context, input models.MessageInput) (*models.Message, error)
}

// Processor is the §4.3 orchestrator. A single instance is sequential per
// upstream connection: Process must not be called concurrently for events
// from the same connector (§5's ordering guarantee).
type Processor struct {
	channels ChannelChecker
	messages MessageStore
	parser   *parser.Parser
	buffer   *buffer.Buffer

	// broadcastEnabled gates both handlers together (§9 open question:
	// the history loader's processor instance is constructed with this
	// false so backfills never fan out to live subscribers).
	broadcastEnabled bool

	messageHandler MessageHandler
	signalHandler  SignalHandler

	logger zerolog.Logger
}

// Config bundles a Processor's dependencies.
type Config struct {
	Channels         ChannelChecker
	Messages         MessageStore
	Parser           *parser.Parser
	Buffer           *buffer.Buffer
	BroadcastEnabled bool
	MessageHandler   MessageHandler
	SignalHandler    SignalHandler
	Logger           zerolog.Logger
}

// New builds a Processor from cfg.
func New(cfg Config) *Processor {
	return &Processor{
		channels:         cfg.Channels,
		messages:         cfg.Messages,
		parser:           cfg.Parser,
		buffer:           cfg.Buffer,
		broadcastEnabled: cfg.BroadcastEnabled,
		messageHandler:   cfg.MessageHandler,
		signalHandler:    cfg.SignalHandler,
		logger:           cfg.Logger,
	}
}

// NormalizeSourceID canonicalizes a raw upstream chat id into the
// fully-qualified 13-digit negative supergroup form (§4.3).
func NormalizeSourceID(raw int64) string {
	switch {
	case raw > 0:
		return strconv.FormatInt(-1_000_000_000_000-raw, 10)
	case raw < 0:
		s := strconv.FormatInt(raw, 10)
		if len(s) < 13 {
			return strconv.FormatInt(-1_000_000_000_000-(-raw), 10)
		}
		return s
	default:
		return strconv.FormatInt(-1_000_000_000_000, 10)
	}
}

// Fingerprint computes the unique dedupe key for a normalized source-id and
// an upstream message id.
func Fingerprint(normalizedSourceID string, upstreamMessageID int64) string {
	return fmt.Sprintf("%s_%d", normalizedSourceID, upstreamMessageID)
}

// Process runs the full pipeline for one upstream message. A nil Message
// with a nil error covers every normal drop: inactive channel, duplicate
// fingerprint, or a buffered write after a store failure.
func (p *Processor) Process(ctx context.Context, raw models.UpstreamMessage) (*models.Message, error) {
	start := time.Now()
	defer func() { metrics.ObserveProcessingDuration(time.Since(start)) }()

	normalized := NormalizeSourceID(raw.ChatID)

	active, err := p.channels.IsActive(ctx, normalized)
	if err != nil {
		p.logger.Error().Err(err).Str("source_id", normalized).Msg("whitelist check failed, buffering")
		metrics.IncMessageOutcome(metrics.OutcomeBuffered)
		p.bufferAndFlush(ctx, raw, normalized, nil)
		return nil, nil
	}
	if !active {
		metrics.IncMessageOutcome(metrics.OutcomeFiltered)
		return nil, nil
	}

	fingerprint := Fingerprint(normalized, raw.MessageID)
	exists, err := p.messages.Exists(ctx, fingerprint)
	if err != nil {
		p.logger.Error().Err(err).Str("fingerprint", fingerprint).Msg("dedupe check failed, buffering")
		metrics.IncMessageOutcome(metrics.OutcomeBuffered)
		p.bufferAndFlush(ctx, raw, normalized, nil)
		return nil, nil
	}
	if exists {
		metrics.IncMessageOutcome(metrics.OutcomeDuplicate)
		return nil, nil
	}

	parsed := p.parser.Parse(parser.Input{
		Text:              raw.Text,
		ChannelName:       raw.ChatTitle,
		ChannelID:         normalized,
		UpstreamMessageID: raw.MessageID,
		MessageDate:       raw.MessageDate,
		Media:             raw.Files,
	})
	if parsed != nil {
		metrics.IncParserVariant(string(parsed.Type))
	}

	input := buildMessageInput(normalized, fingerprint, raw, parsed)

	msg, err := p.messages.Save(ctx, input)
	if err != nil {
		p.logger.Error().Err(err).Str("fingerprint", fingerprint).Msg("persist failed, buffering")
		metrics.IncMessageOutcome(metrics.OutcomeBuffered)
		p.bufferAndFlush(ctx, raw, normalized, parsed)
		return nil, nil
	}
	if msg == nil {
		// Race-lost duplicate: another call inserted first.
		metrics.IncMessageOutcome(metrics.OutcomeDuplicate)
		return nil, nil
	}

	metrics.IncMessageOutcome(metrics.OutcomeSaved)
	p.emit(*msg, raw.ChatTitle, parsed)
	return msg, nil
}

func (p *Processor) bufferAndFlush(ctx context.Context, raw models.UpstreamMessage, normalized string, parsed *models.TradingSignal) {
	item := models.BufferedItem{
		Raw:         raw,
		Parsed:      parsed,
		Fingerprint: Fingerprint(normalized, raw.MessageID),
		RetryCount:  0,
		EnqueuedAt:  time.Now(),
	}
	p.buffer.Append(item)
	metrics.SetBufferDepth(p.buffer.Len(), p.buffer.Cap())
	go p.buffer.Flush(ctx, p.flushOne)
}

// flushOne is the buffer.FlushFunc: re-persist one buffered item. The
// whitelist check is repeated, since an item is also buffered when the
// whitelist lookup itself failed; the dedupe check is not, since Save's
// conflict-on-fingerprint insert drops a duplicate either way.
func (p *Processor) flushOne(ctx context.Context, item models.BufferedItem) error {
	normalized := NormalizeSourceID(item.Raw.ChatID)
	active, err := p.channels.IsActive(ctx, normalized)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}
	input := buildMessageInput(normalized, item.Fingerprint, item.Raw, item.Parsed)

	msg, err := p.messages.Save(ctx, input)
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	p.emit(*msg, item.Raw.ChatTitle, item.Parsed)
	return nil
}

// FlushBuffer runs one buffer flush attempt; intended to be called by the
// process supervisor's periodic timer (every 30s, §5).
func (p *Processor) FlushBuffer(ctx context.Context) bool {
	ok := p.buffer.Flush(ctx, p.flushOne)
	metrics.SetBufferDepth(p.buffer.Len(), p.buffer.Cap())
	return ok
}

func (p *Processor) emit(msg models.Message, channelName string, parsed *models.TradingSignal) {
	if !p.broadcastEnabled {
		return
	}
	if p.messageHandler != nil {
		p.messageHandler.HandleProcessedMessage(msg.ToProcessedMessage(channelName, parsed))
	}
	if parsed != nil && p.signalHandler != nil {
		p.signalHandler.HandleSignal(*parsed)
	}
}

func buildMessageInput(normalizedSourceID, fingerprint string, raw models.UpstreamMessage, parsed *models.TradingSignal) models.MessageInput {
	input := models.MessageInput{
		Fingerprint:  fingerprint,
		SourceID:     normalizedSourceID,
		Text:         raw.Text,
		OriginalTime: raw.MessageDate,
	}

	if parsed == nil {
		return input
	}

	var parsedJSON json.RawMessage
	if b, err := json.Marshal(parsed); err == nil {
		parsedJSON = b
	}
	input.ParsedSignal = parsedJSON
	input.Ticker = parsed.Ticker

	input.Direction = legacyDirection(parsed)
	input.Entry = legacyEntry(parsed)
	input.StopLoss = legacyStopLoss(parsed)
	input.TakeProfit = legacyTakeProfit(parsed)

	return input
}

// legacyDirection uppercases whichever variant's side field is directional
// (strong/medium/entry_signal/quick_target's own side, or funding_rate's
// recommended action); sentiment's side is always neutral and projects to
// nil, matching "legacy columns MAY be null" (§3).
func legacyDirection(signal *models.TradingSignal) *models.Direction {
	side := models.SideNeutral
	switch {
	case signal.Direction != nil:
		side = signal.Direction.Side
	case signal.EntrySignal != nil:
		side = signal.EntrySignal.Side
	case signal.QuickTarget != nil:
		side = signal.QuickTarget.Side
	case signal.FundingInfo != nil:
		side = signal.FundingInfo.RecommendedAction
	}

	switch side {
	case models.SideLong:
		d := models.DirectionLong
		return &d
	case models.SideShort:
		d := models.DirectionShort
		return &d
	default:
		return nil
	}
}

func legacyEntry(signal *models.TradingSignal) *decimal.Decimal {
	switch {
	case signal.EntrySignal != nil && signal.EntrySignal.EntryPrice != nil:
		return decimalFromFloat(*signal.EntrySignal.EntryPrice)
	case signal.QuickTarget != nil && signal.QuickTarget.EntryPrice != nil:
		return decimalFromFloat(*signal.QuickTarget.EntryPrice)
	default:
		return nil
	}
}

// legacyStopLoss projects the entry_signal's stop_0_5 sub-field, the only
// variant the legacy column enumerates (§4.3 step 5).
func legacyStopLoss(signal *models.TradingSignal) *decimal.Decimal {
	if signal.EntrySignal == nil || signal.EntrySignal.StopLoss.Stop0_5 == nil {
		return nil
	}
	return decimalFromFloat(*signal.EntrySignal.StopLoss.Stop0_5)
}

func legacyTakeProfit(signal *models.TradingSignal) *decimal.Decimal {
	switch {
	case signal.EntrySignal != nil && len(signal.EntrySignal.Targets) > 0:
		return decimalFromFloat(signal.EntrySignal.Targets[0])
	case signal.QuickTarget != nil && len(signal.QuickTarget.Targets) > 0:
		return decimalFromFloat(signal.QuickTarget.Targets[0])
	default:
		return nil
	}
}

func decimalFromFloat(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
