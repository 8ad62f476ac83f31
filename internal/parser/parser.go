// Package parser implements the pure, deterministic signal classifier:
// free text plus source metadata in, an optional structured TradingSignal
// out. No I/O, no blocking calls (§4.2, §5).
package parser

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"signalrelay/internal/models"
)

// Version is the parser_version recorded on every emitted signal.
const Version = "1.0.0"

// Input is the raw upstream message plus the metadata the parser needs
// but cannot derive from the text alone.
type Input struct {
	Text              string
	ChannelName       string
	ChannelID         string
	UpstreamMessageID int64
	MessageDate       time.Time
	Media             []models.UpstreamFile
}

// parseContext is the immutable view variant parsers operate over.
type parseContext struct {
	text        string
	messageDate time.Time
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

func extractTags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}

// Parser classifies raw upstream text into a TradingSignal. It holds no
// mutable state; a single instance is safe for concurrent use.
type Parser struct{}

// New builds a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse runs the fixed-priority type detection chain (§4.2) and, for the
// first matching variant, its dedicated extractor. Returns nil if no
// variant matches or the matching variant fails validation (no ticker,
// no exchange, or no detected side, per variant).
func (p *Parser) Parse(in Input) *models.TradingSignal {
	start := time.Now()
	ctx := parseContext{text: in.Text, messageDate: in.MessageDate}

	var signal *models.TradingSignal
	switch {
	case isFundingRate(ctx.text):
		signal = parseFundingRate(ctx)
	case isQuickTarget(ctx.text):
		signal = parseQuickTarget(ctx)
	case isSentiment(ctx.text):
		signal = parseSentiment(ctx)
	case strongSignalTagPattern.MatchString(ctx.text):
		signal = parseStrongMedium(ctx, 1)
	case mediumSignalTagPattern.MatchString(ctx.text):
		signal = parseStrongMedium(ctx, 2)
	case isEntrySignal(ctx.text):
		signal = parseEntrySignal(ctx)
	}

	if signal == nil {
		return nil
	}

	signal.SignalID = uuid.NewString()
	signal.EmittedAt = in.MessageDate
	signal.Source = models.SignalSource{
		ChannelName:       in.ChannelName,
		ChannelID:         in.ChannelID,
		UpstreamMessageID: in.UpstreamMessageID,
		OriginalText:      in.Text,
		Media:             in.Media,
	}
	signal.Metadata = models.SignalMetadata{
		ParserVersion:      Version,
		ProcessingDuration: time.Since(start),
		Language:           DetectLanguage(in.Text),
		Tags:               extractTags(in.Text),
	}
	return signal
}

var (
	strongSignalTagPattern = regexp.MustCompile(`#StrongSignal`)
	mediumSignalTagPattern = regexp.MustCompile(`#MediumSignal`)
)
