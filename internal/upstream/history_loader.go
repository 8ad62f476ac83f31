package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

// defaultBackfillTimeout bounds a backfill request and its processing when
// a Loader isn't configured with its own Timeout.
const defaultBackfillTimeout = 30 * time.Second

// LoadResult totals one backfill run (§4.5).
type LoadResult struct {
	Loaded     int
	Saved      int
	Duplicates int
}

// Loader is the request-driven History Loader (§4.5). It pulls messages
// from the capture service's HTTP backfill endpoint and runs each through a
// processor instance whose broadcasting is disabled, so backfills never fan
// out to live subscribers.
type Loader struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	processor  MessageProcessor
	logger     zerolog.Logger
	timeout    time.Duration
}

// LoaderConfig bundles a Loader's dependencies. Processor must be
// constructed with broadcasting disabled. A zero-valued Timeout falls back
// to defaultBackfillTimeout.
type LoaderConfig struct {
	BaseURL   string
	APIKey    string
	Processor MessageProcessor
	Logger    zerolog.Logger
	Timeout   time.Duration
}

// NewLoader builds a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBackfillTimeout
	}
	return &Loader{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		processor:  cfg.Processor,
		logger:     cfg.Logger,
		timeout:    timeout,
	}
}

// Load pulls up to limit historical messages for sourceID (0 means "all
// available") and runs each through the processor. A failure fetching or
// decoding the response is returned as an error; failures processing
// individual messages are logged and counted against neither Saved nor
// Duplicates.
func (l *Loader) Load(ctx context.Context, sourceID int64, limit int) (LoadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	messages, err := l.fetch(ctx, sourceID, limit)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{Loaded: len(messages)}
	for _, raw := range messages {
		saved, err := l.processor.Process(ctx, raw)
		if err != nil {
			l.logger.Error().Err(err).Int64("source_id", sourceID).Int64("message_id", raw.MessageID).Msg("backfill processing failed")
			continue
		}
		if saved == nil {
			result.Duplicates++
			continue
		}
		result.Saved++
	}

	l.logger.Info().Int64("source_id", sourceID).Int("loaded", result.Loaded).Int("saved", result.Saved).Int("duplicates", result.Duplicates).Msg("backfill complete")
	return result, nil
}

func (l *Loader) fetch(ctx context.Context, sourceID int64, limit int) ([]models.UpstreamMessage, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backfill url: %w", err)
	}
	u.Path = joinPath(u.Path, "/messages")

	q := u.Query()
	q.Set("chat_id", strconv.FormatInt(sourceID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build backfill request: %w", err)
	}
	req.Header.Set("X-API-Key", l.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTimeout, "backfill request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backfill response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperr.Wrap(apperr.ErrAuthFailure, "backfill request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backfill request: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var decoded models.BackfillResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode backfill response: %w", err)
	}
	return decoded.Messages, nil
}

func joinPath(base, suffix string) string {
	if base == "" {
		return suffix
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + suffix
}
