// Command relay is the signalrelay process entrypoint: it wires the
// upstream connector, the message processor, the subscriber broadcaster,
// and the admin HTTP surface together and drives the graceful shutdown
// sequence described in §5.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"signalrelay/internal/admin"
	"signalrelay/internal/broadcast"
	"signalrelay/internal/buffer"
	"signalrelay/internal/config"
	"signalrelay/internal/logging"
	"signalrelay/internal/metrics"
	"signalrelay/internal/models"
	"signalrelay/internal/parser"
	"signalrelay/internal/processor"
	"signalrelay/internal/store"
	"signalrelay/internal/upstream"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatPretty, Service: "signalrelay"})

	cfg, err := config.Load(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Print()

	logger := logging.New(logging.Config{
		Level:   logging.Level(cfg.LogLevel),
		Format:  logging.Format(cfg.LogFormat),
		Service: "signalrelay",
	})

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("relay exited with error")
	}
}

// messageHandlerFunc adapts a plain function to processor.MessageHandler.
type messageHandlerFunc func(models.ProcessedMessage)

func (f messageHandlerFunc) HandleProcessedMessage(msg models.ProcessedMessage) { f(msg) }

// signalHandlerFunc adapts a plain function to processor.SignalHandler.
type signalHandlerFunc func(models.TradingSignal)

func (f signalHandlerFunc) HandleSignal(signal models.TradingSignal) { f(signal) }

// clientKeyValidator adapts store.ClientRepo.LookupByKey to the narrow
// broadcast.KeyValidator the subscriber auth state machine depends on.
func clientKeyValidator(clients *store.ClientRepo) broadcast.KeyValidator {
	return broadcast.ValidatorFunc(func(ctx context.Context, key string) (bool, error) {
		client, err := clients.LookupByKey(ctx, key)
		if err != nil {
			return false, nil
		}
		return client.IsActive, nil
	})
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBConnectTimeout, cfg.DBIdleTimeout)
	if err != nil {
		return err
	}

	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return err
	}

	clients := store.NewClientRepo(pool)
	channels := store.NewChannelRepo(pool)
	messages := store.NewMessageRepo(pool)

	buf := buffer.New(cfg.BufferCapacity, logging.WithComponent(logger, "buffer"))
	textParser := parser.New()

	broadcaster := broadcast.New(broadcast.Config{
		Validator:       clientKeyValidator(clients),
		Logger:          logging.WithComponent(logger, "broadcast"),
		AuthTimeout:     cfg.AuthTimeout,
		BacklogCapacity: cfg.BacklogSize,
		ReplayCount:     cfg.ReplayOnAuth,
	})

	proc := processor.New(processor.Config{
		Channels:         channels,
		Messages:         messages,
		Parser:           textParser,
		Buffer:           buf,
		BroadcastEnabled: true,
		MessageHandler:   messageHandlerFunc(broadcaster.Broadcast),
		SignalHandler:    signalHandlerFunc(broadcaster.BroadcastSignal),
		Logger:           logging.WithComponent(logger, "processor"),
	})

	// The history loader runs its own processor instance with broadcasting
	// disabled, so backfills persist but never fan out to live subscribers
	// (§9's open question on loader/connector separation).
	backfillProc := processor.New(processor.Config{
		Channels:         channels,
		Messages:         messages,
		Parser:           textParser,
		Buffer:           buf,
		BroadcastEnabled: false,
		Logger:           logging.WithComponent(logger, "backfill"),
	})

	connector := upstream.New(upstream.Config{
		WSURL:            cfg.UpstreamWSURL,
		APIKey:           cfg.UpstreamAPIKey,
		Processor:        proc,
		Logger:           logging.WithComponent(logger, "upstream"),
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
	})

	loader := upstream.NewLoader(upstream.LoaderConfig{
		BaseURL:   cfg.UpstreamHTTPURL,
		APIKey:    cfg.UpstreamAPIKey,
		Processor: backfillProc,
		Logger:    logging.WithComponent(logger, "history"),
		Timeout:   cfg.HistoryTimeout,
	})

	adminServer := admin.New(admin.Config{
		Clients:        clients,
		Channels:       channels,
		Messages:       messages,
		History:        loader,
		DB:             pool,
		MasterKey:      cfg.AdminMasterKey,
		ServiceName:    "signalrelay",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		Logger:         logging.WithComponent(logger, "admin"),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broadcaster.HandleWebSocket)
	mux.Handle("/", adminServer.Handler())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	collector := metrics.NewCollector(cfg.StatsTickInterval)
	collector.Start()

	flushTicker := time.NewTicker(cfg.BufferFlushEvery)
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-flushTicker.C:
				proc.FlushBuffer(context.Background())
			}
		}
	}()

	connectorDone := make(chan struct{})
	go func() {
		defer close(connectorDone)
		connector.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	return shutdownSequence(shutdownArgs{
		httpServer:    httpServer,
		connector:     connector,
		connectorDone: connectorDone,
		flushTicker:   flushTicker,
		flushDone:     flushDone,
		broadcaster:   broadcaster,
		proc:          proc,
		collector:     collector,
		pool:          pool,
		logger:        logger,
	})
}

type shutdownArgs struct {
	httpServer    *http.Server
	connector     *upstream.Connector
	connectorDone <-chan struct{}
	flushTicker   *time.Ticker
	flushDone     <-chan struct{}
	broadcaster   *broadcast.Broadcaster
	proc          *processor.Processor
	collector     *metrics.Collector
	pool          *pgxpool.Pool
	logger        zerolog.Logger
}

// shutdownSequence runs the §5 graceful shutdown order: stop background
// timers, close the upstream connector, close subscriber connections,
// flush the durable buffer one last time, then tear down the HTTP server
// and database pool.
func shutdownSequence(a shutdownArgs) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.collector.Stop()
	a.flushTicker.Stop()
	<-a.flushDone

	a.logger.Info().Msg("closing upstream connector")
	a.connector.Close()
	a.connector.Wait()
	<-a.connectorDone

	a.logger.Info().Int("subscribers", a.broadcaster.Count()).Msg("closing subscriber connections")
	a.broadcaster.Shutdown()

	a.logger.Info().Msg("running final buffer flush")
	a.proc.FlushBuffer(shutdownCtx)

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown error")
	}

	a.pool.Close()
	a.logger.Info().Msg("shutdown complete")
	return nil
}
