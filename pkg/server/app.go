package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FinCast/internal/service/warmup"
	"FinCast/internal/usecase"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	pkgqueue "FinCast/pkg/queue"
)

// App owns the process lifecycle: it starts the tick collector, the Kafka
// consumer, the warmup workers and the HTTP API, then unwinds them in
// reverse order on SIGINT/SIGTERM.
type App struct {
	cfg          *config.Config
	collector    *usecase.TickCollector
	consumer     *pkgkafka.Consumer
	ticksHandler pkgkafka.MessageHandler
	chClient     *pkgch.Client
	httpServer   *xhttp.Server
	httpHandler  xhttp.Handler
	lgr          *applogger.Logger
	warmQueue    *pkgqueue.RedisQueue
	warmer       *warmup.Warmer
	tickProc     *usecase.TickProcessor
}

func New(
	cfg *config.Config,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	th pkgkafka.MessageHandler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:          cfg,
		collector:    collector,
		consumer:     consumer,
		ticksHandler: th,
		chClient:     chClient,
	}
}

// SetHTTPHandler injects the route table served by the HTTP server.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetLogger injects the shared structured logger.
func (a *App) SetLogger(l *applogger.Logger) { a.lgr = l }

// SetTickProcessor hands the app the processor so shutdown can close its
// publisher and storage.
func (a *App) SetTickProcessor(p *usecase.TickProcessor) { a.tickProc = p }

// SetWarmup injects the cache warmup queue and scheduler. Either may be
// nil when warmup is disabled.
func (a *App) SetWarmup(q *pkgqueue.RedisQueue, w *warmup.Warmer) {
	a.warmQueue = q
	a.warmer = w
}

// Run starts everything and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.lgr
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	)

	a.startCollector(ctx, l)
	a.startConsumer(l)
	a.startWarmup(ctx, l)

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, l)
}

func (a *App) startCollector(ctx context.Context, l *applogger.Logger) {
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("collector started", applogger.Strings("symbols", a.cfg.MarketFeed.Symbols))
}

func (a *App) startConsumer(l *applogger.Logger) {
	if a.consumer == nil || a.ticksHandler == nil {
		return
	}
	a.consumer.RegisterHandler(a.ticksHandler)
	go func() {
		if err := a.consumer.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
		}
	}()
	l.Info("kafka consumer started", applogger.String("topic", a.ticksHandler.Topic()))
}

// startWarmup brings up the Redis-backed warmup queue. A dead Redis only
// costs warm caches, so the app keeps serving either way.
func (a *App) startWarmup(ctx context.Context, l *applogger.Logger) {
	if a.warmQueue == nil || a.warmer == nil {
		return
	}
	if err := a.warmQueue.Start(); err != nil {
		l.Warn("warmup queue start error", applogger.Error(err))
		return
	}
	a.warmer.Start(ctx)
	l.Info("cache warmup started")
}

// shutdown unwinds in dependency order: sources of new work stop before
// the sinks they feed.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.warmer != nil {
		a.warmer.Stop()
	}
	if a.warmQueue != nil {
		if err := a.warmQueue.Stop(shutdownCtx); err != nil {
			l.Warn("warmup queue stop error", applogger.Error(err))
		}
	}

	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// The processor's final flush still needs ClickHouse, so the client
	// closes last.
	if a.tickProc != nil {
		a.tickProc.Close()
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
