package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	mid "FinCast/internal/middleware"
	internalrepo "FinCast/internal/repository"
	icache "FinCast/internal/service/cache"
	"FinCast/internal/service/marketfeed"
	"FinCast/internal/service/warmup"
	"FinCast/internal/services/ensemble"
	"FinCast/internal/services/indicators"
	"FinCast/internal/services/regime"
	"FinCast/internal/services/strategies"
	"FinCast/internal/usecase"
	pkgcache "FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	pkgqueue "FinCast/pkg/queue"
	"FinCast/pkg/server"

	"github.com/redis/go-redis/v9"
)

// schema is everything the ingest and forecast paths read or write. Ticks
// land in fincast.ticks; materialized views roll them up into the bar
// tables the forecaster loads. The 5m/1h/1d views chain off bars_1m so a
// late tick only has to replay one level.
var schema = []string{
	"CREATE DATABASE IF NOT EXISTS fincast",
	"CREATE TABLE IF NOT EXISTS fincast.ticks (ts DateTime64(3), symbol LowCardinality(String), price Float64, volume Float64, source LowCardinality(String), event_id String, seq UInt64) ENGINE=MergeTree ORDER BY (symbol, ts)",
	"CREATE TABLE IF NOT EXISTS fincast.bars_1m (bucket DateTime, symbol LowCardinality(String), open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
	"CREATE TABLE IF NOT EXISTS fincast.bars_5m (bucket DateTime, symbol LowCardinality(String), open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
	"CREATE TABLE IF NOT EXISTS fincast.bars_1h (bucket DateTime, symbol LowCardinality(String), open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
	"CREATE TABLE IF NOT EXISTS fincast.bars_1d (bucket DateTime, symbol LowCardinality(String), open Float64, high Float64, low Float64, close Float64, vol Float64) ENGINE=ReplacingMergeTree ORDER BY (symbol, bucket)",
	"CREATE MATERIALIZED VIEW IF NOT EXISTS fincast.bars_1m_mv TO fincast.bars_1m AS SELECT toStartOfMinute(ts) AS bucket, symbol, argMin(price, ts) AS open, max(price) AS high, min(price) AS low, argMax(price, ts) AS close, sum(volume) AS vol FROM fincast.ticks GROUP BY bucket, symbol",
	"CREATE MATERIALIZED VIEW IF NOT EXISTS fincast.bars_5m_mv TO fincast.bars_5m AS SELECT toStartOfFiveMinutes(m.bucket) AS bucket, m.symbol AS symbol, argMin(m.open, m.bucket) AS open, max(m.high) AS high, min(m.low) AS low, argMax(m.close, m.bucket) AS close, sum(m.vol) AS vol FROM fincast.bars_1m AS m GROUP BY bucket, symbol",
	"CREATE MATERIALIZED VIEW IF NOT EXISTS fincast.bars_1h_mv TO fincast.bars_1h AS SELECT toStartOfHour(m.bucket) AS bucket, m.symbol AS symbol, argMin(m.open, m.bucket) AS open, max(m.high) AS high, min(m.low) AS low, argMax(m.close, m.bucket) AS close, sum(m.vol) AS vol FROM fincast.bars_1m AS m GROUP BY bucket, symbol",
	"CREATE MATERIALIZED VIEW IF NOT EXISTS fincast.bars_1d_mv TO fincast.bars_1d AS SELECT toStartOfDay(m.bucket) AS bucket, m.symbol AS symbol, argMin(m.open, m.bucket) AS open, max(m.high) AS high, min(m.low) AS low, argMax(m.close, m.bucket) AS close, sum(m.vol) AS vol FROM fincast.bars_1m AS m GROUP BY bucket, symbol",
}

// ProvideLogger creates the shared application logger. Production logs
// ship as JSON; everything else stays human readable.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	lgr, err := applogger.New(&applogger.Config{
		Level:  "info",
		Format: format,
		Output: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, schema); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTickStorage creates the ClickHouse tick sink. The table name is
// pinned to the schema above because the bar views read it by name.
func ProvideTickStorage(chClient *pkgch.Client) repository.Storage {
	return internalrepo.NewClickHouseTickStorage(chClient.DB(), "fincast.ticks")
}

// ProvideTickPublisher creates the Kafka publisher repository.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideMarketStream creates the market data WebSocket stream.
func ProvideMarketStream(cfg *config.Config, lgr *applogger.Logger) repository.MarketStream {
	feed := marketfeed.New(
		cfg.MarketFeed.APIKey,
		cfg.MarketFeed.WebSocketURL,
		cfg.MarketFeed.Symbols,
		cfg.MarketFeed.ReconnectDelay,
		cfg.MarketFeed.PingInterval,
	)
	feed.SetLogger(lgr)
	return feed
}

// ProvideTickProcessor creates the tick processor use case.
func ProvideTickProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(
		pub,
		store,
		metrics,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideTickCollector creates the tick collector use case.
func ProvideTickCollector(
	stream repository.MarketStream,
	processor *usecase.TickProcessor,
	metrics repository.Metrics,
) *usecase.TickCollector {
	// Build middleware pipeline between WebSocket and the processor
	pipe := mid.NewRealtimePipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
		mid.WithTransform(normalizeTick),
	)
	return usecase.NewTickCollector(stream, processor, metrics, pipe)
}

// normalizeTick maps feed quirks onto the canonical tick shape: symbols
// uppercase, receive time stamped when the feed left it empty.
func normalizeTick(t *models.Tick) *models.Tick {
	t.Symbol = strings.ToUpper(t.Symbol)
	if t.Received.IsZero() {
		t.Received = time.Now()
	}
	return t
}

// ProvideBarStore creates the bar history reader the forecaster loads from.
func ProvideBarStore(chClient *pkgch.Client, lgr *applogger.Logger) repository.BarStore {
	store := internalrepo.NewCHBarStore(chClient)
	store.SetLogger(lgr)
	return store
}

// ProvideArtifactStore creates the store for persisted regime models.
func ProvideArtifactStore(cfg *config.Config) (repository.ArtifactStore, error) {
	store, err := internalrepo.NewFSArtifactStore(cfg.Regime.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return store, nil
}

// ProvideEnricher creates the indicator enricher.
func ProvideEnricher() domsvc.Enricher {
	return indicators.NewEnricher()
}

// ProvideStrategyRunner creates the runner over the default strategy set.
func ProvideStrategyRunner(lgr *applogger.Logger) (domsvc.StrategyRunner, error) {
	reg, err := strategies.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("strategy registry: %w", err)
	}
	return strategies.NewRunner(reg, strategies.WithRunnerLogger(lgr)), nil
}

// ProvideConsensusFilter creates the consensus clusterer.
func ProvideConsensusFilter() domsvc.ConsensusFilter {
	return ensemble.NewConsensusClusterer()
}

// ProvideAggregator creates the prediction aggregator.
func ProvideAggregator() domsvc.Aggregator {
	return ensemble.NewAggregator()
}

// ProvideRegimeDetector creates the regime detector over persisted artifacts.
func ProvideRegimeDetector(store repository.ArtifactStore, cfg *config.Config, lgr *applogger.Logger) domsvc.RegimeDetector {
	return regime.NewDetector(store,
		regime.WithClusters(cfg.Regime.Clusters),
		regime.WithMinRows(cfg.Regime.MinRows),
		regime.WithLogger(lgr),
	)
}

// ProvideForecaster assembles the ensemble pipeline.
func ProvideForecaster(
	store repository.BarStore,
	enricher domsvc.Enricher,
	runner domsvc.StrategyRunner,
	consensus domsvc.ConsensusFilter,
	agg domsvc.Aggregator,
	detector domsvc.RegimeDetector,
	artifacts repository.ArtifactStore,
	cfg *config.Config,
	lgr *applogger.Logger,
) *usecase.Forecaster {
	f := usecase.NewForecaster(store, enricher, runner, consensus, agg, detector, artifacts, usecase.ForecasterConfig{
		Clusters:  cfg.Forecast.Clusters,
		Method:    models.AggregateMethod(cfg.Forecast.Method),
		MinBars:   cfg.Forecast.MinBars,
		Lookback:  cfg.Forecast.Lookback,
		RegimeTTL: cfg.Regime.TTL,
		Timeout:   cfg.Forecast.Timeout,
	})
	f.SetLogger(lgr)
	return f
}

// ProvideHistoryUseCase creates the enriched history reader.
func ProvideHistoryUseCase(store repository.BarStore, enricher domsvc.Enricher) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(store, enricher)
}

// ProvideResponseCache picks the HTTP response cache. Redis off or
// unreachable degrades to the in-process TTL cache so the API still serves.
func ProvideResponseCache(cfg *config.Config, lgr *applogger.Logger) icache.BytesCache {
	if !cfg.Redis.Enabled {
		return icache.NewTTLCache()
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("fincast:"+cfg.Environment),
	)
	if err != nil {
		lgr.Warn("redis cache unavailable, using in-process cache", applogger.Error(err))
		return icache.NewTTLCache()
	}
	return icache.NewServiceBytes(pkgcache.NewLayeredCache(rc))
}

// ProvideForecastHandler creates the HTTP API handler.
func ProvideForecastHandler(
	forecaster *usecase.Forecaster,
	history *usecase.HistoryUseCase,
	cache icache.BytesCache,
	lgr *applogger.Logger,
) xhttp.Handler {
	h := api.NewForecastHandler(forecaster, history)
	h.SetCache(cache)
	h.SetLogger(lgr)
	return h
}

// Warmup bundles the queue and the scheduler that feeds it. Both are nil
// when warmup or Redis is disabled; the app skips them then.
type Warmup struct {
	Queue  *pkgqueue.RedisQueue
	Warmer *warmup.Warmer
}

// ProvideWarmup creates the cache warmup queue and scheduler.
func ProvideWarmup(
	cfg *config.Config,
	forecaster *usecase.Forecaster,
	cache icache.BytesCache,
	lgr *applogger.Logger,
) *Warmup {
	if !cfg.Warmup.Enabled || !cfg.Redis.Enabled {
		return &Warmup{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := pkgqueue.NewRedisQueue(lgr, &pkgqueue.QueueConfig{
		Workers:    cfg.Warmup.Workers,
		RetryLimit: 2,
		RetryDelay: 30 * time.Second,
	}, client, pkgqueue.ModeProducerConsumer, pkgqueue.WithKeyPrefix(warmup.QueuePrefix))

	job := warmup.NewJob(forecaster, cache)
	job.SetLogger(lgr)
	q.RegisterJob(job)

	symbols := cfg.Warmup.Symbols
	if len(symbols) == 0 {
		symbols = cfg.MarketFeed.Symbols
	}
	w := warmup.NewWarmer(q, symbols, cfg.Warmup.Interval, cfg.Warmup.Every)
	w.SetLogger(lgr)

	return &Warmup{Queue: q, Warmer: w}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	lgr *applogger.Logger,
	handler xhttp.Handler,
	wb *Warmup,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			usecase.NewConsumerObserver(lgr, m),
		))
	}

	// Ship aggregated error logs to Kafka when a topic is configured. Flush
	// failures fall back to stderr inside the collector, so a dead broker
	// cannot loop error logs back into the shipper.
	if cfg.Kafka.LogsTopic != "" && producer != nil {
		lgr.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}

	app := server.New(cfg, collector, consumer, kh, chClient)
	app.SetLogger(lgr)
	app.SetHTTPHandler(handler)
	app.SetWarmup(wb.Queue, wb.Warmer)
	if collector != nil {
		app.SetTickProcessor(collector.Processor())
	}
	return app
}
