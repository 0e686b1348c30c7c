package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
)

// tickEvent is the wire form of one tick: {symbol, t, c, v} with t in
// epoch seconds or milliseconds depending on the feed.
type tickEvent struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
}

// seconds normalizes the event time to epoch seconds. Values that large
// can only be milliseconds.
func (e tickEvent) seconds() int64 {
	if e.T > 1e11 {
		return e.T / 1000
	}
	return e.T
}

// KafkaTicksHandler drains the tick topic into ClickHouse one message at a
// time and records the ingest latencies the dashboards watch.
type KafkaTicksHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var ev tickEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	ts := ev.seconds()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(ts, 0)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &models.Tick{
		Symbol:    ev.Symbol,
		Timestamp: ts,
		Price:     ev.C,
		Volume:    ev.V,
	})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return fmt.Errorf("store tick: %w", err)
	}
	h.metrics.RecordMessageSent("clickhouse", ev.Symbol)

	// Distance to the 1m bucket this tick lands in. The bar materialized
	// view fills it asynchronously, so this is an upper bound on bar lag.
	bucket := time.Unix(ts, 0).UTC().Truncate(time.Minute)
	h.metrics.RecordLatency("bar_lag_seconds", time.Since(bucket).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
