package usecase

import (
	"context"
	"time"

	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerObserver is a consumer hook that times message handling and logs
// failures with their partition position. It never rejects a message itself,
// so it cannot push anything toward the DLQ.
type ConsumerObserver struct {
	lgr     *applogger.Logger
	metrics domrepo.Metrics
}

func NewConsumerObserver(lgr *applogger.Logger, metrics domrepo.Metrics) *ConsumerObserver {
	return &ConsumerObserver{lgr: lgr, metrics: metrics}
}

func (o *ConsumerObserver) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	ctx = pkgkafka.WithStartTime(ctx, time.Now())
	if id := pkgkafka.ExtractTraceID(km); id != "" {
		ctx = pkgkafka.WithTraceID(ctx, id)
	}
	return ctx, km, data, nil
}

func (o *ConsumerObserver) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if start, ok := pkgkafka.StartTimeFrom(ctx); ok {
		o.metrics.RecordLatency("consumer_handle_seconds", time.Since(start).Seconds())
	}
}

func (o *ConsumerObserver) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	o.metrics.RecordError("consumer_handle")
	if o.lgr == nil {
		return
	}
	fields := []applogger.Field{
		applogger.String("topic", topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	}
	if id, ok := pkgkafka.TraceIDFrom(ctx); ok {
		fields = append(fields, applogger.String("trace_id", id))
	}
	o.lgr.Error("kafka message failed", fields...)
}

var _ pkgkafka.ConsumerHook = (*ConsumerObserver)(nil)
