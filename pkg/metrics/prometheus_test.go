package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCountsAndGauges(t *testing.T) {
	r := NewWith(prometheus.NewRegistry())

	r.RecordMessageSent("clickhouse", "AAPL")
	r.RecordMessageSent("clickhouse", "AAPL")
	r.RecordError("consumer_store")
	r.RecordLastPrice("AAPL", 189.5)
	r.RecordLastPrice("AAPL", 190.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sent.WithLabelValues("clickhouse", "AAPL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errs.WithLabelValues("consumer_store")))
	assert.Equal(t, 190.25, testutil.ToFloat64(r.lastPrice.WithLabelValues("AAPL")))
}

func TestRecorderLatencySeries(t *testing.T) {
	r := NewWith(prometheus.NewRegistry())

	r.RecordLatency("pipeline_process", 0.05)
	r.RecordLatency("pipeline_process", 0.07)
	r.RecordLatency("ch_insert_seconds", 0.01)

	assert.Equal(t, 2, testutil.CollectAndCount(r.durations))
}
