package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the Prometheus-backed implementation of the domain Metrics
// interface. Every series carries the fincast_ prefix.
type Recorder struct {
	sent      *prometheus.CounterVec
	errs      *prometheus.CounterVec
	lastPrice *prometheus.GaugeVec
	durations *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder { return NewWith(prometheus.DefaultRegisterer) }

// NewWith registers the collectors on reg. Tests pass a fresh registry so
// repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_messages_sent_total",
			Help: "Messages delivered, by backend and symbol.",
		}, []string{"backend", "symbol"}),
		errs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_errors_total",
			Help: "Pipeline errors by kind.",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fincast_last_price",
			Help: "Most recent price seen per symbol.",
		}, []string{"symbol"}),
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_operation_duration_seconds",
			Help:    "Latency per pipeline operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.sent.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errs.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.durations.WithLabelValues(op).Observe(seconds)
}
