package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ForecastLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincast",
			Subsystem: "forecast",
			Name:      "latency_seconds",
			Help:      "Latency of forecast endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ForecastErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "forecast",
			Name:      "errors_total",
			Help:      "Errors by forecast endpoint",
		},
		[]string{"endpoint"},
	)

	StrategyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "forecast",
			Name:      "strategy_runs_total",
			Help:      "Strategy executions by name and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	ConsensusPassthrough = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "forecast",
			Name:      "consensus_passthrough_total",
			Help:      "Consensus rounds skipped for having fewer predictions than clusters",
		},
	)

	RegimeRetrains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "forecast",
			Name:      "regime_retrains_total",
			Help:      "Regime model refits",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ForecastLatency, ForecastErrors, StrategyRuns, ConsensusPassthrough, RegimeRetrains)
	})
}
