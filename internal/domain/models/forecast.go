package models

import (
	"sort"
	"time"
)

// PredictionSet maps strategy name to its forecast of the next close.
// Only finite values from successful strategies ever enter the set.
type PredictionSet map[string]float64

// Names returns the strategy names in sorted order.
func (p PredictionSet) Names() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Values returns the forecasts ordered by strategy name, so downstream
// numeric steps see a deterministic ordering.
func (p PredictionSet) Values() []float64 {
	names := p.Names()
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = p[name]
	}
	return out
}

// Clone returns a shallow copy.
func (p PredictionSet) Clone() PredictionSet {
	out := make(PredictionSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// AggregateMethod selects how surviving predictions collapse to one number.
type AggregateMethod string

const (
	MethodMean    AggregateMethod = "mean"
	MethodMedian  AggregateMethod = "median"
	MethodTrimmed AggregateMethod = "trimmed"
)

// Direction of the forecast relative to the last close.
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// Consensus is the outcome of clustering a PredictionSet: the surviving
// majority-cluster members, or the untouched input when no clustering ran.
type Consensus struct {
	Kept      PredictionSet
	Winner    int   // majority cluster label, meaningful when Clustered
	Sizes     []int // member count per cluster label
	Clustered bool
}

// EnsembleResult is the final forecast for one symbol and interval.
type EnsembleResult struct {
	Symbol        string        `json:"symbol"`
	Interval      string        `json:"interval"`
	Timestamp     time.Time     `json:"timestamp"`
	LastClose     float64       `json:"last_close"`
	Forecast      float64       `json:"forecast"`
	Direction     string        `json:"direction"`
	PctChange     float64       `json:"pct_change"`
	Method        string        `json:"method"`
	StrategyCount int           `json:"strategy_count"`
	Strategies    []string      `json:"strategies"`      // every strategy that produced a value, sorted
	Raw           PredictionSet `json:"raw_predictions"` // raw per-strategy forecasts, pre-consensus
	WinnerSize    int           `json:"winner_size"`     // members in the winning consensus cluster
	Clustered     bool          `json:"clustered"`
	Regime        *int          `json:"regime"` // nil when regime detection abstained or failed
}

// RegimeResult labels each history row with a market regime cluster.
type RegimeResult struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	// Labels align with the input rows; NoRegime marks rows whose
	// feature vector was incomplete.
	Labels    []int `json:"labels"`
	Last      int   `json:"last"` // label of the final row, NoRegime if it was incomplete
	K         int   `json:"k"`
	Rows      int   `json:"rows"` // complete rows used for fitting/classification
	Retrained bool  `json:"retrained"`
}

// NoRegime marks rows excluded from regime classification.
const NoRegime = -1
