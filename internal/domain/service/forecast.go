package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// StrategyRunner executes every registered strategy against a series and
// collects the forecasts that succeeded.
type StrategyRunner interface {
	Run(ctx context.Context, series *models.PriceSeries) models.PredictionSet
}

// ConsensusFilter clusters a prediction set and keeps the majority cluster.
type ConsensusFilter interface {
	Filter(preds models.PredictionSet, k int) (models.Consensus, error)
}

// Aggregator collapses surviving predictions into a single forecast.
type Aggregator interface {
	Aggregate(preds models.PredictionSet, method models.AggregateMethod) (float64, error)
}

// RegimeDetector labels history rows with market regime clusters. It
// returns (nil, nil) when the history is too short to classify.
type RegimeDetector interface {
	Detect(ctx context.Context, series *models.PriceSeries, retrain bool) (*models.RegimeResult, error)
}

// Enricher derives the indicator columns strategies and the regime
// detector consume.
type Enricher interface {
	Enrich(symbol, interval string, bars []models.Bar) (*models.PriceSeries, error)
}
