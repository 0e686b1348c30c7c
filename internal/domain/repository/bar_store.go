package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
)

// Timeframe selects which bar resolution a query reads.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// IsValidTimeframe reports whether tf names a stored resolution.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF1h, TF1d:
		return true
	}
	return false
}

// DefaultTimeframe is the resolution used when a request does not pick one.
func DefaultTimeframe() Timeframe { return TF1d }

// NormalizeTimeframe maps a raw request string onto a supported resolution,
// falling back to the default for anything unknown.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// BarStore provides read access to bar history for forecasting.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
}

// BarWriter inserts bars directly, bypassing the tick pipeline. Used by
// backfill tooling.
type BarWriter interface {
	InsertBars(ctx context.Context, bars []models.Bar, tf Timeframe) error
}
