package strategies

import (
	"context"
	"fmt"
	"math"

	"FinCast/internal/domain/models"
)

const (
	driftWindow = 5
	// fallbackVol stands in for the volatility column when it never
	// became available on a short series.
	fallbackVol = 0.01
	// neutralScale damps the drift applied when a reversal rule has no
	// signal either way.
	neutralScale = 0.1
)

// MACrossover reads the 10-vs-50-bar moving average relation as trend
// direction and sizes the move by the recent average return.
type MACrossover struct{}

// NewMACrossover returns the moving-average crossover strategy.
func NewMACrossover() *MACrossover { return &MACrossover{} }

func (m *MACrossover) Name() string { return "ma_crossover" }

func (m *MACrossover) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	last, ok := s.LastClose()
	if !ok {
		return 0, fmt.Errorf("ma_crossover %s: %w", s.Symbol, ErrInsufficientData)
	}
	ma10, ok10 := lastCell(s, models.ColMA10)
	ma50, ok50 := lastCell(s, models.ColMA50)
	if !ok10 || !ok50 {
		return 0, fmt.Errorf("ma_crossover %s: %w", s.Symbol, ErrIndicatorMissing)
	}
	drift, ok := recentDrift(s, driftWindow)
	if !ok {
		return 0, fmt.Errorf("ma_crossover %s: %w", s.Symbol, ErrInsufficientData)
	}
	direction := -1.0
	if ma10 > ma50 {
		direction = 1.0
	}
	return last * (1 + direction*math.Abs(drift)), nil
}

// RSIReversal bets on mean reversion out of overbought and oversold RSI
// territory, sized by current volatility.
type RSIReversal struct{}

// NewRSIReversal returns the RSI reversal strategy.
func NewRSIReversal() *RSIReversal { return &RSIReversal{} }

func (r *RSIReversal) Name() string { return "rsi_reversal" }

func (r *RSIReversal) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	last, ok := s.LastClose()
	if !ok {
		return 0, fmt.Errorf("rsi_reversal %s: %w", s.Symbol, ErrInsufficientData)
	}
	rsi, ok := lastCell(s, models.ColRSI)
	if !ok {
		return 0, fmt.Errorf("rsi_reversal %s: %w", s.Symbol, ErrIndicatorMissing)
	}
	vol := volatilityOr(s, fallbackVol)
	switch {
	case rsi < 30:
		return last * (1 + vol), nil
	case rsi > 70:
		return last * (1 - vol), nil
	default:
		drift, _ := recentDrift(s, driftWindow)
		return last * (1 + neutralScale*drift), nil
	}
}

// BollingerReversion bets on price re-entering the 2-sigma band after a
// breach, sized by current volatility.
type BollingerReversion struct{}

// NewBollingerReversion returns the Bollinger band reversion strategy.
func NewBollingerReversion() *BollingerReversion { return &BollingerReversion{} }

func (b *BollingerReversion) Name() string { return "bollinger" }

func (b *BollingerReversion) Predict(ctx context.Context, s *models.PriceSeries) (float64, error) {
	last, ok := s.LastClose()
	if !ok {
		return 0, fmt.Errorf("bollinger %s: %w", s.Symbol, ErrInsufficientData)
	}
	lower, okL := lastCell(s, models.ColBBLower)
	upper, okU := lastCell(s, models.ColBBUpper)
	if !okL || !okU {
		return 0, fmt.Errorf("bollinger %s: %w", s.Symbol, ErrIndicatorMissing)
	}
	vol := volatilityOr(s, fallbackVol)
	switch {
	case last < lower:
		return last * (1 + vol), nil
	case last > upper:
		return last * (1 - vol), nil
	default:
		drift, _ := recentDrift(s, driftWindow)
		return last * (1 + neutralScale*drift), nil
	}
}

func volatilityOr(s *models.PriceSeries, fallback float64) float64 {
	if v, ok := lastCell(s, models.ColVolatility); ok {
		return v
	}
	return fallback
}

var (
	_ Strategy = (*MACrossover)(nil)
	_ Strategy = (*RSIReversal)(nil)
	_ Strategy = (*BollingerReversion)(nil)
)
