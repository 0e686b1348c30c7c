// Package indicators derives the technical columns the forecasting
// strategies and the regime detector consume from raw bar history.
package indicators

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

const (
	maShort = 10
	maMid   = 50
	maLong  = 200

	rsiPeriod = 14

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	bbPeriod = 20
	bbWidth  = 2.0

	volWindow = 20
)

// Enricher computes indicator columns over a bar series.
type Enricher struct{}

// NewEnricher returns an Enricher.
func NewEnricher() *Enricher { return &Enricher{} }

var _ domsvc.Enricher = (*Enricher)(nil)

// Enrich attaches ma_10/ma_50/ma_200, rsi, macd(+signal), Bollinger bands
// and rolling volatility to the bars, then fills leading gaps backward and
// remaining gaps forward so every row holds the nearest computed value.
func (e *Enricher) Enrich(symbol, interval string, bars []models.Bar) (*models.PriceSeries, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("enrich %s: no bars", symbol)
	}
	s := models.NewPriceSeries(symbol, interval, bars)
	closes := s.Closes()

	s.SetColumn(models.ColMA10, sma(closes, maShort))
	s.SetColumn(models.ColMA50, sma(closes, maMid))
	s.SetColumn(models.ColMA200, sma(closes, maLong))
	s.SetColumn(models.ColRSI, rsi(closes, rsiPeriod))

	macd, signal := macdPair(closes)
	s.SetColumn(models.ColMACD, macd)
	s.SetColumn(models.ColMACDSignal, signal)

	upper, lower := bollinger(closes)
	s.SetColumn(models.ColBBUpper, upper)
	s.SetColumn(models.ColBBLower, lower)

	s.SetColumn(models.ColVolatility, rollingVolatility(closes, volWindow))

	for _, name := range s.ColumnNames() {
		col, _ := s.Column(name)
		fillGaps(col)
	}
	return s, nil
}

// sma is a simple moving average with NaN during warmup.
func sma(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nanColumn(len(closes))
	}
	out := talib.Sma(closes, period)
	markWarmup(out, period-1)
	return out
}

// rsi is Wilder's relative strength index with NaN during warmup.
func rsi(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanColumn(len(closes))
	}
	out := talib.Rsi(closes, period)
	markWarmup(out, period)
	return out
}

// macdPair returns the MACD line and its signal line.
func macdPair(closes []float64) (line, signal []float64) {
	if len(closes) <= macdSlow+macdSignal {
		return nanColumn(len(closes)), nanColumn(len(closes))
	}
	line, signal, _ = talib.Macd(closes, macdFast, macdSlow, macdSignal)
	markWarmup(line, macdSlow-1)
	markWarmup(signal, macdSlow+macdSignal-2)
	return line, signal
}

// bollinger returns the 2-sigma bands around the 20-bar moving average.
func bollinger(closes []float64) (upper, lower []float64) {
	if len(closes) < bbPeriod {
		return nanColumn(len(closes)), nanColumn(len(closes))
	}
	upper, _, lower = talib.BBands(closes, bbPeriod, bbWidth, bbWidth, talib.SMA)
	markWarmup(upper, bbPeriod-1)
	markWarmup(lower, bbPeriod-1)
	return upper, lower
}

// rollingVolatility is the rolling sample standard deviation of bar-to-bar
// percent change.
func rollingVolatility(closes []float64, window int) []float64 {
	out := nanColumn(len(closes))
	if len(closes) <= window {
		return out
	}
	pct := make([]float64, len(closes))
	pct[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			pct[i] = math.NaN()
			continue
		}
		pct[i] = (closes[i] - closes[i-1]) / closes[i-1]
	}
	for i := window; i < len(closes); i++ {
		sum := 0.0
		sum2 := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(pct[j]) {
				ok = false
				break
			}
			sum += pct[j]
			sum2 += pct[j] * pct[j]
		}
		if !ok {
			continue
		}
		n := float64(window)
		mean := sum / n
		variance := (sum2 - n*mean*mean) / (n - 1)
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// markWarmup replaces the indicator's zero-filled warmup prefix with NaN.
func markWarmup(col []float64, n int) {
	if n > len(col) {
		n = len(col)
	}
	for i := 0; i < n; i++ {
		col[i] = math.NaN()
	}
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// fillGaps back-fills leading NaNs from the first computed value, then
// forward-fills anything still missing. A column with no computed value at
// all stays NaN.
func fillGaps(col []float64) {
	first := -1
	for i, v := range col {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first == -1 {
		return
	}
	for i := 0; i < first; i++ {
		col[i] = col[first]
	}
	last := col[first]
	for i := first + 1; i < len(col); i++ {
		if math.IsNaN(col[i]) {
			col[i] = last
			continue
		}
		last = col[i]
	}
}
