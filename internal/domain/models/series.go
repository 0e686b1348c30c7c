package models

import "math"

// Indicator column names attached to a PriceSeries by enrichment.
const (
	ColMA10       = "ma_10"
	ColMA50       = "ma_50"
	ColMA200      = "ma_200"
	ColRSI        = "rsi"
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColBBUpper    = "bb_upper"
	ColBBLower    = "bb_lower"
	ColVolatility = "volatility"
)

// PriceSeries is an ordered bar history plus derived indicator columns,
// all aligned by row index. Missing indicator values are NaN.
type PriceSeries struct {
	Symbol   string
	Interval string
	Bars     []Bar
	columns  map[string][]float64
}

// NewPriceSeries wraps bars (oldest first) into a series with no columns.
func NewPriceSeries(symbol, interval string, bars []Bar) *PriceSeries {
	return &PriceSeries{Symbol: symbol, Interval: interval, Bars: bars, columns: map[string][]float64{}}
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.Bars) }

// Closes returns the close column.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column.
func (s *PriceSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// LastClose returns the close of the most recent bar.
func (s *PriceSeries) LastClose() (float64, bool) {
	if len(s.Bars) == 0 {
		return 0, false
	}
	return s.Bars[len(s.Bars)-1].Close, true
}

// SetColumn attaches a derived column. The slice must align with Bars.
func (s *PriceSeries) SetColumn(name string, values []float64) {
	if s.columns == nil {
		s.columns = map[string][]float64{}
	}
	s.columns[name] = values
}

// Column returns a derived column by name.
func (s *PriceSeries) Column(name string) ([]float64, bool) {
	v, ok := s.columns[name]
	return v, ok
}

// ColumnNames lists attached columns (unordered).
func (s *PriceSeries) ColumnNames() []string {
	out := make([]string, 0, len(s.columns))
	for name := range s.columns {
		out = append(out, name)
	}
	return out
}

// CellOK reports whether column name has a finite value at row i.
func (s *PriceSeries) CellOK(name string, i int) bool {
	col, ok := s.columns[name]
	if !ok || i < 0 || i >= len(col) {
		return false
	}
	return !math.IsNaN(col[i]) && !math.IsInf(col[i], 0)
}
