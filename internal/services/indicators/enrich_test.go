package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func barsFromCloses(closes []float64) []models.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{
			Start:  start.Add(time.Duration(i) * 24 * time.Hour),
			Symbol: "TEST",
			Open:   c * 0.99,
			High:   c * 1.01,
			Low:    c * 0.98,
			Close:  c,
			Volume: 1000 + float64(i),
		}
	}
	return out
}

func rampCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 0.5*float64(i) + 3*math.Sin(float64(i)/7)
	}
	return out
}

func TestEnrichComputesAlignedColumns(t *testing.T) {
	bars := barsFromCloses(rampCloses(250))
	s, err := NewEnricher().Enrich("TEST", "1d", bars)
	require.NoError(t, err)

	for _, name := range []string{
		models.ColMA10, models.ColMA50, models.ColMA200, models.ColRSI,
		models.ColMACD, models.ColMACDSignal, models.ColBBUpper,
		models.ColBBLower, models.ColVolatility,
	} {
		col, ok := s.Column(name)
		require.True(t, ok, "column %s missing", name)
		require.Len(t, col, len(bars), "column %s misaligned", name)
		for i, v := range col {
			assert.False(t, math.IsNaN(v), "column %s row %d still NaN", name, i)
		}
	}
}

func TestEnrichMovingAverageValue(t *testing.T) {
	closes := rampCloses(60)
	s, err := NewEnricher().Enrich("TEST", "1d", barsFromCloses(closes))
	require.NoError(t, err)

	ma10, _ := s.Column(models.ColMA10)
	i := 40
	want := 0.0
	for j := i - 9; j <= i; j++ {
		want += closes[j]
	}
	want /= 10
	assert.InDelta(t, want, ma10[i], 1e-9)
}

func TestEnrichRSIExtremeOnMonotonicRise(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	s, err := NewEnricher().Enrich("TEST", "1d", barsFromCloses(closes))
	require.NoError(t, err)

	rsiCol, _ := s.Column(models.ColRSI)
	assert.Greater(t, rsiCol[len(rsiCol)-1], 95.0)
}

func TestEnrichVolatilityZeroForFlatSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 250
	}
	s, err := NewEnricher().Enrich("TEST", "1d", barsFromCloses(closes))
	require.NoError(t, err)

	vol, _ := s.Column(models.ColVolatility)
	assert.InDelta(t, 0, vol[len(vol)-1], 1e-12)
}

func TestEnrichBackAndForwardFill(t *testing.T) {
	// 30 bars is enough for ma_10 but not ma_50: the short column must be
	// filled from its first computed value, the impossible one stays NaN.
	s, err := NewEnricher().Enrich("TEST", "1d", barsFromCloses(rampCloses(30)))
	require.NoError(t, err)

	ma10, _ := s.Column(models.ColMA10)
	assert.Equal(t, ma10[9], ma10[0], "leading rows not back-filled")

	ma50, _ := s.Column(models.ColMA50)
	for _, v := range ma50 {
		assert.True(t, math.IsNaN(v))
	}
	assert.False(t, s.CellOK(models.ColMA50, 29))
}

func TestEnrichRejectsEmptyHistory(t *testing.T) {
	_, err := NewEnricher().Enrich("TEST", "1d", nil)
	assert.Error(t, err)
}
