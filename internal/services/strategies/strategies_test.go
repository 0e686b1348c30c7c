package strategies

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

// featureAt generates a deterministic, non-collinear feature vector for
// row i, ordered like featureColumns.
func featureAt(i int) []float64 {
	x := float64(i)
	return []float64{
		100 + 10*math.Sin(x*0.7),       // open
		100 + 8*math.Cos(x*1.1),        // high
		100 + 6*math.Sin(x*1.7+1),      // low
		1000 + 300*math.Cos(x*0.3),     // volume
		100 + 5*math.Sin(x*0.37+2),     // ma_10
		100 + 4*math.Cos(x*0.53),       // ma_50
		100 + 3*math.Sin(x*0.91),       // ma_200
		50 + 30*math.Sin(x*1.3),        // rsi
		2 * math.Sin(x*2.3),            // macd
		0.015 + 0.005*math.Sin(x*0.13), // volatility
	}
}

func targetOf(row []float64) float64 {
	return 0.8*row[0] - 0.5*row[4] + 0.1*row[7] + 20
}

// linearSeries builds a series whose next close is an exact linear
// function of the current row's features. It returns the series and the
// true value the models should forecast for the final row.
func linearSeries(n int) (*models.PriceSeries, float64) {
	rows := make([][]float64, n)
	closes := make([]float64, n)
	closes[0] = 100
	for i := 0; i < n; i++ {
		rows[i] = featureAt(i)
		if i+1 < n {
			closes[i+1] = targetOf(rows[i])
		}
	}
	return seriesFromRows(rows, closes), targetOf(rows[n-1])
}

// periodicSeries repeats the same 10 feature rows, so identical rows
// carry identical targets; nearest-neighbour lookups become exact.
func periodicSeries(n int) (*models.PriceSeries, float64) {
	rows := make([][]float64, n)
	closes := make([]float64, n)
	closes[0] = 100
	for i := 0; i < n; i++ {
		rows[i] = featureAt(i % 10)
		if i+1 < n {
			closes[i+1] = targetOf(rows[i])
		}
	}
	return seriesFromRows(rows, closes), targetOf(rows[n-1])
}

func seriesFromRows(rows [][]float64, closes []float64) *models.PriceSeries {
	n := len(rows)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	cols := map[string][]float64{
		models.ColMA10:       make([]float64, n),
		models.ColMA50:       make([]float64, n),
		models.ColMA200:      make([]float64, n),
		models.ColRSI:        make([]float64, n),
		models.ColMACD:       make([]float64, n),
		models.ColVolatility: make([]float64, n),
	}
	for i, row := range rows {
		bars[i] = models.Bar{
			Start:  start.Add(time.Duration(i) * 24 * time.Hour),
			Symbol: "TEST",
			Open:   row[0],
			High:   row[1],
			Low:    row[2],
			Close:  closes[i],
			Volume: row[3],
		}
		cols[models.ColMA10][i] = row[4]
		cols[models.ColMA50][i] = row[5]
		cols[models.ColMA200][i] = row[6]
		cols[models.ColRSI][i] = row[7]
		cols[models.ColMACD][i] = row[8]
		cols[models.ColVolatility][i] = row[9]
	}
	s := models.NewPriceSeries("TEST", "1d", bars)
	for name, col := range cols {
		s.SetColumn(name, col)
	}
	return s
}

func TestBuildSupervisedShape(t *testing.T) {
	s, _ := linearSeries(40)
	ds, err := buildSupervised(s)
	require.NoError(t, err)

	// The final bar has no target: it predicts, it never trains.
	assert.Len(t, ds.X, 39)
	assert.Len(t, ds.y, 39)
	assert.Equal(t, featureAt(39), ds.latest)
	assert.Equal(t, s.Bars[5].Close, ds.y[4], "target must be the next bar's close")
}

func TestBuildSupervisedRejectsShortHistory(t *testing.T) {
	s, _ := linearSeries(20)
	_, err := buildSupervised(s)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestLinearRecoversGeneratingFunction(t *testing.T) {
	s, want := linearSeries(120)
	got, err := NewLinear().Predict(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-6)
}

func TestRidgeTracksGeneratingFunction(t *testing.T) {
	s, want := linearSeries(120)
	got, err := NewRidge().Predict(context.Background(), s)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got, 0.05)
}

func TestLassoTracksGeneratingFunction(t *testing.T) {
	s, want := linearSeries(120)
	got, err := NewLasso().Predict(context.Background(), s)
	require.NoError(t, err)
	assert.InEpsilon(t, want, got, 0.05)
}

func TestAutoRegressiveFollowsTrend(t *testing.T) {
	n := 80
	closes := make([]float64, n)
	for i := range closes {
		x := float64(i)
		closes[i] = 100 + 2*x + 0.5*math.Sin(x) + 0.05*math.Sin(7.13*x*x)
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = featureAt(i)
	}
	s := seriesFromRows(rows, closes)

	got, err := NewAutoRegressive().Predict(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, closes[n-1]+2, got, 1.5)
}

func TestAutoRegressiveRejectsShortHistory(t *testing.T) {
	rows := make([][]float64, 10)
	closes := make([]float64, 10)
	for i := range rows {
		rows[i] = featureAt(i)
		closes[i] = 100 + float64(i)
	}
	_, err := NewAutoRegressive().Predict(context.Background(), seriesFromRows(rows, closes))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestHoltExtendsLinearRamp(t *testing.T) {
	n := 60
	closes := make([]float64, n)
	rows := make([][]float64, n)
	for i := range closes {
		closes[i] = 100 + 3*float64(i)
		rows[i] = featureAt(i)
	}
	got, err := NewHoltSmoothing().Predict(context.Background(), seriesFromRows(rows, closes))
	require.NoError(t, err)
	assert.InDelta(t, closes[n-1]+3, got, 0.5)
}

func TestRandomForestDeterministicAndBounded(t *testing.T) {
	s, _ := linearSeries(100)
	f := NewRandomForest()
	first, err := f.Predict(context.Background(), s)
	require.NoError(t, err)
	second, err := f.Predict(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same data and seed must give the same forecast")

	lo, hi := targetRange(s)
	assert.GreaterOrEqual(t, first, lo)
	assert.LessOrEqual(t, first, hi)
}

func TestGradientBoostingBeatsBaseline(t *testing.T) {
	// 97 rows puts the final target well away from the training mean.
	s, want := linearSeries(97)
	got, err := NewGradientBoosting().Predict(context.Background(), s)
	require.NoError(t, err)

	ds, err := buildSupervised(s)
	require.NoError(t, err)
	baseline := meanOf(ds.y)
	assert.Less(t, math.Abs(got-want), math.Abs(baseline-want),
		"boosting should land closer to the truth than the training mean")
}

func TestKNNExactOnRepeatedRows(t *testing.T) {
	s, want := periodicSeries(65)
	got, err := NewKNN().Predict(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestKernelRidgeDeterministicAndBounded(t *testing.T) {
	s, _ := linearSeries(100)
	k := NewKernelRidge()
	first, err := k.Predict(context.Background(), s)
	require.NoError(t, err)
	second, err := k.Predict(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	lo, hi := targetRange(s)
	span := hi - lo
	assert.GreaterOrEqual(t, first, lo-0.1*span)
	assert.LessOrEqual(t, first, hi+0.1*span)
}

func targetRange(s *models.PriceSeries) (float64, float64) {
	ds, err := buildSupervised(s)
	if err != nil {
		panic(err)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range ds.y {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
