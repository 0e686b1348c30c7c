package warmup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	icache "FinCast/internal/service/cache"
	"FinCast/internal/usecase"
)

type stubQueue struct {
	types    []string
	payloads []interface{}
	err      error
}

func (q *stubQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

type stubForecaster struct {
	res   *models.EnsembleResult
	err   error
	calls []usecase.ForecastParams
}

func (f *stubForecaster) Forecast(ctx context.Context, p usecase.ForecastParams) (*models.EnsembleResult, error) {
	f.calls = append(f.calls, p)
	return f.res, f.err
}

func TestWarmerEnqueuesEverySymbol(t *testing.T) {
	q := &stubQueue{}
	w := NewWarmer(q, []string{"aapl", "msft"}, "1d", time.Hour)
	w.enqueueRound(context.Background())

	require.Len(t, q.types, 2)
	assert.Equal(t, JobType, q.types[0])
	assert.Equal(t, Payload{Symbol: "AAPL", Interval: "1d"}, q.payloads[0])
	assert.Equal(t, Payload{Symbol: "MSFT", Interval: "1d"}, q.payloads[1])
}

func TestWarmerFirstRoundFiresOnStart(t *testing.T) {
	q := &stubQueue{}
	w := NewWarmer(q, []string{"AAPL"}, "1d", time.Hour)
	w.Start(context.Background())
	w.Stop()
	assert.NotEmpty(t, q.types)
}

func TestJobHandleWarmsCache(t *testing.T) {
	res := &models.EnsembleResult{Symbol: "AAPL", Interval: "1d", Forecast: 106}
	f := &stubForecaster{res: res}
	c := icache.NewTTLCache()
	j := NewJob(f, c)

	// The queue delivers payloads as decoded JSON maps.
	err := j.Handle(context.Background(), map[string]interface{}{"symbol": "aapl", "interval": "1d"})
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "AAPL", f.calls[0].Symbol)

	key := icache.ForecastKey("AAPL", "1d", models.DefaultForecastMethod, models.DefaultForecastN)
	b, ok, cerr := c.GetBytes(key)
	require.NoError(t, cerr)
	require.True(t, ok, "warmed forecast should be cached")

	var got models.EnsembleResult
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 106.0, got.Forecast)
}

func TestJobHandleForecastFailure(t *testing.T) {
	f := &stubForecaster{err: errors.New("no bars")}
	j := NewJob(f, icache.NewTTLCache())

	err := j.Handle(context.Background(), Payload{Symbol: "AAPL", Interval: "1d"})
	require.Error(t, err)
}

func TestJobHandleBadPayload(t *testing.T) {
	j := NewJob(&stubForecaster{}, nil)
	require.Error(t, j.Handle(context.Background(), 42))
}
