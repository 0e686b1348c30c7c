package usecase

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	xutil "FinCast/pkg/util"
)

// HistoryUseCase returns indicator-enriched bar history.
type HistoryUseCase struct {
	store  domrepo.BarStore
	enrich domsvc.Enricher
}

func NewHistoryUseCase(store domrepo.BarStore, enrich domsvc.Enricher) *HistoryUseCase {
	return &HistoryUseCase{store: store, enrich: enrich}
}

type GetHistoryParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Limit     int
	From, To  time.Time // both set selects a range instead of the latest Limit bars
}

// HistoryRow is one bar plus the indicator values clients chart. The
// indicator fields are nil where the column never got a value (for
// instance MA_50 on a history shorter than 50 bars).
type HistoryRow struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	RSI    *float64  `json:"rsi"`
	MACD   *float64  `json:"macd"`
	MA50   *float64  `json:"ma_50"`
}

type GetHistoryResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Count     int          `json:"count"`
	Rows      []HistoryRow `json:"rows"`
}

func (uc *HistoryUseCase) GetHistory(ctx context.Context, p GetHistoryParams) (*GetHistoryResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	var (
		bars []models.Bar
		err  error
	)
	ranged := !p.From.IsZero() && !p.To.IsZero()
	if ranged {
		from, to := xutil.AlignFromTo(p.From, p.To, string(p.Timeframe))
		bars, err = uc.store.GetBars(ctx, p.Symbol, from, to, p.Timeframe)
	} else {
		bars, err = uc.store.GetLatestNBars(ctx, p.Symbol, p.Limit, p.Timeframe)
	}
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	if len(bars) == 0 {
		if ranged {
			// An empty window is an answer, not a missing symbol.
			return &GetHistoryResult{Symbol: p.Symbol, Timeframe: string(p.Timeframe), Rows: []HistoryRow{}}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, p.Symbol)
	}

	series, err := uc.enrich.Enrich(p.Symbol, string(p.Timeframe), bars)
	if err != nil {
		return nil, fmt.Errorf("enrich series: %w", err)
	}

	rows := make([]HistoryRow, series.Len())
	for i, b := range series.Bars {
		rows[i] = HistoryRow{
			Date:   b.Start,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			RSI:    cellPtr(series, models.ColRSI, i),
			MACD:   cellPtr(series, models.ColMACD, i),
			MA50:   cellPtr(series, models.ColMA50, i),
		}
	}
	return &GetHistoryResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(rows),
		Rows:      rows,
	}, nil
}

// cellPtr returns the cell value, or nil when it is not finite so the
// JSON encoder sees null instead of NaN.
func cellPtr(s *models.PriceSeries, name string, i int) *float64 {
	if !s.CellOK(name, i) {
		return nil
	}
	col, _ := s.Column(name)
	v := col[i]
	return &v
}
