// Package regime labels history rows with unsupervised market regimes.
//
// A k-means model and a feature scaler are fit over five indicator
// features and persisted through an ArtifactStore, so later calls
// classify against the same centroids until the caller decides the
// artifacts are stale and forces a retrain. Concurrent refits race
// benignly: the artifacts are a derived cache and the last writer wins.
package regime

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/pkg/kmeans"
	applogger "FinCast/pkg/logger"
)

const (
	// DefaultClusters is how many market regimes the detector separates.
	DefaultClusters = 3
	// DefaultMinRows is the fewest complete feature rows worth clustering;
	// below it the detector abstains.
	DefaultMinRows = 50

	// ModelArtifact and ScalerArtifact name the persisted objects; callers
	// deciding staleness stat ModelArtifact.
	ModelArtifact  = "kmeans"
	ScalerArtifact = "scaler"
)

// featureColumns are the per-row inputs, in scaling order. Volume rides
// along from the bars themselves as the fifth feature.
var featureColumns = []string{
	models.ColRSI,
	models.ColMACD,
	models.ColVolatility,
	models.ColMA50,
}

const featureCount = 5

// Option configures a Detector.
type Option func(*Detector)

// WithClusters sets how many regimes to separate.
func WithClusters(k int) Option {
	return func(d *Detector) {
		if k > 0 {
			d.k = k
		}
	}
}

// WithMinRows sets the abstention threshold.
func WithMinRows(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.minRows = n
		}
	}
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(d *Detector) { d.l = l }
}

// Detector clusters indicator feature vectors into market regimes. It
// reuses persisted artifacts when they are present and compatible;
// whether they are stale enough to force a retrain is the caller's call.
type Detector struct {
	store   domrepo.ArtifactStore
	k       int
	minRows int
	l       *applogger.Logger
}

// NewDetector returns a Detector persisting its artifacts through store.
func NewDetector(store domrepo.ArtifactStore, opts ...Option) *Detector {
	d := &Detector{store: store, k: DefaultClusters, minRows: DefaultMinRows}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect labels every row of the series with a regime cluster. Rows with
// an incomplete feature vector carry models.NoRegime. When fewer than
// minRows rows are complete the detector abstains and returns (nil, nil).
func (d *Detector) Detect(ctx context.Context, series *models.PriceSeries, retrain bool) (*models.RegimeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if series == nil || series.Len() == 0 {
		return nil, nil
	}

	rows, idx := featureMatrix(series)
	if len(rows) < d.minRows {
		if d.l != nil {
			d.l.Debug("regime detection abstained",
				applogger.String("symbol", series.Symbol),
				applogger.Int("complete_rows", len(rows)),
				applogger.Int("min_rows", d.minRows))
		}
		return nil, nil
	}

	var (
		model  *kmeans.Model
		scaler *kmeans.Scaler
		labels []int
	)
	if !retrain {
		model, scaler = d.load()
	}

	retrained := false
	if model == nil || scaler == nil {
		var err error
		model, scaler, labels, err = d.fit(rows)
		if err != nil {
			return nil, err
		}
		retrained = true
	} else {
		labels = model.PredictAll(scaler.Transform(rows))
	}

	full := make([]int, series.Len())
	for i := range full {
		full[i] = models.NoRegime
	}
	for j, row := range idx {
		full[row] = labels[j]
	}

	return &models.RegimeResult{
		Symbol:    series.Symbol,
		Interval:  series.Interval,
		Timestamp: time.Now().UTC(),
		Labels:    full,
		Last:      full[len(full)-1],
		K:         d.k,
		Rows:      len(rows),
		Retrained: retrained,
	}, nil
}

// fit trains a fresh scaler and cluster model on rows and persists both,
// replacing whatever artifacts were there before.
func (d *Detector) fit(rows [][]float64) (*kmeans.Model, *kmeans.Scaler, []int, error) {
	scaler, err := kmeans.FitScaler(rows)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fit regime scaler: %w", err)
	}
	model, labels, err := kmeans.Fit(scaler.Transform(rows), d.k)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fit regime clusters: %w", err)
	}
	if err := d.store.Save(ModelArtifact, model); err != nil {
		return nil, nil, nil, fmt.Errorf("persist regime model: %w", err)
	}
	if err := d.store.Save(ScalerArtifact, scaler); err != nil {
		return nil, nil, nil, fmt.Errorf("persist regime scaler: %w", err)
	}
	return model, scaler, labels, nil
}

// load fetches persisted artifacts. Anything missing, unreadable, or
// shaped for a different configuration comes back nil so the caller
// refits instead.
func (d *Detector) load() (*kmeans.Model, *kmeans.Scaler) {
	if !d.store.Exists(ModelArtifact) || !d.store.Exists(ScalerArtifact) {
		return nil, nil
	}
	var model kmeans.Model
	if err := d.store.Load(ModelArtifact, &model); err != nil {
		d.warn("regime model unreadable, refitting", err)
		return nil, nil
	}
	var scaler kmeans.Scaler
	if err := d.store.Load(ScalerArtifact, &scaler); err != nil {
		d.warn("regime scaler unreadable, refitting", err)
		return nil, nil
	}
	if !model.Valid() || !scaler.Valid() ||
		model.K != d.k || model.Dims() != featureCount || len(scaler.Mean) != featureCount {
		if d.l != nil {
			d.l.Warn("regime artifacts incompatible, refitting",
				applogger.Int("k", model.K),
				applogger.Int("dims", model.Dims()))
		}
		return nil, nil
	}
	return &model, &scaler
}

func (d *Detector) warn(msg string, err error) {
	if d.l != nil {
		d.l.Warn(msg, applogger.Error(err))
	}
}

// featureMatrix collects [RSI, MACD, Volatility, MA_50, Volume] for every
// row where all five are finite, remembering each row's original index.
func featureMatrix(s *models.PriceSeries) ([][]float64, []int) {
	cols := make([][]float64, 0, len(featureColumns))
	for _, name := range featureColumns {
		col, ok := s.Column(name)
		if !ok || len(col) != s.Len() {
			return nil, nil
		}
		cols = append(cols, col)
	}

	rows := make([][]float64, 0, s.Len())
	idx := make([]int, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		row := make([]float64, 0, featureCount)
		ok := true
		for _, col := range cols {
			if !finite(col[i]) {
				ok = false
				break
			}
			row = append(row, col[i])
		}
		if !ok || !finite(s.Bars[i].Volume) {
			continue
		}
		rows = append(rows, append(row, s.Bars[i].Volume))
		idx = append(idx, i)
	}
	return rows, idx
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ domsvc.RegimeDetector = (*Detector)(nil)
