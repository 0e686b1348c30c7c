package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
)

// MarketStream is the upstream tick feed, a websocket in production. Read
// hands out the channels once; the feeder owns reconnect policy.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher fans ticks out to the broker.
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// Storage is the raw tick sink and point-query surface. Bars are read
// through BarStore instead.
type Storage interface {
	Init(ctx context.Context) error // create tables if missing
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics is the recording surface the pipeline stages share.
type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

// ArtifactStore persists named fitted-model artifacts between restarts.
type ArtifactStore interface {
	Save(name string, v any) error
	Load(name string, dest any) error
	Exists(name string) bool
	ModTime(name string) (time.Time, error)
}
