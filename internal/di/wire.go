//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Shared
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Ingest repositories
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideMarketStream,

		// Ingest use cases
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,

		// Forecast pipeline
		ProvideBarStore,
		ProvideArtifactStore,
		ProvideEnricher,
		ProvideStrategyRunner,
		ProvideConsensusFilter,
		ProvideAggregator,
		ProvideRegimeDetector,
		ProvideForecaster,
		ProvideHistoryUseCase,

		// HTTP surface
		ProvideResponseCache,
		ProvideForecastHandler,
		ProvideWarmup,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
