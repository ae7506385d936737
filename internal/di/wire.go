//go:build wireinject
// +build wireinject

package di

import (
	"TrendCascade/pkg/config"
	"TrendCascade/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideDatabase,
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideCascadeLocker,
		ProvidePatternLocker,

		// Repositories and adapters
		ProvideTierStore,
		ProvidePatternStore,
		ProvideSignalStore,
		ProvideTierPublisher,
		ProvideNarrator,
		ProvidePriceSource,

		// Use cases
		ProvideTierAggregator,
		ProvideCandleIngest,
		ProvideConfidenceUpdater,
		ProvideSignalValidator,
		ProvideConsolidator,
		ProvideFeedbackService,
		ProvideQueryUseCase,

		// Transport and background work
		ProvideKafkaConsumer,
		ProvideCandlesHandler,
		ProvideJobQueue,
		ProvideValidatorJob,
		ProvideConsolidatorJob,
		ProvideScheduler,
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
