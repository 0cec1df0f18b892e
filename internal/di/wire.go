//go:build wireinject
// +build wireinject

package di

import (
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Providers and fetching
		ProvideRateTracker,
		ProvideRegistry,
		ProvideOrchestrator,

		// State
		ProvideStore,
		ProvideRecorder,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideSnapshotStore,
		ProvideClickHouseClient,
		ProvideSampleArchive,
		ProvideKafkaProducer,
		ProvideUpdatePublisher,

		// Fan-out
		ProvideManager,
		ProvideScheduler,

		// HTTP surface
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
