//go:build wireinject
// +build wireinject

package di

import (
	"OrgTrader/pkg/config"
	"OrgTrader/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideRegistry,
		ProvideMetrics,
		ProvideKafkaProducer,
		ProvideLogger,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,

		// Repositories
		ProvideReportStore,
		ProvideReportSink,
		ProvideBroker,

		// Ensemble and use cases
		ProvideEnsemble,
		ProvideEpochProcessor,
		ProvideIngest,

		// Transport and application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
