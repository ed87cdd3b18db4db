package fx

import (
	"clan-tracker/internal/bungie"
	"clan-tracker/internal/catalog"
	"clan-tracker/internal/config"
	"clan-tracker/internal/database"
	"clan-tracker/internal/logger"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"
	"clan-tracker/internal/server"
	"clan-tracker/internal/service"

	"go.uber.org/fx"
)

// Core is the wiring every binary shares: config, logging, database,
// repositories, the stats source client and the queue transports.
var Core = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(queue.NewQueues),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewCharacterRepository),
	fx.Provide(repository.NewWeaponRepository),
	fx.Provide(repository.NewKillRepository),
	fx.Provide(repository.NewReportRepository),
	// api client
	fx.Provide(bungie.NewClient),
)

// Ingestion adds the catalog-backed pipeline services used by the workers
// and the jobs CLI.
var Ingestion = fx.Options(
	Core,
	fx.Provide(catalog.New),
	fx.Provide(service.NewDiscoveryService),
	fx.Provide(service.NewProcessorService),
	fx.Provide(service.NewRefreshService),
	fx.Provide(service.NewRosterService),
	fx.Provide(service.NewManifestService),
)

// Jobs is the wiring for the maintenance CLI. It deliberately leaves the
// catalog out: the manifest job is what downloads the snapshot the catalog
// opens, so it must be runnable before one exists.
var Jobs = fx.Options(
	Core,
	fx.Provide(service.NewRosterService),
	fx.Provide(service.NewManifestService),
)

// ReadAPI wires the aggregation HTTP server.
var ReadAPI = fx.Options(
	Core,
	fx.Provide(server.New),
)
