package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	// Activity history page size observed from the stats source.
	ActivityPageSize = 250

	// Watermark sentinel meaning no match has been processed yet.
	NoMatchProcessed = int64(0)

	MaxCharactersPerPlayer = 3
)

const (
	HTTPRetryAttempts = 3
	HTTPRetryBase     = 500 * time.Millisecond

	QueueReconnectDelay = 30 * time.Second
	QueuePopTimeout     = 5 * time.Second

	// How long the processor sleeps when the stats source reports
	// system maintenance before touching the queue again.
	MaintenancePause = 60 * time.Second
)

const (
	PlayerDiscoveryQueue = "pgcr_players"
	MatchProcessQueue    = "pgcr_matches"
)

// RosterSyncWorkers bounds concurrent member upserts during a roster sync.
const RosterSyncWorkers = 4

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Crucible game modes tracked by the ingestion pipeline.
var TrackedModes = []int{4, 5}
