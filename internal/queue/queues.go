package queue

import (
	"context"
	"time"

	"clan-tracker/internal/config"
	"clan-tracker/internal/constants"

	"github.com/rs/zerolog"
)

// Queues bundles the two named transports of the pipeline: discovery jobs
// in, processing jobs out.
type Queues struct {
	Discovery *Queue
	Matches   *Queue
}

func NewQueues(cfg *config.Config, logger zerolog.Logger) (*Queues, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Queues{
		Discovery: New(client, constants.PlayerDiscoveryQueue, logger),
		Matches:   New(client, constants.MatchProcessQueue, logger),
	}, nil
}

func (q *Queues) Close() {
	// Both queues share one client; closing either closes the connection.
	q.Discovery.Close()
}

// Connect keeps dialing until the server answers a ping. Worker processes
// call this at startup and again after a connection failure mid-loop.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Queues, error) {
	for {
		queues, err := NewQueues(cfg, logger)
		if err == nil {
			if err = queues.Discovery.Ping(ctx); err == nil {
				return queues, nil
			}
			queues.Close()
		}

		logger.Warn().
			Err(err).
			Dur("retry_in", constants.QueueReconnectDelay).
			Msg("failed to connect to redis, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(constants.QueueReconnectDelay):
		}
	}
}
