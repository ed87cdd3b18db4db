package main

import (
	"context"
	"errors"
	"time"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/constants"
	fxmodules "clan-tracker/internal/fx"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Ingestion,
		fx.Invoke(runProcessor),
	).Run()
}

func runProcessor(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	processor *service.ProcessorService,
	queues *queue.Queues,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				processLoop(ctx, processor, queues, logger)
				shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			queues.Close()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// processLoop drains processing jobs. A retryable failure puts the job back
// at the tail of the queue so a transient fault never loses a match. A
// maintenance signal from the stats source pauses the whole loop; hammering
// the API during a maintenance window only earns throttling.
func processLoop(ctx context.Context, processor *service.ProcessorService, queues *queue.Queues, logger zerolog.Logger) {
	logger.Info().Str("queue", constants.MatchProcessQueue).Msg("processor started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("processor stopping")
			return
		default:
		}

		job, err := queue.GetJSON[queue.ProcessingJob](ctx, queues.Matches, constants.QueuePopTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("queue read failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(constants.QueueReconnectDelay):
			}
			continue
		}

		if err := processor.ProcessMatch(ctx, job); err != nil {
			if requeueErr := queue.PutJSON(ctx, queues.Matches, job); requeueErr != nil {
				logger.Error().
					Err(requeueErr).
					Int64("match_id", job.MatchID).
					Msg("failed to requeue match job, job lost")
			}

			if errors.Is(err, bungie.ErrMaintenance) {
				logger.Warn().
					Dur("pause", constants.MaintenancePause).
					Msg("stats source under maintenance, pausing")
				select {
				case <-ctx.Done():
					return
				case <-time.After(constants.MaintenancePause):
				}
				continue
			}

			logger.Error().
				Err(err).
				Int64("match_id", job.MatchID).
				Msg("match processing failed, requeued")
		}
	}
}
