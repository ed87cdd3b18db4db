package main

import (
	"context"
	"errors"
	"time"

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
		fx.Invoke(runCollector),
	).Run()
}

func runCollector(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	refresh *service.RefreshService,
	queues *queue.Queues,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				collectLoop(ctx, refresh, queues, logger)
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

// collectLoop drains discovery jobs one at a time. Each job is a full player
// scan: profile refresh, character sync, new-match discovery and enqueueing.
// A failed job is logged and left consumed; the next roster publish will
// cover the same player again.
func collectLoop(ctx context.Context, refresh *service.RefreshService, queues *queue.Queues, logger zerolog.Logger) {
	logger.Info().Str("queue", constants.PlayerDiscoveryQueue).Msg("collector started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("collector stopping")
			return
		default:
		}

		job, err := queue.GetJSON[queue.DiscoveryJob](ctx, queues.Discovery, constants.QueuePopTimeout)
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

		if err := refresh.ScanPlayer(ctx, job); err != nil {
			logger.Error().
				Err(err).
				Str("membership_id", job.MembershipID).
				Msg("player scan failed")
		}
	}
}
