package main

import (
	"context"
	"fmt"
	"os"

	"clan-tracker/internal/constants"
	fxmodules "clan-tracker/internal/fx"
	"clan-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// jobs runs one maintenance task and exits. Scheduling is left to cron or
// whatever runs the containers.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]

	// Only the classified recheck needs the weapon catalog; every other
	// job must run with no manifest snapshot on disk yet.
	wiring := fxmodules.Jobs
	if name == "classified" {
		wiring = fxmodules.Ingestion
	}

	fx.New(
		wiring,
		fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, deps jobDeps) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go runJob(name, deps, sd)
					return nil
				},
			})
		}),
	).Run()
}

type jobDeps struct {
	fx.In

	Roster    *service.RosterService
	Manifest  *service.ManifestService
	Processor *service.ProcessorService `optional:"true"`
	Logger    zerolog.Logger
}

func runJob(name string, deps jobDeps, sd fx.Shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout*10)
	defer cancel()

	logger := deps.Logger.With().Str("job", name).Logger()

	var err error
	switch name {
	case "roster":
		err = deps.Roster.SyncMembers(ctx)
	case "removemembers":
		err = deps.Roster.RemoveFormerMembers(ctx)
	case "publish":
		err = deps.Roster.PublishDiscoveryJobs(ctx)
	case "manifest":
		err = deps.Manifest.Update(ctx, false)
	case "manifest-force":
		err = deps.Manifest.Update(ctx, true)
	case "classified":
		err = deps.Processor.ReclassifyWeapons(ctx)
	default:
		logger.Error().Msg("unknown job")
		usage()
		sd.Shutdown(fx.ExitCode(2))
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		sd.Shutdown(fx.ExitCode(1))
		return
	}

	logger.Info().Msg("job finished")
	sd.Shutdown()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: jobs <roster|removemembers|publish|manifest|manifest-force|classified>")
}
