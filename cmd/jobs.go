package cmd

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/projections"
)

// runJobs schedules the maintenance jobs and blocks until ctx is done
func runJobs(ctx context.Context, a *app, indexer *projections.PlantIndexer) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler")
	}

	if cfg.VerifyInterval > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.VerifyInterval),
			gocron.NewTask(func() {
				ok, err := verifyReplay(ctx, a.store)
				if err != nil {
					log.Error().Err(err).Msg("Failed to verify event log replay")
					return
				}
				if !ok {
					log.Error().Msg("Materialized state drifted from the event log, run rebuild")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule replay verification")
		}
	}

	if indexer != nil && cfg.ReindexInterval > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.ReindexInterval),
			gocron.NewTask(func() {
				if err := indexer.Reconcile(ctx, a.live); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile plant index")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule plant reindex")
		}
	}

	log.Info().Int("jobs", len(scheduler.Jobs())).Msg("Maintenance jobs started")
	scheduler.Start()

	<-ctx.Done()
	return scheduler.Shutdown()
}
