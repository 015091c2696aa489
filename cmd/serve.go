package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/keeptend/api"
	"example.com/keeptend/handlers"
	"example.com/keeptend/projections"
	"example.com/keeptend/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API with live view streams and the background maintenance jobs`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting server")

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a, err := openApp(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer a.close()

	tracker, err := a.tracker(cfg)
	if err != nil {
		return err
	}

	nrApp, err := tracing.NewApplication(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}
	defer tracing.Shutdown(nrApp, 5*time.Second)

	generator := tracing.Generator(newGenerator(cfg))
	deps := api.Dependencies{
		Store:          a.store,
		Live:           a.live,
		Repo:           a.repo,
		Tracker:        tracker,
		PlantHandler:   handlers.NewPlantHandler(a.store, a.repo, a.deviceID),
		ChatHandler:    handlers.NewChatHandler(a.store, a.repo, a.live, generator, a.deviceID),
		NamingHandler:  handlers.NewNamingHandler(tracker, generator),
		AccountHandler: handlers.NewAccountHandler(tracker, newValidator(cfg)),
		NewRelic:       nrApp,
	}

	var indexer *projections.PlantIndexer
	if cfg.ElasticSearchURL != "" {
		var stopIndexer func()
		indexer, stopIndexer, err = startIndexer(ctx, a)
		if err != nil {
			return err
		}
		defer stopIndexer()
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(cfg, deps)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runJobs(ctx, a, indexer)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Server exited properly")
	return nil
}

// startIndexer mirrors plants into Elasticsearch until the returned stop
// function is called
func startIndexer(ctx context.Context, a *app) (*projections.PlantIndexer, func(), error) {
	client, err := projections.NewElasticsearchClient(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to Elasticsearch")
	}
	if err := projections.EnsureIndices(client, cfg); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create Elasticsearch indices")
	}

	indexer := projections.NewPlantIndexer(client, cfg)
	stop, err := indexer.Start(ctx, a.live)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to start plant indexer")
	}
	return indexer, stop, nil
}
