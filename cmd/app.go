package cmd

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/keeptend/assistant"
	"example.com/keeptend/config"
	"example.com/keeptend/database"
	"example.com/keeptend/entitlement"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/repositories"
	"example.com/keeptend/usage"
	"example.com/keeptend/views"
)

// app holds the wired components shared by the commands
type app struct {
	db       *gorm.DB
	store    *eventstore.GormEventStore
	live     *views.Live
	repo     *repositories.StateRepository
	deviceID string
}

// openApp connects and migrates the database and wires the store to the live
// views
func openApp(cfg config.Config) (*app, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := eventstore.Migrate(db); err != nil {
		database.Close(db)
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	deviceID, err := config.ResolveDeviceID(cfg)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	store := eventstore.NewGormEventStore(db)
	live := views.NewLive(db)
	store.SetNotifier(live)

	log.Info().
		Str("driver", cfg.DBDriver).
		Str("deviceID", deviceID).
		Msg("Store opened")

	return &app{
		db:       db,
		store:    store,
		live:     live,
		repo:     repositories.NewStateRepository(db),
		deviceID: deviceID,
	}, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

func (a *app) tracker(cfg config.Config) (*usage.Tracker, error) {
	tracker, err := usage.NewTracker(a.store, a.repo, a.deviceID, cfg.FreeTierLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create usage tracker")
	}
	return tracker, nil
}

// newGenerator returns the configured text generator
func newGenerator(cfg config.Config) assistant.Generator {
	if cfg.AssistantAPIKey == "" {
		log.Warn().Msg("No assistant api key configured, generation is disabled")
		return assistant.ConfigRequired()
	}
	return assistant.WithTimeout(
		assistant.NewOpenAIGenerator(cfg.AssistantAPIKey, cfg.AssistantBaseURL, cfg.AssistantModel),
		cfg.AssistantTimeout,
	)
}

func newValidator(cfg config.Config) entitlement.Validator {
	return entitlement.NewHTTPValidator(cfg.EntitlementURL, cfg.EntitlementTimeout)
}
