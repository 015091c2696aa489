package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/keeptend/domain"
	"example.com/keeptend/models"
	"example.com/keeptend/projections"
)

// GormEventStore implements EventStore using GORM. The log and the state
// tables live in the same database so a commit is one transaction.
type GormEventStore struct {
	db       *gorm.DB
	mu       sync.Mutex
	notifier Notifier
	now      func() time.Time
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db, now: time.Now}
}

// Migrate creates the log and state tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Event{}); err != nil {
		return fmt.Errorf("failed to migrate event log: %w", err)
	}
	return MigrateState(db)
}

// MigrateState creates only the materialized tables
func MigrateState(db *gorm.DB) error {
	if err := db.AutoMigrate(models.StateTables()...); err != nil {
		return fmt.Errorf("failed to migrate state tables: %w", err)
	}
	return nil
}

// DB returns the underlying database
func (s *GormEventStore) DB() *gorm.DB {
	return s.db
}

// SetNotifier registers the receiver of table change notifications
func (s *GormEventStore) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Commit validates the payload, appends it and materializes it in one
// transaction. Callers reading the store after Commit returns see the change.
func (s *GormEventStore) Commit(ctx context.Context, payload domain.Payload) (domain.Event, error) {
	if err := domain.Validate(payload); err != nil {
		log.Warn().Err(err).Msg("Event rejected")
		return domain.Event{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	s.mu.Lock()
	var event domain.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last uint64
		if err := tx.Model(&models.Event{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
			return fmt.Errorf("failed to read log head: %w", err)
		}

		event = domain.Event{
			Seq:         last + 1,
			ID:          uuid.New().String(),
			Type:        payload.EventType(),
			Payload:     payload,
			CommittedAt: s.now().UnixMilli(),
		}

		row := models.Event{
			Seq:         event.Seq,
			EventID:     event.ID,
			EventType:   event.Type,
			Data:        data,
			CommittedAt: event.CommittedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}

		if err := projections.Materialize(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to materialize %s: %w", event.Type, err)
		}
		return nil
	})
	notifier := s.notifier
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("eventType", payload.EventType()).Msg("Commit failed")
		return domain.Event{}, err
	}

	log.Debug().
		Uint64("seq", event.Seq).
		Str("eventType", event.Type).
		Msg("Event committed")

	if notifier != nil {
		notifier.Notify(domain.Tables(payload)...)
	}
	return event, nil
}

// Events returns the whole log in commit order
func (s *GormEventStore) Events(ctx context.Context) ([]domain.Event, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	return toDomainEvents(rows)
}

func toDomainEvents(rows []models.Event) ([]domain.Event, error) {
	events := make([]domain.Event, len(rows))
	for i, row := range rows {
		payload, err := domain.DecodePayload(row.EventType, row.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", row.Seq, err)
		}
		events[i] = domain.Event{
			Seq:         row.Seq,
			ID:          row.EventID,
			Type:        row.EventType,
			Payload:     payload,
			CommittedAt: row.CommittedAt,
		}
	}
	return events, nil
}

// ReplayInto materializes the whole log into dst, which should hold empty
// state tables
func (s *GormEventStore) ReplayInto(ctx context.Context, dst *gorm.DB) error {
	events, err := s.Events(ctx)
	if err != nil {
		return err
	}
	if err := MigrateState(dst); err != nil {
		return err
	}
	return dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return Replay(ctx, tx, events)
	})
}

// Verify replays the log into scratch and reports whether the result equals
// the current state. Commits wait until the comparison is done.
func (s *GormEventStore) Verify(ctx context.Context, scratch *gorm.DB) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ReplayInto(ctx, scratch); err != nil {
		return false, err
	}
	current, err := projections.Dump(ctx, s.db)
	if err != nil {
		return false, err
	}
	replayed, err := projections.Dump(ctx, scratch)
	if err != nil {
		return false, err
	}
	return current.Equal(replayed)
}

// Rebuild discards the state tables and replays the log into them
func (s *GormEventStore) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range models.StateTables() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
				return fmt.Errorf("failed to clear state: %w", err)
			}
		}

		var rows []models.Event
		if err := tx.Order("seq ASC").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		events, err := toDomainEvents(rows)
		if err != nil {
			return err
		}
		return Replay(ctx, tx, events)
	})
	notifier := s.notifier
	s.mu.Unlock()

	if err != nil {
		return err
	}

	log.Info().Msg("State rebuilt from event log")
	if notifier != nil {
		notifier.Notify(domain.TableUser, domain.TableUsage, domain.TablePlants, domain.TableChatMessages)
	}
	return nil
}

// Replay applies events in order
func Replay(ctx context.Context, tx *gorm.DB, events []domain.Event) error {
	for _, event := range events {
		if err := projections.Materialize(ctx, tx, event); err != nil {
			return fmt.Errorf("failed to replay event %d (%s): %w", event.Seq, event.Type, err)
		}
	}
	log.Info().Int("events", len(events)).Msg("Events replayed")
	return nil
}
