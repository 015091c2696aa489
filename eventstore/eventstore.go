package eventstore

import (
	"context"

	"gorm.io/gorm"

	"example.com/keeptend/domain"
)

// EventStore is the interface for the event log
type EventStore interface {
	// Commit validates, appends and materializes one event
	Commit(ctx context.Context, payload domain.Payload) (domain.Event, error)

	// Events returns the whole log in commit order
	Events(ctx context.Context) ([]domain.Event, error)

	// Rebuild discards the state tables and replays the log into them
	Rebuild(ctx context.Context) error

	// ReplayInto materializes the log into another database
	ReplayInto(ctx context.Context, dst *gorm.DB) error
}

// Notifier is told which tables a commit changed
type Notifier interface {
	Notify(tables ...string)
}
