package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by single-entity lookups that match nothing
	ErrNotFound = errors.New("not found")

	// ErrUnknownEventType is returned when decoding an unregistered event type
	ErrUnknownEventType = errors.New("unknown event type")
)

// SchemaValidationError rejects a payload that does not match its schema
type SchemaValidationError struct {
	Type string
	Err  error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %v", e.Type, e.Err)
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError is returned when an insert materializer finds its primary
// key already present
type DuplicateKeyError struct {
	Table string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in table %s", e.Key, e.Table)
}
