package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"example.com/keeptend/models"
)

// Snapshot is the full content of the state tables ordered by primary key
type Snapshot struct {
	Users        []models.User        `json:"user"`
	Usage        []models.Usage       `json:"usage"`
	Plants       []models.Plant       `json:"plants"`
	ChatMessages []models.ChatMessage `json:"chatMessages"`
}

// Dump reads every state table
func Dump(ctx context.Context, db *gorm.DB) (Snapshot, error) {
	var snap Snapshot
	db = db.WithContext(ctx)

	if err := db.Order("id ASC").Find(&snap.Users).Error; err != nil {
		return snap, fmt.Errorf("failed to dump user: %w", err)
	}
	if err := db.Order("id ASC").Find(&snap.Usage).Error; err != nil {
		return snap, fmt.Errorf("failed to dump usage: %w", err)
	}
	if err := db.Order("id ASC").Find(&snap.Plants).Error; err != nil {
		return snap, fmt.Errorf("failed to dump plants: %w", err)
	}
	if err := db.Order("id ASC").Find(&snap.ChatMessages).Error; err != nil {
		return snap, fmt.Errorf("failed to dump chatMessages: %w", err)
	}
	return snap, nil
}

// Bytes encodes the snapshot deterministically
func (s Snapshot) Bytes() ([]byte, error) {
	return json.Marshal(s)
}

// Equal reports whether two snapshots encode to identical bytes
func (s Snapshot) Equal(other Snapshot) (bool, error) {
	a, err := s.Bytes()
	if err != nil {
		return false, err
	}
	b, err := other.Bytes()
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
