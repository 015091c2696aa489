package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"example.com/keeptend/domain"
	"example.com/keeptend/models"
)

// StateRepository reads the materialized tables. It never writes; every
// change goes through the event log.
type StateRepository struct {
	db *gorm.DB
}

// NewStateRepository creates a new state repository
func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// FindUser looks up a user by id
func (r *StateRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := first(ctx, r.db, &user, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUsage looks up a usage row by its {userId}-{YYYY-MM} id
func (r *StateRepository) FindUsage(ctx context.Context, id string) (*models.Usage, error) {
	var usage models.Usage
	if err := first(ctx, r.db, &usage, id); err != nil {
		return nil, err
	}
	return &usage, nil
}

// FindPlant looks up a plant by id, including soft-deleted plants
func (r *StateRepository) FindPlant(ctx context.Context, id string) (*models.Plant, error) {
	var plant models.Plant
	if err := first(ctx, r.db, &plant, id); err != nil {
		return nil, err
	}
	return &plant, nil
}

// ListUsage returns a user's usage history, newest month first
func (r *StateRepository) ListUsage(ctx context.Context, userID string) ([]models.Usage, error) {
	var rows []models.Usage
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("month DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	return rows, nil
}

// Where scans a table with equality conditions keyed by column name. dest
// must be a pointer to a slice of a state model.
func (r *StateRepository) Where(ctx context.Context, dest interface{}, conds map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Where(conds).Order("id ASC").Find(dest).Error; err != nil {
		return fmt.Errorf("failed to scan table: %w", err)
	}
	return nil
}

func first(ctx context.Context, db *gorm.DB, dest interface{}, id string) error {
	err := db.WithContext(ctx).Where("id = ?", id).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", id, err)
	}
	return nil
}
