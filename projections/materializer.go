package projections

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/keeptend/domain"
	"example.com/keeptend/models"
)

// Materialize applies a committed event to the state tables. It runs inside
// the commit transaction, so a returned error rolls back the log append too.
func Materialize(ctx context.Context, tx *gorm.DB, event domain.Event) error {
	db := tx.WithContext(ctx)

	switch p := event.Payload.(type) {
	case domain.UserCreated:
		return insertRow(db, domain.TableUser, p.ID, &models.User{
			ID:             p.ID,
			Tier:           p.Tier,
			Email:          p.Email,
			SubscriptionID: p.SubscriptionID,
			SyncEnabled:    p.SyncEnabled,
			CreatedAt:      p.CreatedAt,
		})

	case domain.UserUpdated:
		updates := map[string]interface{}{}
		if p.Tier != nil {
			updates["tier"] = *p.Tier
		}
		if p.Email != nil {
			updates["email"] = *p.Email
		}
		if p.SubscriptionID != nil {
			updates["subscription_id"] = *p.SubscriptionID
		}
		if p.ClearSubscription {
			updates["subscription_id"] = nil
		}
		if p.SyncEnabled != nil {
			updates["sync_enabled"] = *p.SyncEnabled
		}
		return mergeRow(db, &models.User{}, domain.TableUser, p.ID, updates)

	case domain.UsageRecorded:
		row := models.Usage{
			ID:        p.ID,
			UserID:    p.UserID,
			Month:     p.Month,
			Count:     p.Count,
			CreatedAt: p.CreatedAt,
		}
		// full-value event: the row keeps its first createdAt, count is replaced
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"count"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to record usage %s: %w", p.ID, err)
		}
		return nil

	case domain.PlantCreated:
		return insertRow(db, domain.TablePlants, p.ID, &models.Plant{
			ID:          p.ID,
			UserID:      p.UserID,
			Name:        p.Name,
			Description: p.Description,
			Size:        p.Size,
			PhotoURI:    p.PhotoURI,
			AIAnalysis:  p.AIAnalysis,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
			SyncedAt:    p.SyncedAt,
		})

	case domain.PlantUpdated:
		updates := map[string]interface{}{
			"updated_at": p.UpdatedAt,
		}
		if p.Name != nil {
			updates["name"] = *p.Name
		}
		if p.Description != nil {
			updates["description"] = *p.Description
		}
		if p.Size != nil {
			updates["size"] = *p.Size
		}
		if p.PhotoURI != nil {
			updates["photo_uri"] = *p.PhotoURI
		}
		if p.AIAnalysis != nil {
			updates["ai_analysis"] = *p.AIAnalysis
		}
		if p.SyncedAt != nil {
			updates["synced_at"] = *p.SyncedAt
		}
		return mergeRow(db, &models.Plant{}, domain.TablePlants, p.ID, updates)

	case domain.PlantDeleted:
		return mergeRow(db, &models.Plant{}, domain.TablePlants, p.ID, map[string]interface{}{
			"deleted_at": p.DeletedAt,
		})

	case domain.MessageCreated:
		return insertRow(db, domain.TableChatMessages, p.ID, &models.ChatMessage{
			ID:        p.ID,
			PlantID:   p.PlantID,
			UserID:    p.UserID,
			Role:      p.Role,
			Content:   p.Content,
			ImageURI:  p.ImageURI,
			CreatedAt: p.CreatedAt,
			Seq:       event.Seq,
			SyncedAt:  p.SyncedAt,
		})

	case domain.ChatCleared:
		res := db.Model(&models.ChatMessage{}).
			Where("plant_id = ? AND deleted_at IS NULL", p.PlantID).
			Update("deleted_at", p.DeletedAt)
		if res.Error != nil {
			return fmt.Errorf("failed to clear chat for plant %s: %w", p.PlantID, res.Error)
		}
		log.Debug().
			Str("plantID", p.PlantID).
			Int64("messages", res.RowsAffected).
			Msg("Chat cleared")
		return nil

	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEventType, event.Payload)
	}
}

// insertRow inserts row unless its primary key already exists
func insertRow(db *gorm.DB, table, key string, row interface{}) error {
	var count int64
	if err := db.Model(row).Where("id = ?", key).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check %s for %s: %w", table, key, err)
	}
	if count > 0 {
		return &domain.DuplicateKeyError{Table: table, Key: key}
	}
	if err := db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// mergeRow overwrites only the given columns. A missing row is left alone.
func mergeRow(db *gorm.DB, model interface{}, table, key string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := db.Model(model).Where("id = ?", key).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, key, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Warn().Str("table", table).Str("id", key).Msg("Update matched no row")
	}
	return nil
}
