package views

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"example.com/keeptend/domain"
	"example.com/keeptend/models"
)

// Stable labels of the parameterless views
const (
	LabelPlantsWithLastMessage = "plantsWithLastMessage"
	LabelAllPlants             = "plants-all"
)

// PlantWithLastMessage is a row of the chat list
type PlantWithLastMessage struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	PhotoURI             *string `json:"photoUri"`
	LastMessageContent   *string `json:"lastMessageContent"`
	LastMessageCreatedAt *int64  `json:"lastMessageCreatedAt"`
}

const plantsWithLastMessageSQL = `
SELECT
	p.id,
	p.name,
	p.photo_uri,
	m.content AS last_message_content,
	m.created_at AS last_message_created_at
FROM plants p
LEFT JOIN (
	SELECT plant_id, content, created_at, seq,
		ROW_NUMBER() OVER (PARTITION BY plant_id ORDER BY created_at DESC, seq DESC) AS rn
	FROM "chatMessages"
	WHERE deleted_at IS NULL
) m ON m.plant_id = p.id AND m.rn = 1
WHERE p.deleted_at IS NULL
	AND p.name IS NOT NULL
	AND p.name <> ''
ORDER BY
	CASE WHEN m.created_at IS NULL THEN 1 ELSE 0 END,
	m.created_at DESC,
	m.seq DESC,
	p.created_at DESC,
	p.id ASC`

// PlantsWithLastMessage lists live, named plants with their newest live
// message. Plants with messages come first, newest message first; the rest
// follow newest plant first.
func PlantsWithLastMessage() View[[]PlantWithLastMessage] {
	return View[[]PlantWithLastMessage]{
		Label:  LabelPlantsWithLastMessage,
		Tables: []string{domain.TablePlants, domain.TableChatMessages},
		Query: func(ctx context.Context, db *gorm.DB) ([]PlantWithLastMessage, error) {
			rows := []PlantWithLastMessage{}
			if err := db.WithContext(ctx).Raw(plantsWithLastMessageSQL).Scan(&rows).Error; err != nil {
				return nil, fmt.Errorf("failed to query plants with last message: %w", err)
			}
			return rows, nil
		},
	}
}

// PlantByID returns the plant with id, soft-deleted or not, as a zero or one
// element list
func PlantByID(id string) View[[]models.Plant] {
	return View[[]models.Plant]{
		Label:  "plant-" + id,
		Tables: []string{domain.TablePlants},
		Query: func(ctx context.Context, db *gorm.DB) ([]models.Plant, error) {
			rows := []models.Plant{}
			if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
				return nil, fmt.Errorf("failed to query plant %s: %w", id, err)
			}
			return rows, nil
		},
	}
}

// MessagesByPlant returns the live messages of a plant oldest first. Equal
// timestamps keep commit order.
func MessagesByPlant(plantID string) View[[]models.ChatMessage] {
	return View[[]models.ChatMessage]{
		Label:  "chatMessages-" + plantID,
		Tables: []string{domain.TableChatMessages},
		Query: func(ctx context.Context, db *gorm.DB) ([]models.ChatMessage, error) {
			rows := []models.ChatMessage{}
			if err := db.WithContext(ctx).
				Where("plant_id = ? AND deleted_at IS NULL", plantID).
				Order("created_at ASC").
				Order("seq ASC").
				Find(&rows).Error; err != nil {
				return nil, fmt.Errorf("failed to query messages for plant %s: %w", plantID, err)
			}
			return rows, nil
		},
	}
}

// AllPlants returns every plant including soft-deleted ones
func AllPlants() View[[]models.Plant] {
	return View[[]models.Plant]{
		Label:  LabelAllPlants,
		Tables: []string{domain.TablePlants},
		Query: func(ctx context.Context, db *gorm.DB) ([]models.Plant, error) {
			rows := []models.Plant{}
			if err := db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
				return nil, fmt.Errorf("failed to query plants: %w", err)
			}
			return rows, nil
		},
	}
}
