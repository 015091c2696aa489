package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/domain"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/models"
	"example.com/keeptend/repositories"
)

// Command structs
type CreatePlantCommand struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required,notblank"`
	Description *string `json:"description"`
	Size        *string `json:"size"`
	PhotoURI    *string `json:"photoUri"`
	AIAnalysis  *string `json:"aiAnalysis"`
}

// UpdatePlantCommand changes only the non-nil fields
type UpdatePlantCommand struct {
	ID          string  `json:"-"`
	Name        *string `json:"name" validate:"omitempty,notblank"`
	Description *string `json:"description"`
	Size        *string `json:"size"`
	PhotoURI    *string `json:"photoUri"`
	AIAnalysis  *string `json:"aiAnalysis"`
}

// PlantHandler handles plant commands
type PlantHandler struct {
	store    eventstore.EventStore
	repo     *repositories.StateRepository
	deviceID string
	now      func() time.Time
}

// NewPlantHandler creates a new plant handler
func NewPlantHandler(store eventstore.EventStore, repo *repositories.StateRepository, deviceID string) *PlantHandler {
	return &PlantHandler{store: store, repo: repo, deviceID: deviceID, now: time.Now}
}

// Create adds a plant owned by the device user
func (h *PlantHandler) Create(ctx context.Context, cmd CreatePlantCommand) (*models.Plant, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	log.Info().Str("plantID", cmd.ID).Msg("Handling CreatePlant command")

	now := h.now().UnixMilli()
	if _, err := h.store.Commit(ctx, domain.PlantCreated{
		ID:          cmd.ID,
		UserID:      h.deviceID,
		Name:        strings.TrimSpace(cmd.Name),
		Description: cmd.Description,
		Size:        cmd.Size,
		PhotoURI:    cmd.PhotoURI,
		AIAnalysis:  cmd.AIAnalysis,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("failed to create plant: %w", err)
	}

	return h.repo.FindPlant(ctx, cmd.ID)
}

// Update merges the given fields into a live plant
func (h *PlantHandler) Update(ctx context.Context, cmd UpdatePlantCommand) (*models.Plant, error) {
	if _, err := findLivePlant(ctx, h.repo, cmd.ID); err != nil {
		return nil, err
	}

	event := domain.PlantUpdated{
		ID:          cmd.ID,
		Name:        cmd.Name,
		Description: cmd.Description,
		Size:        cmd.Size,
		PhotoURI:    cmd.PhotoURI,
		AIAnalysis:  cmd.AIAnalysis,
		UpdatedAt:   h.now().UnixMilli(),
	}
	if event.Name != nil {
		trimmed := strings.TrimSpace(*event.Name)
		event.Name = &trimmed
	}

	if _, err := h.store.Commit(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update plant: %w", err)
	}
	return h.repo.FindPlant(ctx, cmd.ID)
}

// Delete soft-deletes a plant. Deleting an already deleted plant does nothing.
func (h *PlantHandler) Delete(ctx context.Context, id string) error {
	plant, err := h.repo.FindPlant(ctx, id)
	if err != nil {
		return err
	}
	if plant.DeletedAt != nil {
		return nil
	}

	if _, err := h.store.Commit(ctx, domain.PlantDeleted{
		ID:        id,
		DeletedAt: h.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to delete plant: %w", err)
	}

	log.Info().Str("plantID", id).Msg("Plant deleted")
	return nil
}

// findLivePlant loads a plant that is not soft-deleted
func findLivePlant(ctx context.Context, repo *repositories.StateRepository, id string) (*models.Plant, error) {
	plant, err := repo.FindPlant(ctx, id)
	if err != nil {
		return nil, err
	}
	if plant.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return plant, nil
}
