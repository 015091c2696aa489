package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"example.com/keeptend/assistant"
	"example.com/keeptend/usage"
	"example.com/keeptend/utils"
)

// NameResult carries the quota decision and, when allowed, the name
type NameResult struct {
	Decision usage.Decision `json:"decision"`
	Name     string         `json:"name,omitempty"`
}

// NamingHandler generates plant names within the monthly quota
type NamingHandler struct {
	tracker   *usage.Tracker
	generator assistant.Generator
}

// NewNamingHandler creates a new naming handler
func NewNamingHandler(tracker *usage.Tracker, generator assistant.Generator) *NamingHandler {
	return &NamingHandler{tracker: tracker, generator: generator}
}

// GenerateName asks for a name when the quota allows it. An exhausted quota
// returns Decision.Allowed false and no error; generation failures are
// returned as *assistant.ServiceError and are not counted.
func (h *NamingHandler) GenerateName(ctx context.Context, traits assistant.PlantTraits) (NameResult, error) {
	if err := utils.ValidateStruct(traits); err != nil {
		return NameResult{}, fmt.Errorf("invalid plant traits: %w", err)
	}

	var name string
	decision, err := h.tracker.Guard(ctx, func(ctx context.Context) error {
		res, err := h.generator.Generate(ctx, assistant.Request{
			Messages: []assistant.Message{{Role: assistant.RoleUser, Content: assistant.NamePrompt(traits)}},
		})
		if err != nil {
			return err
		}
		name = strings.Trim(strings.TrimSpace(res.Text), `"`)
		return nil
	})
	if err != nil {
		return NameResult{Decision: decision}, err
	}

	if decision.Allowed {
		log.Info().
			Str("tier", decision.Tier).
			Int("remaining", decision.Remaining).
			Msg("Plant name generated")
	}
	return NameResult{Decision: decision, Name: name}, nil
}

// DescribePhoto returns a botanical description of a plant photo
func (h *NamingHandler) DescribePhoto(ctx context.Context, imageURI string) (string, error) {
	if strings.TrimSpace(imageURI) == "" {
		return "", fmt.Errorf("image uri is required")
	}
	res, err := h.generator.Generate(ctx, assistant.DescribePhoto(imageURI))
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
