package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/assistant"
	"example.com/keeptend/domain"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/models"
	"example.com/keeptend/repositories"
	"example.com/keeptend/views"
)

// ErrEmptyMessage is returned for a message without text or image
var ErrEmptyMessage = errors.New("message needs text or an image")

const photoQuestion = "What do you see in this photo?"

type SendMessageCommand struct {
	PlantID  string  `json:"-"`
	Content  string  `json:"content"`
	ImageURI *string `json:"imageUri"`
}

// SendResult holds both committed turns. Failure is set when the reply is
// the user-facing text of a generation error.
type SendResult struct {
	Message models.ChatMessage `json:"message"`
	Reply   models.ChatMessage `json:"reply"`
	Failure assistant.Kind     `json:"failure,omitempty"`
}

// ChatHandler handles conversation commands
type ChatHandler struct {
	store     eventstore.EventStore
	repo      *repositories.StateRepository
	live      *views.Live
	generator assistant.Generator
	deviceID  string
	now       func() time.Time
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	store eventstore.EventStore,
	repo *repositories.StateRepository,
	live *views.Live,
	generator assistant.Generator,
	deviceID string,
) *ChatHandler {
	return &ChatHandler{
		store:     store,
		repo:      repo,
		live:      live,
		generator: generator,
		deviceID:  deviceID,
		now:       time.Now,
	}
}

// SendMessage commits the user's message, asks the generator for a reply and
// commits the reply. A generation failure is committed as an assistant
// message carrying the user-facing error text and is not returned as error.
func (h *ChatHandler) SendMessage(ctx context.Context, cmd SendMessageCommand) (SendResult, error) {
	text := strings.TrimSpace(cmd.Content)
	if cmd.ImageURI != nil && *cmd.ImageURI == "" {
		cmd.ImageURI = nil
	}
	if text == "" && cmd.ImageURI == nil {
		return SendResult{}, ErrEmptyMessage
	}

	plant, err := findLivePlant(ctx, h.repo, cmd.PlantID)
	if err != nil {
		return SendResult{}, err
	}

	history, err := views.Get(ctx, h.live, views.MessagesByPlant(cmd.PlantID))
	if err != nil {
		return SendResult{}, err
	}

	var result SendResult
	result.Message, err = h.commitMessage(ctx, cmd.PlantID, domain.RoleUser, text, cmd.ImageURI)
	if err != nil {
		return SendResult{}, err
	}

	req := assistant.Request{
		System: &assistant.PlantProfile{
			Name:        plant.Name,
			Description: plant.Description,
			Size:        plant.Size,
			PhotoURI:    plant.PhotoURI,
			AIAnalysis:  plant.AIAnalysis,
		},
		Messages: make([]assistant.Message, 0, len(history)+1),
	}
	for _, m := range history {
		req.Messages = append(req.Messages, assistant.Message{Role: m.Role, Content: m.Content, ImageURI: m.ImageURI})
	}
	question := text
	if question == "" {
		question = photoQuestion
	}
	req.Messages = append(req.Messages, assistant.Message{Role: assistant.RoleUser, Content: question, ImageURI: cmd.ImageURI})

	reply, err := h.generator.Generate(ctx, req)
	content := reply.Text
	if err != nil {
		result.Failure = assistant.KindOf(err)
		content = assistant.UserMessage(result.Failure)
		log.Warn().
			Err(err).
			Str("plantID", cmd.PlantID).
			Str("kind", string(result.Failure)).
			Msg("Reply generation failed")
	}

	result.Reply, err = h.commitMessage(ctx, cmd.PlantID, domain.RoleAssistant, content, nil)
	if err != nil {
		return result, err
	}
	return result, nil
}

// ClearChat hides every current message of a plant
func (h *ChatHandler) ClearChat(ctx context.Context, plantID string) error {
	if _, err := h.repo.FindPlant(ctx, plantID); err != nil {
		return err
	}
	if _, err := h.store.Commit(ctx, domain.ChatCleared{
		PlantID:   plantID,
		DeletedAt: h.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to clear chat: %w", err)
	}

	log.Info().Str("plantID", plantID).Msg("Chat cleared")
	return nil
}

func (h *ChatHandler) commitMessage(ctx context.Context, plantID, role, content string, imageURI *string) (models.ChatMessage, error) {
	event, err := h.store.Commit(ctx, domain.MessageCreated{
		ID:        uuid.New().String(),
		PlantID:   plantID,
		UserID:    h.deviceID,
		Role:      role,
		Content:   content,
		ImageURI:  imageURI,
		CreatedAt: h.now().UnixMilli(),
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to save %s message: %w", role, err)
	}

	p := event.Payload.(domain.MessageCreated)
	return models.ChatMessage{
		ID:        p.ID,
		PlantID:   p.PlantID,
		UserID:    p.UserID,
		Role:      p.Role,
		Content:   p.Content,
		ImageURI:  p.ImageURI,
		CreatedAt: p.CreatedAt,
		Seq:       event.Seq,
	}, nil
}
