package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/keeptend/assistant"
	"example.com/keeptend/database"
	"example.com/keeptend/domain"
	"example.com/keeptend/entitlement"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/models"
	"example.com/keeptend/repositories"
	"example.com/keeptend/usage"
	"example.com/keeptend/views"
)

// Mock generator for testing
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req assistant.Request) (assistant.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(assistant.Response), args.Error(1)
}

// Mock validator for testing
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, receipt entitlement.Receipt) (bool, error) {
	args := m.Called(ctx, receipt)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	store    *eventstore.GormEventStore
	repo     *repositories.StateRepository
	live     *views.Live
	tracker  *usage.Tracker
	deviceID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, eventstore.Migrate(db))

	f := &fixture{
		store:    eventstore.NewGormEventStore(db),
		repo:     repositories.NewStateRepository(db),
		live:     views.NewLive(db),
		deviceID: "device-" + uuid.New().String(),
	}
	f.store.SetNotifier(f.live)
	f.tracker, err = usage.NewTracker(f.store, f.repo, f.deviceID, usage.DefaultFreeTierLimit)
	require.NoError(t, err)
	return f
}

func (f *fixture) plant(t *testing.T, name string) *models.Plant {
	t.Helper()
	plant, err := NewPlantHandler(f.store, f.repo, f.deviceID).Create(context.Background(), CreatePlantCommand{Name: name})
	require.NoError(t, err)
	return plant
}

func str(s string) *string { return &s }

func TestPlantLifecycle(t *testing.T) {
	f := newFixture(t)
	h := NewPlantHandler(f.store, f.repo, f.deviceID)
	ctx := context.Background()

	plant, err := h.Create(ctx, CreatePlantCommand{Name: " Fern ", Description: str("leafy")})
	require.NoError(t, err)
	require.Equal(t, "Fern", plant.Name)
	require.Equal(t, f.deviceID, plant.UserID)

	updated, err := h.Update(ctx, UpdatePlantCommand{ID: plant.ID, Size: str("Large")})
	require.NoError(t, err)
	require.Equal(t, "Fern", updated.Name)
	require.Equal(t, "leafy", *updated.Description)
	require.Equal(t, "Large", *updated.Size)

	require.NoError(t, h.Delete(ctx, plant.ID))
	require.NoError(t, h.Delete(ctx, plant.ID))

	deleted, err := f.repo.FindPlant(ctx, plant.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)

	_, err = h.Update(ctx, UpdatePlantCommand{ID: plant.ID, Name: str("Back")})
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = h.Delete(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := f.store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestSendMessageCommitsBothTurns(t *testing.T) {
	f := newFixture(t)
	plant := f.plant(t, "Fern")
	gen := new(MockGenerator)
	h := NewChatHandler(f.store, f.repo, f.live, gen, f.deviceID)
	ctx := context.Background()

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req assistant.Request) bool {
		return req.System != nil && req.System.Name == "Fern" &&
			len(req.Messages) == 1 && req.Messages[0].Content == "how are you?"
	})).Return(assistant.Response{Text: "Thirsty!"}, nil).Once()

	result, err := h.SendMessage(ctx, SendMessageCommand{PlantID: plant.ID, Content: " how are you? "})
	require.NoError(t, err)
	require.Equal(t, "how are you?", result.Message.Content)
	require.Equal(t, domain.RoleAssistant, result.Reply.Role)
	require.Equal(t, "Thirsty!", result.Reply.Content)
	require.Empty(t, result.Failure)

	messages, err := views.Get(ctx, f.live, views.MessagesByPlant(plant.ID))
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, domain.RoleUser, messages[0].Role)
	require.Equal(t, domain.RoleAssistant, messages[1].Role)

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req assistant.Request) bool {
		return len(req.Messages) == 3 && req.Messages[1].Content == "Thirsty!"
	})).Return(assistant.Response{Text: "Still thirsty."}, nil).Once()

	_, err = h.SendMessage(ctx, SendMessageCommand{PlantID: plant.ID, Content: "again"})
	require.NoError(t, err)
	gen.AssertExpectations(t)
}

func TestSendMessageStoresFailureText(t *testing.T) {
	f := newFixture(t)
	plant := f.plant(t, "Fern")
	gen := new(MockGenerator)
	h := NewChatHandler(f.store, f.repo, f.live, gen, f.deviceID)

	gen.On("Generate", mock.Anything, mock.Anything).
		Return(assistant.Response{}, &assistant.ServiceError{Kind: assistant.KindQuota, Err: errors.New("429")})

	result, err := h.SendMessage(context.Background(), SendMessageCommand{PlantID: plant.ID, ImageURI: str("file:///leaf.jpg")})
	require.NoError(t, err)
	require.Equal(t, assistant.KindQuota, result.Failure)
	require.Equal(t, assistant.UserMessage(assistant.KindQuota), result.Reply.Content)
	require.Equal(t, "file:///leaf.jpg", *result.Message.ImageURI)

	req := gen.Calls[0].Arguments.Get(1).(assistant.Request)
	require.Equal(t, "What do you see in this photo?", req.Messages[0].Content)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	h := NewChatHandler(f.store, f.repo, f.live, new(MockGenerator), f.deviceID)
	ctx := context.Background()

	_, err := h.SendMessage(ctx, SendMessageCommand{PlantID: "p", Content: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.SendMessage(ctx, SendMessageCommand{PlantID: "missing", Content: "hi"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClearChatHidesMessages(t *testing.T) {
	f := newFixture(t)
	plant := f.plant(t, "Fern")
	other := f.plant(t, "Cactus")
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(assistant.Response{Text: "ok"}, nil)
	h := NewChatHandler(f.store, f.repo, f.live, gen, f.deviceID)
	ctx := context.Background()

	for _, id := range []string{plant.ID, other.ID} {
		_, err := h.SendMessage(ctx, SendMessageCommand{PlantID: id, Content: "hi"})
		require.NoError(t, err)
	}

	require.NoError(t, h.ClearChat(ctx, plant.ID))

	cleared, err := views.Get(ctx, f.live, views.MessagesByPlant(plant.ID))
	require.NoError(t, err)
	require.Empty(t, cleared)

	kept, err := views.Get(ctx, f.live, views.MessagesByPlant(other.ID))
	require.NoError(t, err)
	require.Len(t, kept, 2)
}

func TestGenerateNameWithinQuota(t *testing.T) {
	f := newFixture(t)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(assistant.Response{Text: `"Sir Leafalot"`}, nil)
	h := NewNamingHandler(f.tracker, gen)
	ctx := context.Background()
	traits := assistant.PlantTraits{PlantType: "Monstera", Appearance: "split leaves", Size: "Large"}

	for remaining := 2; remaining >= 0; remaining-- {
		result, err := h.GenerateName(ctx, traits)
		require.NoError(t, err)
		require.True(t, result.Decision.Allowed)
		require.Equal(t, remaining, result.Decision.Remaining)
		require.Equal(t, "Sir Leafalot", result.Name)
	}

	result, err := h.GenerateName(ctx, traits)
	require.NoError(t, err)
	require.False(t, result.Decision.Allowed)
	require.Empty(t, result.Name)
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestGenerateNameFailureIsNotCounted(t *testing.T) {
	f := newFixture(t)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(assistant.Response{}, &assistant.ServiceError{Kind: assistant.KindNetwork})
	h := NewNamingHandler(f.tracker, gen)

	_, err := h.GenerateName(context.Background(), assistant.PlantTraits{PlantType: "Fern", Appearance: "green", Size: "Small"})
	require.Equal(t, assistant.KindNetwork, assistant.KindOf(err))

	stats, err := f.tracker.GetCurrentUsage(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Count)
}

func TestGenerateNameRejectsBadTraits(t *testing.T) {
	f := newFixture(t)
	h := NewNamingHandler(f.tracker, new(MockGenerator))

	_, err := h.GenerateName(context.Background(), assistant.PlantTraits{PlantType: "Fern", Appearance: "green", Size: "Huge"})
	require.Error(t, err)
}

func TestApplyPurchase(t *testing.T) {
	f := newFixture(t)
	validator := new(MockValidator)
	h := NewAccountHandler(f.tracker, validator)
	ctx := context.Background()

	validator.On("Validate", mock.Anything, entitlement.Receipt{Data: "bad", Platform: "ios"}).Return(false, nil)
	validator.On("Validate", mock.Anything, entitlement.Receipt{Data: "good", Platform: "ios"}).Return(true, nil)

	valid, err := h.ApplyPurchase(ctx, PurchaseCommand{Receipt: "bad", Platform: "ios"})
	require.NoError(t, err)
	require.False(t, valid)
	decision, err := f.tracker.CheckQuota(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.TierFree, decision.Tier)

	valid, err = h.ApplyPurchase(ctx, PurchaseCommand{Receipt: "good", Platform: "ios", SubscriptionID: "sub-9"})
	require.NoError(t, err)
	require.True(t, valid)

	user, err := f.repo.FindUser(ctx, f.deviceID)
	require.NoError(t, err)
	require.Equal(t, domain.TierPro, user.Tier)
	require.Equal(t, "sub-9", *user.SubscriptionID)
	validator.AssertExpectations(t)
}

func TestDescribePhoto(t *testing.T) {
	f := newFixture(t)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, assistant.DescribePhoto("file:///leaf.jpg")).
		Return(assistant.Response{Text: "A broad green leaf."}, nil)
	h := NewNamingHandler(f.tracker, gen)

	description, err := h.DescribePhoto(context.Background(), "file:///leaf.jpg")
	require.NoError(t, err)
	require.Equal(t, "A broad green leaf.", description)

	_, err = h.DescribePhoto(context.Background(), " ")
	require.Error(t, err)
	gen.AssertExpectations(t)
}
