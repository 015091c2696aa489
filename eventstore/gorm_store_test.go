package eventstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/keeptend/database"
	"example.com/keeptend/domain"
	"example.com/keeptend/models"
	"example.com/keeptend/projections"
)

type recordingNotifier struct {
	mu     sync.Mutex
	tables [][]string
}

func (n *recordingNotifier) Notify(tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tables = append(n.tables, tables)
}

func newTestStore(t *testing.T) (*GormEventStore, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, Migrate(db))
	return NewGormEventStore(db), db
}

func str(s string) *string { return &s }

func seed(t *testing.T, store *GormEventStore) {
	t.Helper()
	ctx := context.Background()
	payloads := []domain.Payload{
		domain.UserCreated{ID: "device-1", Tier: domain.TierFree, CreatedAt: 10},
		domain.PlantCreated{ID: "p1", UserID: "device-1", Name: "Fern", Description: str("leafy"), CreatedAt: 20, UpdatedAt: 20},
		domain.PlantCreated{ID: "p2", UserID: "device-1", Name: "Cactus", CreatedAt: 21, UpdatedAt: 21},
		domain.MessageCreated{ID: "m1", PlantID: "p1", UserID: "device-1", Role: domain.RoleUser, Content: "hello", CreatedAt: 30},
		domain.MessageCreated{ID: "m2", PlantID: "p1", UserID: "device-1", Role: domain.RoleAssistant, Content: "hi there", CreatedAt: 30},
		domain.PlantUpdated{ID: "p1", Name: str("Frond"), UpdatedAt: 40},
		domain.UsageRecorded{ID: "device-1-2024-05", UserID: "device-1", Month: "2024-05", Count: 1, CreatedAt: 50},
		domain.UsageRecorded{ID: "device-1-2024-05", UserID: "device-1", Month: "2024-05", Count: 2, CreatedAt: 60},
		domain.ChatCleared{PlantID: "p1", DeletedAt: 70},
		domain.MessageCreated{ID: "m3", PlantID: "p1", UserID: "device-1", Role: domain.RoleUser, Content: "again", CreatedAt: 80},
		domain.PlantDeleted{ID: "p2", DeletedAt: 90},
		domain.UserUpdated{ID: "device-1", Tier: str(domain.TierPro), SubscriptionID: str("sub-1")},
	}
	for _, p := range payloads {
		_, err := store.Commit(ctx, p)
		require.NoError(t, err)
	}
}

func TestCommitAssignsSequenceAndMaterializes(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	first, err := store.Commit(ctx, domain.UserCreated{ID: "device-1", Tier: domain.TierFree, CreatedAt: 1})
	require.NoError(t, err)
	second, err := store.Commit(ctx, domain.PlantCreated{ID: "p1", UserID: "device-1", Name: "Fern", CreatedAt: 2, UpdatedAt: 2})
	require.NoError(t, err)

	require.Equal(t, uint64(1), first.Seq)
	require.Equal(t, uint64(2), second.Seq)
	require.NotEmpty(t, first.ID)
	require.Equal(t, domain.TypePlantCreated, second.Type)

	var plant models.Plant
	require.NoError(t, db.Where("id = ?", "p1").Take(&plant).Error)
	require.Equal(t, "Fern", plant.Name)

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.UserCreated{ID: "device-1", Tier: domain.TierFree, CreatedAt: 1}, events[0].Payload)
}

func TestCommitRejectsInvalidPayloadWithoutAppending(t *testing.T) {
	store, db := newTestStore(t)

	_, err := store.Commit(context.Background(), domain.UserCreated{ID: "device-1", Tier: "gold", CreatedAt: 1})
	var schemaErr *domain.SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDuplicateInsertRollsBackCommit(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	plant := domain.PlantCreated{ID: "p1", UserID: "device-1", Name: "Fern", CreatedAt: 2, UpdatedAt: 2}
	_, err := store.Commit(ctx, plant)
	require.NoError(t, err)

	plant.Name = "Other"
	_, err = store.Commit(ctx, plant)
	var dupErr *domain.DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, domain.TablePlants, dupErr.Table)
	require.Equal(t, "p1", dupErr.Key)

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var stored models.Plant
	require.NoError(t, db.Where("id = ?", "p1").Take(&stored).Error)
	require.Equal(t, "Fern", stored.Name)

	// the log head is unchanged, so the next commit continues the sequence
	event, err := store.Commit(ctx, domain.PlantDeleted{ID: "p1", DeletedAt: 3})
	require.NoError(t, err)
	require.Equal(t, uint64(2), event.Seq)
}

func TestReplayReproducesState(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	seed(t, store)

	fresh, err := database.OpenMemory()
	require.NoError(t, err)
	defer database.Close(fresh)
	require.NoError(t, store.ReplayInto(ctx, fresh))

	incremental, err := projections.Dump(ctx, db)
	require.NoError(t, err)
	replayed, err := projections.Dump(ctx, fresh)
	require.NoError(t, err)

	equal, err := incremental.Equal(replayed)
	require.NoError(t, err)
	require.True(t, equal)
	require.Len(t, replayed.ChatMessages, 3)
	require.Len(t, replayed.Plants, 2)
}

func TestVerifyDetectsDrift(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	seed(t, store)

	scratch, err := database.OpenMemory()
	require.NoError(t, err)
	defer database.Close(scratch)
	ok, err := store.Verify(ctx, scratch)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Model(&models.Plant{}).Where("id = ?", "p1").Update("name", "Broken").Error)

	drifted, err := database.OpenMemory()
	require.NoError(t, err)
	defer database.Close(drifted)
	ok, err = store.Verify(ctx, drifted)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRebuildRestoresStateAndNotifies(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	seed(t, store)

	before, err := projections.Dump(ctx, db)
	require.NoError(t, err)

	// corrupt the materialized state behind the log's back
	require.NoError(t, db.Model(&models.Plant{}).Where("id = ?", "p1").Update("name", "Broken").Error)
	require.NoError(t, db.Where("id = ?", "m3").Delete(&models.ChatMessage{}).Error)

	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)
	require.NoError(t, store.Rebuild(ctx))

	after, err := projections.Dump(ctx, db)
	require.NoError(t, err)
	equal, err := before.Equal(after)
	require.NoError(t, err)
	require.True(t, equal)

	require.Len(t, notifier.tables, 1)
	require.ElementsMatch(t,
		[]string{domain.TableUser, domain.TableUsage, domain.TablePlants, domain.TableChatMessages},
		notifier.tables[0])
}

func TestCommitNotifiesTouchedTables(t *testing.T) {
	store, _ := newTestStore(t)
	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)
	ctx := context.Background()

	_, err := store.Commit(ctx, domain.PlantCreated{ID: "p1", UserID: "u", Name: "Fern", CreatedAt: 1, UpdatedAt: 1})
	require.NoError(t, err)
	_, err = store.Commit(ctx, domain.ChatCleared{PlantID: "p1", DeletedAt: 2})
	require.NoError(t, err)

	// rejected commits notify nobody
	_, err = store.Commit(ctx, domain.ChatCleared{PlantID: "p1"})
	require.Error(t, err)

	require.Equal(t, [][]string{{domain.TablePlants}, {domain.TableChatMessages}}, notifier.tables)
}

func TestConcurrentCommitsGetDistinctSequences(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Commit(ctx, domain.MessageCreated{
				ID: "m" + string(rune('a'+i)), PlantID: "p1", UserID: "u", Role: domain.RoleUser, CreatedAt: 1,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 20)
	for i, event := range events {
		require.Equal(t, uint64(i+1), event.Seq)
	}
}
