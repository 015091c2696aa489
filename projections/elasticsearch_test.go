package projections

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/stretchr/testify/require"

	"example.com/keeptend/config"
	"example.com/keeptend/domain"
	"example.com/keeptend/models"
	"example.com/keeptend/views"
)

type fakeElastic struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	indices  map[string]bool

	// gate holds document requests until it is closed
	gate chan struct{}
}

func newFakeElastic(t *testing.T) (*fakeElastic, *elasticsearch.Client) {
	t.Helper()
	return newGatedElastic(t, nil)
}

func newGatedElastic(t *testing.T, gate chan struct{}) (*fakeElastic, *elasticsearch.Client) {
	t.Helper()
	fake := &fakeElastic{bodies: map[string]string{}, indices: map[string]bool{}, gate: gate}
	srv := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(srv.Close)

	client, err := NewElasticsearchClient(config.Config{ElasticSearchURL: srv.URL, ElasticSearchPrefix: "test"})
	require.NoError(t, err)
	return fake, client
}

func (f *fakeElastic) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/" {
		io.WriteString(w, `{"name":"fake","cluster_name":"fake","version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`)
		return
	}

	if f.gate != nil && strings.Contains(r.URL.Path, "/_doc/") {
		select {
		case <-f.gate:
		case <-r.Context().Done():
			return
		}
	}

	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies[r.Method+" "+r.URL.Path] = string(body)

	switch r.Method {
	case http.MethodHead:
		if !f.indices[r.URL.Path] {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodPut:
		f.indices[r.URL.Path] = true
		io.WriteString(w, `{"acknowledged":true,"result":"created"}`)
	case http.MethodDelete:
		io.WriteString(w, `{"result":"deleted"}`)
	default:
		io.WriteString(w, `{}`)
	}
}

func (f *fakeElastic) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func TestEnsureIndicesCreatesMissingIndex(t *testing.T) {
	fake, client := newFakeElastic(t)
	cfg := config.Config{ElasticSearchPrefix: "test"}

	require.NoError(t, EnsureIndices(client, cfg))
	require.NoError(t, EnsureIndices(client, cfg))

	require.Equal(t, []string{"HEAD /test-plants", "PUT /test-plants", "HEAD /test-plants"}, fake.seen())
}

func TestPlantIndexerSyncsChangedPlants(t *testing.T) {
	fake, client := newFakeElastic(t)
	indexer := NewPlantIndexer(client, config.Config{ElasticSearchPrefix: "test"})
	ctx := context.Background()

	deletedAt := int64(9)
	plants := []models.Plant{
		{ID: "p1", Name: "Fern", UpdatedAt: 1},
		{ID: "p2", Name: "Cactus", UpdatedAt: 1, DeletedAt: &deletedAt},
	}
	require.NoError(t, indexer.Sync(ctx, plants))
	require.Equal(t, []string{"PUT /test-plants/_doc/p1", "DELETE /test-plants/_doc/p2"}, fake.seen())
	require.Contains(t, fake.bodies["PUT /test-plants/_doc/p1"], `"name":"Fern"`)

	// unchanged plants are not pushed again
	require.NoError(t, indexer.Sync(ctx, plants))
	require.Len(t, fake.seen(), 2)

	plants[0].Name = "Frond"
	plants[0].UpdatedAt = 2
	require.NoError(t, indexer.Sync(ctx, plants))
	require.Equal(t, "PUT /test-plants/_doc/p1", fake.seen()[2])
	require.Contains(t, fake.bodies["PUT /test-plants/_doc/p1"], `"name":"Frond"`)
}

func TestPlantIndexerFollowsLiveView(t *testing.T) {
	fake, client := newFakeElastic(t)
	db := newStateDB(t)
	live := views.NewLive(db)

	require.NoError(t, apply(t, db, 1, domain.PlantCreated{ID: "p1", UserID: "u", Name: "Fern", CreatedAt: 1, UpdatedAt: 1}))

	stop, err := NewPlantIndexer(client, config.Config{ElasticSearchPrefix: "test"}).Start(context.Background(), live)
	require.NoError(t, err)
	defer stop()
	require.Eventually(t, func() bool {
		return len(fake.seen()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"PUT /test-plants/_doc/p1"}, fake.seen())

	require.NoError(t, apply(t, db, 2, domain.PlantDeleted{ID: "p1", DeletedAt: 5}))
	live.Notify(domain.TablePlants)
	require.Eventually(t, func() bool {
		return len(fake.seen()) == 2
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"PUT /test-plants/_doc/p1", "DELETE /test-plants/_doc/p1"}, fake.seen())
}

func TestPlantIndexerDoesNotBlockNotify(t *testing.T) {
	release := make(chan struct{})
	fake, client := newGatedElastic(t, release)
	db := newStateDB(t)
	live := views.NewLive(db)

	indexer := NewPlantIndexer(client, config.Config{ElasticSearchPrefix: "test"})
	stop, err := indexer.Start(context.Background(), live)
	require.NoError(t, err)

	require.NoError(t, apply(t, db, 1, domain.PlantCreated{ID: "p1", UserID: "u", Name: "Fern", CreatedAt: 1, UpdatedAt: 1}))
	notified := make(chan struct{})
	go func() {
		live.Notify(domain.TablePlants)
		close(notified)
	}()

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("notify waited on the search index")
	}

	close(release)
	require.Eventually(t, func() bool {
		return len(fake.seen()) == 1
	}, time.Second, 10*time.Millisecond)
	stop()
}

func TestPlantIndexerSyncTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	_, client := newGatedElastic(t, release)
	db := newStateDB(t)
	live := views.NewLive(db)
	require.NoError(t, apply(t, db, 1, domain.PlantCreated{ID: "p1", UserID: "u", Name: "Fern", CreatedAt: 1, UpdatedAt: 1}))

	indexer := NewPlantIndexer(client, config.Config{ElasticSearchPrefix: "test"})
	indexer.SetSyncTimeout(50 * time.Millisecond)
	stop, err := indexer.Start(context.Background(), live)
	require.NoError(t, err)

	// a hung cluster only delays the worker until the sync deadline
	stopped := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not stop while the cluster hung")
	}
}

func TestPlantIndexerReconcilePushesEverything(t *testing.T) {
	fake, client := newFakeElastic(t)
	db := newStateDB(t)
	live := views.NewLive(db)
	indexer := NewPlantIndexer(client, config.Config{ElasticSearchPrefix: "test"})
	ctx := context.Background()

	require.NoError(t, apply(t, db, 1, domain.PlantCreated{ID: "p1", UserID: "u", Name: "Fern", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, indexer.Reconcile(ctx, live))
	require.NoError(t, indexer.Reconcile(ctx, live))

	require.Equal(t, []string{"PUT /test-plants/_doc/p1", "PUT /test-plants/_doc/p1"}, fake.seen())
}
