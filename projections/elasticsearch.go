package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/config"
	"example.com/keeptend/models"
	"example.com/keeptend/views"
)

// PlantsIndex is the search index holding live plants
const PlantsIndex = "plants"

const (
	dialTimeout           = 5 * time.Second
	responseHeaderTimeout = 10 * time.Second

	// DefaultSyncTimeout bounds one background sync of the plant index
	DefaultSyncTimeout = 30 * time.Second
)

// NewElasticsearchClient creates a new Elasticsearch client
func NewElasticsearchClient(cfg config.Config) (*elasticsearch.Client, error) {
	elasticCfg := elasticsearch.Config{
		Addresses: []string{cfg.ElasticSearchURL},
		Username:  cfg.ElasticSearchUsername,
		Password:  cfg.ElasticSearchPassword,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConnsPerHost:   10,
		},
	}

	client, err := elasticsearch.NewClient(elasticCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("error connecting to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch returned error: %s", res.String())
	}

	log.Info().Msg("Successfully connected to Elasticsearch")
	return client, nil
}

// EnsureIndices creates the plant index when it is missing
func EnsureIndices(client *elasticsearch.Client, cfg config.Config) error {
	index := config.FormatIndex(cfg, PlantsIndex)

	res, err := client.Indices.Exists([]string{index})
	if err != nil {
		return fmt.Errorf("error checking if index %s exists: %w", index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	log.Info().Msgf("Creating index %s", index)
	res, err = client.Indices.Create(index)
	if err != nil {
		return fmt.Errorf("error creating index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", index, res.String())
	}
	return nil
}

// PlantIndexer mirrors the plants table into the search index. Soft-deleted
// plants are removed from the index.
type PlantIndexer struct {
	client      *elasticsearch.Client
	index       string
	syncTimeout time.Duration

	mu      sync.Mutex
	indexed map[string]int64
	deleted map[string]bool
}

// NewPlantIndexer creates a new plant indexer
func NewPlantIndexer(client *elasticsearch.Client, cfg config.Config) *PlantIndexer {
	return &PlantIndexer{
		client:      client,
		index:       config.FormatIndex(cfg, PlantsIndex),
		syncTimeout: DefaultSyncTimeout,
		indexed:     make(map[string]int64),
		deleted:     make(map[string]bool),
	}
}

// SetSyncTimeout changes the deadline of one background sync
func (p *PlantIndexer) SetSyncTimeout(d time.Duration) {
	p.syncTimeout = d
}

// Start subscribes the indexer to the plants-all view. Results are synced by
// a worker goroutine that only keeps the latest pending result, so commits
// never wait on Elasticsearch. The returned function stops the worker.
func (p *PlantIndexer) Start(ctx context.Context, live *views.Live) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	pending := make(chan []models.Plant, 1)

	unsubscribe, err := views.Subscribe(ctx, live, views.AllPlants(), func(plants []models.Plant) {
		for {
			select {
			case pending <- plants:
				return
			default:
			}
			select {
			case <-pending:
			default:
			}
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case plants := <-pending:
				p.syncWithTimeout(ctx, plants)
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			cancel()
			wg.Wait()
		})
	}, nil
}

func (p *PlantIndexer) syncWithTimeout(ctx context.Context, plants []models.Plant) {
	ctx, cancel := context.WithTimeout(ctx, p.syncTimeout)
	defer cancel()
	if err := p.Sync(ctx, plants); err != nil {
		log.Error().Err(err).Str("index", p.index).Msg("Failed to sync plant index")
	}
}

// Sync pushes every plant that changed since the previous call
func (p *PlantIndexer) Sync(ctx context.Context, plants []models.Plant) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, plant := range plants {
		if plant.DeletedAt != nil {
			if p.deleted[plant.ID] {
				continue
			}
			if err := p.remove(ctx, plant.ID); err != nil {
				return err
			}
			p.deleted[plant.ID] = true
			delete(p.indexed, plant.ID)
			continue
		}

		if updatedAt, ok := p.indexed[plant.ID]; ok && updatedAt == plant.UpdatedAt {
			continue
		}
		if err := p.put(ctx, plant); err != nil {
			return err
		}
		p.indexed[plant.ID] = plant.UpdatedAt
	}
	return nil
}

// Reconcile forgets what was pushed and writes every plant again. It repairs
// an index that lost documents while the indexer was running.
func (p *PlantIndexer) Reconcile(ctx context.Context, live *views.Live) error {
	plants, err := views.Get(ctx, live, views.AllPlants())
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.indexed = make(map[string]int64)
	p.deleted = make(map[string]bool)
	p.mu.Unlock()

	log.Info().Int("plants", len(plants)).Str("index", p.index).Msg("Reconciling plant index")
	return p.Sync(ctx, plants)
}

func (p *PlantIndexer) put(ctx context.Context, plant models.Plant) error {
	doc, err := json.Marshal(plant)
	if err != nil {
		return fmt.Errorf("failed to marshal plant: %w", err)
	}

	res, err := p.client.Index(
		p.index,
		bytes.NewReader(doc),
		p.client.Index.WithDocumentID(plant.ID),
		p.client.Index.WithRefresh("true"),
		p.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index plant in Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index plant in Elasticsearch: %s", res.String())
	}
	return nil
}

func (p *PlantIndexer) remove(ctx context.Context, id string) error {
	res, err := p.client.Delete(
		p.index,
		id,
		p.client.Delete.WithRefresh("true"),
		p.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete plant from Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete plant from Elasticsearch: %s", res.String())
	}
	return nil
}
