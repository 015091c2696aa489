package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Query evaluates a view against the current state tables
type Query[T any] func(ctx context.Context, db *gorm.DB) (T, error)

// View is a named read query and the tables it depends on. The label must
// encode every parameter of the query: subscribers with equal labels share
// one evaluation.
type View[T any] struct {
	Label  string
	Tables []string
	Query  Query[T]
}

// Live keeps subscribed views current. The event store calls Notify after
// each commit with the tables the commit wrote.
type Live struct {
	db     *gorm.DB
	mu     sync.Mutex
	nextID uint64
	labels map[string]*entry
	tables map[string]map[string]struct{}
}

type entry struct {
	tables  []string
	run     func(ctx context.Context) (interface{}, error)
	result  interface{}
	version uint64
	subs    map[uint64]*subscription
}

type subscription struct {
	mu       sync.Mutex
	seen     uint64
	pending  interface{}
	queued   bool
	draining bool
	push     func(interface{})
}

type delivery struct {
	sub     *subscription
	version uint64
	result  interface{}
}

// NewLive creates a live view hub over db
func NewLive(db *gorm.DB) *Live {
	return &Live{
		db:     db,
		labels: make(map[string]*entry),
		tables: make(map[string]map[string]struct{}),
	}
}

// Get evaluates a view once
func Get[T any](ctx context.Context, l *Live, v View[T]) (T, error) {
	return v.Query(ctx, l.db)
}

// Subscribe calls fn with the current result of v before returning, and again
// after every commit that touches one of the view's tables. The returned
// function ends the subscription.
func Subscribe[T any](ctx context.Context, l *Live, v View[T], fn func(T)) (func(), error) {
	l.mu.Lock()
	e, ok := l.labels[v.Label]
	if !ok {
		query := v.Query
		e = &entry{
			tables: v.Tables,
			run: func(ctx context.Context) (interface{}, error) {
				return query(ctx, l.db)
			},
			subs: make(map[uint64]*subscription),
		}
		result, err := e.run(ctx)
		if err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("failed to evaluate view %s: %w", v.Label, err)
		}
		e.result = result
		e.version = 1

		l.labels[v.Label] = e
		for _, table := range v.Tables {
			if l.tables[table] == nil {
				l.tables[table] = make(map[string]struct{})
			}
			l.tables[table][v.Label] = struct{}{}
		}
	}

	l.nextID++
	id := l.nextID
	sub := &subscription{
		push: func(r interface{}) {
			typed, _ := r.(T)
			fn(typed)
		},
	}
	e.subs[id] = sub
	d := delivery{sub: sub, version: e.version, result: e.result}
	l.mu.Unlock()

	d.deliver()

	var once sync.Once
	cancel := func() {
		once.Do(func() { l.unsubscribe(v.Label, id) })
	}
	return cancel, nil
}

// Notify re-evaluates every subscribed view that depends on one of tables and
// pushes the fresh results
func (l *Live) Notify(tables ...string) {
	l.mu.Lock()
	affected := make(map[string]struct{})
	for _, table := range tables {
		for label := range l.tables[table] {
			affected[label] = struct{}{}
		}
	}

	var deliveries []delivery
	for label := range affected {
		e := l.labels[label]
		result, err := e.run(context.Background())
		if err != nil {
			log.Error().Err(err).Str("view", label).Msg("Failed to refresh view")
			continue
		}
		e.result = result
		e.version++
		for _, sub := range e.subs {
			deliveries = append(deliveries, delivery{sub: sub, version: e.version, result: result})
		}
	}
	l.mu.Unlock()

	for _, d := range deliveries {
		d.deliver()
	}
}

// Labels returns the labels of all subscribed views
func (l *Live) Labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	labels := make([]string, 0, len(l.labels))
	for label := range l.labels {
		labels = append(labels, label)
	}
	return labels
}

func (l *Live) unsubscribe(label string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.labels[label]
	if !ok {
		return
	}
	delete(e.subs, id)
	if len(e.subs) > 0 {
		return
	}

	delete(l.labels, label)
	for _, table := range e.tables {
		delete(l.tables[table], label)
		if len(l.tables[table]) == 0 {
			delete(l.tables, table)
		}
	}
}

// deliver pushes results to a subscriber in version order. Results no newer
// than the last accepted one are dropped. A push made while another push to
// the same subscriber is running, including one from inside its callback, is
// queued and only the latest queued result is delivered.
func (d delivery) deliver() {
	s := d.sub
	s.mu.Lock()
	if d.version <= s.seen {
		s.mu.Unlock()
		return
	}
	s.seen = d.version
	s.pending = d.result
	s.queued = true
	if s.draining {
		s.mu.Unlock()
		return
	}

	s.draining = true
	for s.queued {
		result := s.pending
		s.pending = nil
		s.queued = false
		s.mu.Unlock()
		s.push(result)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
