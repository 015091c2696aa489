package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/keeptend/domain"
	"example.com/keeptend/eventstore"
	"example.com/keeptend/models"
	"example.com/keeptend/repositories"
)

const (
	// DefaultFreeTierLimit is the monthly number of name generations on the free tier
	DefaultFreeTierLimit = 3

	// Unlimited is reported as Remaining for pro users
	Unlimited = -1

	monthLayout = "2006-01"
)

// ErrNoDevice is returned when a tracker is built without a device identity
var ErrNoDevice = errors.New("device id is required")

// Decision is the outcome of a quota check. A refusal is a decision, not an
// error.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Tier      string `json:"tier"`
}

// Stats is the usage of the current month
type Stats struct {
	Count int    `json:"count"`
	Month string `json:"month"`
	Tier  string `json:"tier"`
}

// Tracker enforces the monthly generation quota of one device user. Every
// change is committed as an event; the tracker never writes tables itself.
type Tracker struct {
	store  eventstore.EventStore
	repo   *repositories.StateRepository
	userID string
	limit  int
	now    func() time.Time
}

// NewTracker creates a tracker for the user identified by deviceID
func NewTracker(store eventstore.EventStore, repo *repositories.StateRepository, deviceID string, limit int) (*Tracker, error) {
	if deviceID == "" {
		return nil, ErrNoDevice
	}
	if limit < 0 {
		return nil, fmt.Errorf("free tier limit must not be negative, got %d", limit)
	}
	return &Tracker{
		store:  store,
		repo:   repo,
		userID: deviceID,
		limit:  limit,
		now:    time.Now,
	}, nil
}

// SetClock replaces the wall clock used for month keys and timestamps
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// UserID returns the tracked user id
func (t *Tracker) UserID() string {
	return t.userID
}

// Month returns the current local calendar month
func (t *Tracker) Month() string {
	return t.now().Format(monthLayout)
}

// EnsureUser returns the user row, committing UserCreated first when the
// user does not exist yet
func (t *Tracker) EnsureUser(ctx context.Context) (*models.User, error) {
	unlock := lockUser(t.userID)
	defer unlock()
	return t.ensureUser(ctx)
}

// CheckQuota decides whether another generation is allowed. It only reads:
// an unknown user is treated as a free user without usage.
func (t *Tracker) CheckQuota(ctx context.Context) (Decision, error) {
	tier := domain.TierFree
	user, err := t.repo.FindUser(ctx, t.userID)
	switch {
	case err == nil:
		tier = normalizeTier(user.Tier)
	case !errors.Is(err, domain.ErrNotFound):
		return Decision{}, err
	}
	return t.decide(ctx, tier)
}

// CanGenerateName creates the user if needed and checks the quota
func (t *Tracker) CanGenerateName(ctx context.Context) (Decision, error) {
	unlock := lockUser(t.userID)
	defer unlock()

	user, err := t.ensureUser(ctx)
	if err != nil {
		return Decision{}, err
	}
	return t.decide(ctx, normalizeTier(user.Tier))
}

// IncrementUsage records one more generation in the current month
func (t *Tracker) IncrementUsage(ctx context.Context) error {
	unlock := lockUser(t.userID)
	defer unlock()

	if _, err := t.ensureUser(ctx); err != nil {
		return err
	}
	return t.increment(ctx)
}

// GetCurrentUsage returns the count of the current month
func (t *Tracker) GetCurrentUsage(ctx context.Context) (Stats, error) {
	unlock := lockUser(t.userID)
	defer unlock()

	user, err := t.ensureUser(ctx)
	if err != nil {
		return Stats{}, err
	}
	month := t.Month()
	count, err := t.count(ctx, month)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: count, Month: month, Tier: normalizeTier(user.Tier)}, nil
}

// ResetMonthlyUsage sets the current month's count back to zero
func (t *Tracker) ResetMonthlyUsage(ctx context.Context) error {
	unlock := lockUser(t.userID)
	defer unlock()

	if _, err := t.ensureUser(ctx); err != nil {
		return err
	}
	return t.record(ctx, t.now(), 0)
}

// Consume checks the quota and, when allowed, records the generation in the
// same critical section. Remaining in the result already accounts for it.
func (t *Tracker) Consume(ctx context.Context) (Decision, error) {
	return t.Guard(ctx, func(context.Context) error { return nil })
}

// Guard runs fn only when the quota allows it and records the usage after fn
// succeeds. Check, fn and increment run under the user lock so concurrent
// callers cannot overrun the quota. A failed fn is not counted.
func (t *Tracker) Guard(ctx context.Context, fn func(ctx context.Context) error) (Decision, error) {
	unlock := lockUser(t.userID)
	defer unlock()

	user, err := t.ensureUser(ctx)
	if err != nil {
		return Decision{}, err
	}
	decision, err := t.decide(ctx, normalizeTier(user.Tier))
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		log.Info().
			Str("userID", t.userID).
			Str("month", t.Month()).
			Msg("Generation quota exhausted")
		return decision, nil
	}

	if err := fn(ctx); err != nil {
		return decision, err
	}

	if err := t.increment(ctx); err != nil {
		return decision, err
	}
	if decision.Remaining != Unlimited {
		decision.Remaining--
	}
	return decision, nil
}

// Upgrade moves the user to the pro tier
func (t *Tracker) Upgrade(ctx context.Context, subscriptionID string) error {
	return t.setTier(ctx, domain.TierPro, subscriptionID)
}

// Downgrade moves the user back to the free tier and drops the subscription
func (t *Tracker) Downgrade(ctx context.Context) error {
	return t.setTier(ctx, domain.TierFree, "")
}

func (t *Tracker) setTier(ctx context.Context, tier, subscriptionID string) error {
	unlock := lockUser(t.userID)
	defer unlock()

	if _, err := t.ensureUser(ctx); err != nil {
		return err
	}

	update := domain.UserUpdated{ID: t.userID, Tier: &tier}
	if subscriptionID != "" {
		update.SubscriptionID = &subscriptionID
	} else if tier == domain.TierFree {
		update.ClearSubscription = true
	}
	if _, err := t.store.Commit(ctx, update); err != nil {
		return fmt.Errorf("failed to set tier %s: %w", tier, err)
	}

	log.Info().Str("userID", t.userID).Str("tier", tier).Msg("User tier changed")
	return nil
}

func (t *Tracker) ensureUser(ctx context.Context) (*models.User, error) {
	user, err := t.repo.FindUser(ctx, t.userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if _, err := t.store.Commit(ctx, domain.UserCreated{
		ID:          t.userID,
		Tier:        domain.TierFree,
		SyncEnabled: false,
		CreatedAt:   t.now().UnixMilli(),
	}); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("userID", t.userID).Msg("User created")
	return t.repo.FindUser(ctx, t.userID)
}

func (t *Tracker) decide(ctx context.Context, tier string) (Decision, error) {
	if tier == domain.TierPro {
		return Decision{Allowed: true, Remaining: Unlimited, Tier: domain.TierPro}, nil
	}

	count, err := t.count(ctx, t.Month())
	if err != nil {
		return Decision{}, err
	}
	remaining := t.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, Tier: domain.TierFree}, nil
}

func (t *Tracker) count(ctx context.Context, month string) (int, error) {
	usage, err := t.repo.FindUsage(ctx, domain.UsageID(t.userID, month))
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.Count, nil
}

// increment reads the current count and commits the next full value. The
// clock is read once so the count and the row share a month.
func (t *Tracker) increment(ctx context.Context) error {
	now := t.now()
	count, err := t.count(ctx, now.Format(monthLayout))
	if err != nil {
		return err
	}
	return t.record(ctx, now, count+1)
}

func (t *Tracker) record(ctx context.Context, now time.Time, count int) error {
	month := now.Format(monthLayout)
	if _, err := t.store.Commit(ctx, domain.UsageRecorded{
		ID:        domain.UsageID(t.userID, month),
		UserID:    t.userID,
		Month:     month,
		Count:     count,
		CreatedAt: now.UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	log.Debug().
		Str("userID", t.userID).
		Str("month", month).
		Int("count", count).
		Msg("Usage recorded")
	return nil
}

// normalizeTier maps unknown stored tiers to free
func normalizeTier(tier string) string {
	if tier == domain.TierPro {
		return domain.TierPro
	}
	return domain.TierFree
}
