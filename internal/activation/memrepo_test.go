package activation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

type memTxKey struct{}

// memRepo is an in-memory Repository. InTx serializes units of work and
// restores a snapshot on failure, mirroring a Postgres transaction. It also
// enforces the one-active-row-per-pair index.
type memRepo struct {
	mu sync.Mutex

	transactions  map[string]models.Transaction
	types         map[string]models.SubscriptionType
	subscriptions map[string]models.UserSubscription
	events        []models.TransactionStatusEvent

	failCreate error
	failExtend error
	failEvent  error
	// conflictsLeft makes the next n CreateSubscription calls report a
	// unique violation, as a concurrent committed insert would.
	conflictsLeft int
}

func newMemRepo() *memRepo {
	return &memRepo{
		transactions:  map[string]models.Transaction{},
		types:         map[string]models.SubscriptionType{},
		subscriptions: map[string]models.UserSubscription{},
	}
}

type memSnapshot struct {
	transactions  map[string]models.Transaction
	subscriptions map[string]models.UserSubscription
	events        []models.TransactionStatusEvent
}

func (r *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		transactions:  make(map[string]models.Transaction, len(r.transactions)),
		subscriptions: make(map[string]models.UserSubscription, len(r.subscriptions)),
		events:        append([]models.TransactionStatusEvent(nil), r.events...),
	}
	for k, v := range r.transactions {
		s.transactions[k] = v
	}
	for k, v := range r.subscriptions {
		s.subscriptions[k] = v
	}
	return s
}

func (r *memRepo) restore(s memSnapshot) {
	r.transactions = s.transactions
	r.subscriptions = s.subscriptions
	r.events = s.events
}

func (r *memRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// Test helpers run outside InTx and take the lock themselves.

func (r *memRepo) addType(durationDays int) models.SubscriptionType {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := models.SubscriptionType{ID: uuid.NewString(), Name: "Premium", Price: 50000, DurationDays: durationDays, IsActive: true}
	r.types[t.ID] = t
	return t
}

func (r *memRepo) addTransaction(userID, typeID string, status models.PaymentStatus) models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := models.Transaction{
		ID:                 uuid.NewString(),
		UserID:             userID,
		SubscriptionTypeID: typeID,
		Amount:             50000,
		PaymentMethod:      "bank_transfer",
		PaymentStatus:      status,
	}
	r.transactions[t.ID] = t
	return t
}

func (r *memRepo) addSubscription(userID, typeID, txID string, startedAt, expiresAt time.Time, active bool) models.UserSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := models.UserSubscription{
		ID:                 uuid.NewString(),
		UserID:             userID,
		SubscriptionTypeID: typeID,
		TransactionID:      txID,
		StartedAt:          startedAt,
		ExpiresAt:          expiresAt,
		IsActive:           active,
	}
	r.subscriptions[s.ID] = s
	return s
}

func (r *memRepo) transaction(id string) models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transactions[id]
}

func (r *memRepo) subscriptionsFor(userID, typeID string) []models.UserSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserSubscription
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.SubscriptionTypeID == typeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out
}

func (r *memRepo) activeAt(userID, typeID string, at time.Time) []models.UserSubscription {
	var out []models.UserSubscription
	for _, s := range r.subscriptionsFor(userID, typeID) {
		if s.ActiveAt(at) {
			out = append(out, s)
		}
	}
	return out
}

func (r *memRepo) eventsFor(txID string) []models.TransactionStatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TransactionStatusEvent
	for _, e := range r.events {
		if e.TransactionID == txID {
			out = append(out, e)
		}
	}
	return out
}

// Repository methods. They are only called from inside InTx, which holds mu.

func (r *memRepo) GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return nil, fmt.Errorf("store: lock transaction %s: %w", id, store.ErrNotFound)
	}
	return &t, nil
}

func (r *memRepo) UpdateTransactionStatus(ctx context.Context, id string, status models.PaymentStatus) (*models.Transaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return nil, fmt.Errorf("store: update transaction %s status: %w", id, store.ErrNotFound)
	}
	t.PaymentStatus = status
	r.transactions[id] = t
	return &t, nil
}

func (r *memRepo) RecordStatusEvent(ctx context.Context, event *models.TransactionStatusEvent) error {
	if r.failEvent != nil {
		return r.failEvent
	}
	event.ID = int64(len(r.events) + 1)
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepo) GetSubscriptionType(ctx context.Context, id string) (*models.SubscriptionType, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("store: get subscription type %s: %w", id, store.ErrNotFound)
	}
	return &t, nil
}

func (r *memRepo) FindActiveSubscriptions(ctx context.Context, userID, typeID string, at time.Time) ([]models.UserSubscription, error) {
	var out []models.UserSubscription
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.SubscriptionTypeID == typeID && s.ActiveAt(at) {
			out = append(out, s)
		}
	}
	// Map order is random; the activator must not depend on row order.
	return out, nil
}

func (r *memRepo) DeactivateExpiredSubscriptions(ctx context.Context, userID, typeID string, at time.Time) (int64, error) {
	var n int64
	for id, s := range r.subscriptions {
		if s.UserID == userID && s.SubscriptionTypeID == typeID && s.IsActive && !s.ExpiresAt.After(at) {
			s.IsActive = false
			r.subscriptions[id] = s
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CreateSubscription(ctx context.Context, sub *models.UserSubscription) (*models.UserSubscription, error) {
	if r.failCreate != nil {
		return nil, r.failCreate
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return nil, fmt.Errorf("store: create subscription: %w", store.ErrConflict)
	}
	for _, s := range r.subscriptions {
		if sub.IsActive && s.IsActive && s.UserID == sub.UserID && s.SubscriptionTypeID == sub.SubscriptionTypeID {
			return nil, fmt.Errorf("store: create subscription: %w", store.ErrConflict)
		}
	}
	created := *sub
	created.ID = uuid.NewString()
	r.subscriptions[created.ID] = created
	return &created, nil
}

func (r *memRepo) ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, transactionID string) (*models.UserSubscription, error) {
	if r.failExtend != nil {
		return nil, r.failExtend
	}
	s, ok := r.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("store: extend subscription %s: %w", id, store.ErrNotFound)
	}
	s.ExpiresAt = expiresAt
	s.TransactionID = transactionID
	r.subscriptions[id] = s
	return &s, nil
}
