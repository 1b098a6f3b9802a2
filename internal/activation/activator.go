// Package activation turns a paid transaction into subscription time.
//
// Marking a transaction paid creates the user's subscription for the
// transaction's subscription type, or extends the one that is still running.
// The status change and the subscription write commit together or not at all.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

// Outcome tells which branch of the activation rule ran.
type Outcome string

const (
	// OutcomeCreated means a new subscription row was inserted.
	OutcomeCreated Outcome = "created"
	// OutcomeExtended means a running subscription's expiry moved forward.
	OutcomeExtended Outcome = "extended"
	// OutcomeNoOp means no subscription was touched.
	OutcomeNoOp Outcome = "noop"
)

// Result is returned by Activate. Subscription is nil unless Outcome is
// OutcomeCreated or OutcomeExtended.
type Result struct {
	Transaction  *models.Transaction      `json:"transaction"`
	Subscription *models.UserSubscription `json:"subscription"`
	Outcome      Outcome                  `json:"outcome"`
}

// TransactionStore reads and updates payment transactions.
type TransactionStore interface {
	// GetTransactionForUpdate loads a transaction and locks it for the rest
	// of the surrounding unit of work.
	GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status models.PaymentStatus) (*models.Transaction, error)
	RecordStatusEvent(ctx context.Context, event *models.TransactionStatusEvent) error
}

// SubscriptionTypeStore reads subscription types.
type SubscriptionTypeStore interface {
	GetSubscriptionType(ctx context.Context, id string) (*models.SubscriptionType, error)
}

// SubscriptionStore reads and writes user subscriptions.
type SubscriptionStore interface {
	FindActiveSubscriptions(ctx context.Context, userID, subscriptionTypeID string, at time.Time) ([]models.UserSubscription, error)
	DeactivateExpiredSubscriptions(ctx context.Context, userID, subscriptionTypeID string, at time.Time) (int64, error)
	CreateSubscription(ctx context.Context, sub *models.UserSubscription) (*models.UserSubscription, error)
	ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, transactionID string) (*models.UserSubscription, error)
}

// Transactor runs fn as one all-or-nothing unit of work. Store calls made
// with the context handed to fn take part in the unit.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository is everything the Activator needs from persistence.
type Repository interface {
	Transactor
	TransactionStore
	SubscriptionTypeStore
	SubscriptionStore
}

// Recorder observes the result of every Activate call.
type Recorder interface {
	ObserveActivation(outcome Outcome, err error)
}

// Option configures an Activator.
type Option func(*Activator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Activator) {
		a.now = now
	}
}

// WithRecorder reports each activation to r.
func WithRecorder(r Recorder) Option {
	return func(a *Activator) {
		a.recorder = r
	}
}

// Activator applies payment status changes to transactions.
type Activator struct {
	repo     Repository
	now      func() time.Time
	recorder Recorder
}

// New creates an Activator backed by repo.
func New(repo Repository, opts ...Option) *Activator {
	a := &Activator{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Activate moves the transaction to newStatus.
//
// Moving a transaction that is not yet paid to paid creates or extends the
// user's subscription for the transaction's subscription type. Every other
// permitted change only updates the transaction. Re-applying the current
// status is a no-op, so retrying a successful call never double-activates.
func (a *Activator) Activate(ctx context.Context, transactionID string, newStatus models.PaymentStatus) (*Result, error) {
	result, err := a.apply(ctx, transactionID, newStatus)
	if a.recorder != nil {
		var outcome Outcome
		if result != nil {
			outcome = result.Outcome
		}
		a.recorder.ObserveActivation(outcome, err)
	}
	return result, err
}

func (a *Activator) apply(ctx context.Context, transactionID string, newStatus models.PaymentStatus) (*Result, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidTransition, newStatus)
	}

	var result *Result
	err := a.repo.InTx(ctx, func(ctx context.Context) error {
		tx, err := a.repo.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return classify("load transaction", err)
		}

		from := tx.PaymentStatus
		if !CanTransition(from, newStatus) {
			return fmt.Errorf("%w: transaction %s cannot move from %s to %s",
				ErrInvalidTransition, tx.ID, from, newStatus)
		}

		if from == newStatus {
			result = &Result{Transaction: tx, Outcome: OutcomeNoOp}
			return nil
		}

		if activates(from, newStatus) {
			result, err = a.activate(ctx, tx)
			return err
		}

		updated, err := a.repo.UpdateTransactionStatus(ctx, tx.ID, newStatus)
		if err != nil {
			return classify("update transaction status", err)
		}
		if err := a.recordEvent(ctx, from, updated, OutcomeNoOp, nil); err != nil {
			return err
		}
		result = &Result{Transaction: updated, Outcome: OutcomeNoOp}
		return nil
	})
	if err != nil {
		return nil, classify("commit", err)
	}
	return result, nil
}

// ActivateWithRetry calls Activate and re-runs it when it loses a race
// against a concurrent activation, up to attempts times in total.
func (a *Activator) ActivateWithRetry(ctx context.Context, transactionID string, newStatus models.PaymentStatus, attempts int) (*Result, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := a.Activate(ctx, transactionID, newStatus)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
		log.Printf("[activation] conflict on transaction %s (attempt %d/%d): %v", transactionID, attempt, attempts, err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// activate runs inside the unit of work opened by Activate. The transaction
// row is already locked.
func (a *Activator) activate(ctx context.Context, tx *models.Transaction) (*Result, error) {
	now := a.now().UTC()

	subType, err := a.repo.GetSubscriptionType(ctx, tx.SubscriptionTypeID)
	if err != nil {
		return nil, classify("load subscription type", err)
	}
	if subType.DurationDays < 1 {
		return nil, fmt.Errorf("%w: subscription type %s has duration_days %d",
			ErrInvalidTransition, subType.ID, subType.DurationDays)
	}
	if !subType.IsActive {
		log.Printf("[activation] transaction %s pays for inactive subscription type %s; activating anyway", tx.ID, subType.ID)
	}

	updated, err := a.repo.UpdateTransactionStatus(ctx, tx.ID, models.PaymentStatusPaid)
	if err != nil {
		return nil, classify("update transaction status", err)
	}

	active, err := a.repo.FindActiveSubscriptions(ctx, tx.UserID, tx.SubscriptionTypeID, now)
	if err != nil {
		return nil, classify("find active subscriptions", err)
	}

	var (
		sub     *models.UserSubscription
		outcome Outcome
	)
	if len(active) == 0 {
		// Rows flagged active whose window already ended would block the
		// unique active index; retire them before starting a fresh window.
		if _, err := a.repo.DeactivateExpiredSubscriptions(ctx, tx.UserID, tx.SubscriptionTypeID, now); err != nil {
			return nil, classify("deactivate expired subscriptions", err)
		}
		sub, err = a.repo.CreateSubscription(ctx, &models.UserSubscription{
			UserID:             tx.UserID,
			SubscriptionTypeID: tx.SubscriptionTypeID,
			TransactionID:      tx.ID,
			StartedAt:          now,
			ExpiresAt:          subType.WindowEnd(now),
			IsActive:           true,
		})
		if err != nil {
			return nil, classify("create subscription", err)
		}
		outcome = OutcomeCreated
	} else {
		target := latestExpiry(active)
		if len(active) > 1 {
			log.Printf("[activation] inconsistency: %d active subscriptions for user=%s type=%s; extending %s",
				len(active), tx.UserID, tx.SubscriptionTypeID, target.ID)
		}
		sub, err = a.repo.ExtendSubscription(ctx, target.ID, extendedExpiry(target.ExpiresAt, now, subType), tx.ID)
		if err != nil {
			return nil, classify("extend subscription", err)
		}
		outcome = OutcomeExtended
	}

	if err := a.recordEvent(ctx, tx.PaymentStatus, updated, outcome, &sub.ID); err != nil {
		return nil, err
	}

	log.Printf("[activation] transaction %s paid: %s subscription %s for user=%s type=%s until %s",
		tx.ID, outcome, sub.ID, tx.UserID, tx.SubscriptionTypeID, sub.ExpiresAt.Format(time.RFC3339))

	return &Result{Transaction: updated, Subscription: sub, Outcome: outcome}, nil
}

func (a *Activator) recordEvent(ctx context.Context, from models.PaymentStatus, tx *models.Transaction, outcome Outcome, subscriptionID *string) error {
	err := a.repo.RecordStatusEvent(ctx, &models.TransactionStatusEvent{
		TransactionID:  tx.ID,
		FromStatus:     from,
		ToStatus:       tx.PaymentStatus,
		Outcome:        string(outcome),
		SubscriptionID: subscriptionID,
	})
	return classify("record status event", err)
}

// extendedExpiry adds one window to the later of the current expiry and now,
// so an extension never shortens a subscription.
func extendedExpiry(current, now time.Time, subType *models.SubscriptionType) time.Time {
	base := current
	if now.After(base) {
		base = now
	}
	return subType.WindowEnd(base)
}

func latestExpiry(subs []models.UserSubscription) *models.UserSubscription {
	latest := &subs[0]
	for i := 1; i < len(subs); i++ {
		if subs[i].ExpiresAt.After(latest.ExpiresAt) {
			latest = &subs[i]
		}
	}
	return latest
}
