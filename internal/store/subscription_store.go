package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

const subscriptionColumns = `id, user_id, subscription_type_id, transaction_id,
		started_at, expires_at, is_active, created_at, updated_at`

func scanSubscription(row rowScanner) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.SubscriptionTypeID, &sub.TransactionID,
		&sub.StartedAt, &sub.ExpiresAt, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionType returns the subscription type with the given id.
func (s *Store) GetSubscriptionType(ctx context.Context, id string) (*models.SubscriptionType, error) {
	query := `SELECT id, name, price, duration_days, features, is_active, created_at, updated_at
		FROM subscription_types WHERE id = $1`

	var t models.SubscriptionType
	err := s.conn(ctx).QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Price, &t.DurationDays, &t.Features, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get subscription type %s: %w", id, classify(err))
	}
	return &t, nil
}

// CreateSubscriptionType inserts a new subscription type.
func (s *Store) CreateSubscriptionType(ctx context.Context, t *models.SubscriptionType) error {
	if t.DurationDays < 1 {
		return errors.New("store: duration_days must be at least 1")
	}
	if t.Features == nil {
		t.Features = models.JSONB{}
	}

	query := `
		INSERT INTO subscription_types (name, price, duration_days, features, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		t.Name, t.Price, t.DurationDays, t.Features, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create subscription type: %w", classify(err))
	}
	return nil
}

// FindActiveSubscriptions returns the subscriptions of the user for the given
// type that are flagged active and expire after at, latest expiry first. The
// rows stay locked until the surrounding transaction ends.
func (s *Store) FindActiveSubscriptions(ctx context.Context, userID, subscriptionTypeID string, at time.Time) ([]models.UserSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM user_subscriptions
		WHERE user_id = $1 AND subscription_type_id = $2
		  AND is_active AND expires_at > $3
		ORDER BY expires_at DESC
		FOR UPDATE
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, userID, subscriptionTypeID, at)
	if err != nil {
		return nil, fmt.Errorf("store: find active subscriptions: %w", classify(err))
	}
	defer rows.Close()

	var subs []models.UserSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate subscriptions: %w", classify(err))
	}
	return subs, nil
}

// DeactivateExpiredSubscriptions clears is_active on rows of the pair whose
// window ended at or before at, and returns how many rows changed.
func (s *Store) DeactivateExpiredSubscriptions(ctx context.Context, userID, subscriptionTypeID string, at time.Time) (int64, error) {
	query := `
		UPDATE user_subscriptions
		SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND subscription_type_id = $2
		  AND is_active AND expires_at <= $3
	`
	result, err := s.conn(ctx).ExecContext(ctx, query, userID, subscriptionTypeID, at)
	if err != nil {
		return 0, fmt.Errorf("store: deactivate expired subscriptions: %w", classify(err))
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// ExpireSubscriptions clears is_active on every row whose window ended at or
// before at. Readers already treat those rows as inactive; the sweep keeps the
// flag honest for reporting.
func (s *Store) ExpireSubscriptions(ctx context.Context, at time.Time) (int64, error) {
	query := `
		UPDATE user_subscriptions
		SET is_active = FALSE, updated_at = now()
		WHERE is_active AND expires_at <= $1
	`
	result, err := s.conn(ctx).ExecContext(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("store: expire subscriptions: %w", classify(err))
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// CreateSubscription inserts a subscription row. A second active row for the
// same user and type violates user_subscriptions_one_active_idx and is
// reported as ErrConflict.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.UserSubscription) (*models.UserSubscription, error) {
	query := `
		INSERT INTO user_subscriptions (user_id, subscription_type_id, transaction_id, started_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + subscriptionColumns

	created, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, query,
		sub.UserID, sub.SubscriptionTypeID, sub.TransactionID, sub.StartedAt, sub.ExpiresAt, sub.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("store: create subscription: %w", classify(err))
	}
	return created, nil
}

// ExtendSubscription moves the expiry of an existing subscription and records
// the transaction that paid for the extension. started_at is left untouched.
func (s *Store) ExtendSubscription(ctx context.Context, id string, expiresAt time.Time, transactionID string) (*models.UserSubscription, error) {
	query := `
		UPDATE user_subscriptions
		SET expires_at = $2, transaction_id = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, query, id, expiresAt, transactionID))
	if err != nil {
		return nil, fmt.Errorf("store: extend subscription %s: %w", id, classify(err))
	}
	return sub, nil
}

// ListUserSubscriptions returns a user's subscriptions, newest expiry first.
// With activeOnly set, only rows active at the given time are returned.
func (s *Store) ListUserSubscriptions(ctx context.Context, userID string, activeOnly bool, at time.Time) ([]models.UserSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM user_subscriptions
		WHERE user_id = $1
		  AND (NOT $2::boolean OR (is_active AND expires_at > $3))
		ORDER BY expires_at DESC
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, userID, activeOnly, at)
	if err != nil {
		return nil, fmt.Errorf("store: list user subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.UserSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate subscriptions: %w", err)
	}
	return subs, nil
}
