package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

const transactionColumns = `id, user_id, subscription_type_id, amount, payment_method,
		payment_status, metadata, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(
		&t.ID, &t.UserID, &t.SubscriptionTypeID, &t.Amount, &t.PaymentMethod,
		&t.PaymentStatus, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransaction returns the transaction with the given id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("store: get transaction %s: %w", id, classify(err))
	}
	return t, nil
}

// GetTransactionForUpdate returns the transaction and holds a row lock on it
// until the surrounding transaction ends. Concurrent status changes for the
// same transaction queue behind the lock.
func (s *Store) GetTransactionForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("store: lock transaction %s: %w", id, classify(err))
	}
	return t, nil
}

// CreateTransaction inserts a new transaction. Status defaults to pending.
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if t.PaymentStatus == "" {
		t.PaymentStatus = models.PaymentStatusPending
	}
	if t.Metadata == nil {
		t.Metadata = models.JSONB{}
	}

	query := `
		INSERT INTO transactions (user_id, subscription_type_id, amount, payment_method, payment_status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		t.UserID, t.SubscriptionTypeID, t.Amount, t.PaymentMethod, t.PaymentStatus, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create transaction: %w", classify(err))
	}
	return nil
}

// UpdateTransactionStatus sets payment_status and returns the updated row.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status models.PaymentStatus) (*models.Transaction, error) {
	query := `
		UPDATE transactions
		SET payment_status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + transactionColumns

	t, err := scanTransaction(s.conn(ctx).QueryRowContext(ctx, query, id, status))
	if err != nil {
		return nil, fmt.Errorf("store: update transaction %s status: %w", id, classify(err))
	}
	return t, nil
}

// ListTransactions returns the newest transactions, optionally filtered by
// status. An empty status lists every transaction.
func (s *Store) ListTransactions(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ($1::text = '' OR payment_status = $1::text)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, string(status), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate transactions: %w", err)
	}
	return transactions, nil
}

// RecordStatusEvent appends an entry to the transaction's status history.
func (s *Store) RecordStatusEvent(ctx context.Context, event *models.TransactionStatusEvent) error {
	query := `
		INSERT INTO transaction_status_events (transaction_id, from_status, to_status, outcome, subscription_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		event.TransactionID, event.FromStatus, event.ToStatus, event.Outcome, event.SubscriptionID,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record status event for %s: %w", event.TransactionID, classify(err))
	}
	return nil
}

// ListStatusEvents returns the status history of a transaction, oldest first.
func (s *Store) ListStatusEvents(ctx context.Context, transactionID string) ([]models.TransactionStatusEvent, error) {
	query := `
		SELECT id, transaction_id, from_status, to_status, outcome, subscription_id, created_at
		FROM transaction_status_events
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("store: list status events: %w", err)
	}
	defer rows.Close()

	var events []models.TransactionStatusEvent
	for rows.Next() {
		var (
			e     models.TransactionStatusEvent
			subID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.FromStatus, &e.ToStatus, &e.Outcome, &subID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan status event: %w", err)
		}
		e.SubscriptionID = nullStringPtr(subID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate status events: %w", err)
	}
	return events, nil
}
