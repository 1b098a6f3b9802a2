package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return &Store{db: db}, mock
}

var transactionRowColumns = []string{
	"id", "user_id", "subscription_type_id", "amount", "payment_method",
	"payment_status", "metadata", "created_at", "updated_at",
}

var subscriptionRowColumns = []string{
	"id", "user_id", "subscription_type_id", "transaction_id",
	"started_at", "expires_at", "is_active", "created_at", "updated_at",
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error when db is nil")
	}
}

func TestGetTransactionSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(transactionRowColumns).
		AddRow("tx-1", "u1", "s1", int64(50000), "bank_transfer", "pending", []byte(`{"note":"manual"}`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE id = $1")).WithArgs("tx-1").WillReturnRows(rows)

	tx, err := s.GetTransaction(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction returned error: %v", err)
	}
	if tx.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected pending status, got %q", tx.PaymentStatus)
	}
	if tx.Metadata["note"] != "manual" {
		t.Fatalf("unexpected metadata: %v", tx.Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(transactionRowColumns))

	_, err := s.GetTransaction(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSubscriptionUniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO user_subscriptions")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Message: "duplicate key value violates unique constraint"})

	_, err := s.CreateSubscription(context.Background(), &models.UserSubscription{
		UserID: "u1", SubscriptionTypeID: "s1", TransactionID: "tx-1",
		StartedAt: now, ExpiresAt: now.AddDate(0, 0, 30), IsActive: true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	boom := errors.New("boom")
	if got := classify(boom); got != boom {
		t.Fatalf("expected unchanged error, got %v", got)
	}

	fk := &pq.Error{Code: "23503"}
	if errors.Is(classify(fk), ErrConflict) {
		t.Fatal("foreign key violation must not be reported as a conflict")
	}

	if !errors.Is(classify(&pq.Error{Code: pqSerializationFailure}), ErrConflict) {
		t.Fatal("serialization failure should be a conflict")
	}
}

func TestInTxCommitsAndSharesTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE id = $1 FOR UPDATE")).
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow("tx-1", "u1", "s1", int64(50000), "cash", "pending", []byte(`{}`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE transactions")).
		WithArgs("tx-1", models.PaymentStatusFailed).
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow("tx-1", "u1", "s1", int64(50000), "cash", "failed", []byte(`{}`), now, now))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.GetTransactionForUpdate(ctx, "tx-1"); err != nil {
			return err
		}
		_, err := s.UpdateTransactionStatus(ctx, "tx-1", models.PaymentStatusFailed)
		return err
	})
	if err != nil {
		t.Fatalf("InTx returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_subscriptions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.DeactivateExpiredSubscriptions(ctx, "u1", "s1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxCommitSerializationFailureIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: pqSerializationFailure})

	err := s.InTx(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindActiveSubscriptionsLocksRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(subscriptionRowColumns).
		AddRow("sub-1", "u1", "s1", "tx-1", now.AddDate(0, 0, -10), now.AddDate(0, 0, 20), true, now, now)
	mock.ExpectQuery(`FROM user_subscriptions\s+WHERE user_id = \$1 AND subscription_type_id = \$2\s+AND is_active AND expires_at > \$3\s+ORDER BY expires_at DESC\s+FOR UPDATE`).
		WithArgs("u1", "s1", now).
		WillReturnRows(rows)

	subs, err := s.FindActiveSubscriptions(context.Background(), "u1", "s1", now)
	if err != nil {
		t.Fatalf("FindActiveSubscriptions returned error: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-1" {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListTransactionsClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("", defaultPageSize).
		WillReturnError(errors.New("boom"))

	if _, err := s.ListTransactions(context.Background(), "", 0); err == nil {
		t.Fatal("expected error when query fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpireSubscriptionsReportsRowCount(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE is_active AND expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.ExpireSubscriptions(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireSubscriptions returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestClaimNextJobEmptyQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	js, err := NewJobStore(db)
	if err != nil {
		t.Fatalf("NewJobStore returned error: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("worker-1").
		WillReturnError(sql.ErrNoRows)

	job, err := js.ClaimNextJob(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ClaimNextJob returned error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %+v", job)
	}
}

func TestCancelJobNotCancellable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	js, _ := NewJobStore(db)
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'cancelled'")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := js.CancelJob(context.Background(), 9); !errors.Is(err, ErrJobNotCancellable) {
		t.Fatalf("expected ErrJobNotCancellable, got %v", err)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	js, _ := NewJobStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ($1::text = '' OR status = $1::text)")).
		WithArgs("failed", 200).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	jobs, err := js.ListJobs(context.Background(), models.JobStatusFailed, 0)
	if err != nil {
		t.Fatalf("ListJobs returned error: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
