package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PortNumber53/tryout-admin/backend/internal/activation"
	"github.com/PortNumber53/tryout-admin/backend/internal/config"
	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

type stubStore struct{}

func (stubStore) CreateTransaction(ctx context.Context, t *models.Transaction) error { return nil }

func (stubStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return &models.Transaction{ID: id, PaymentStatus: models.PaymentStatusPending}, nil
}

func (stubStore) ListTransactions(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (stubStore) ListStatusEvents(ctx context.Context, transactionID string) ([]models.TransactionStatusEvent, error) {
	return nil, nil
}

func (stubStore) GetSubscriptionType(ctx context.Context, id string) (*models.SubscriptionType, error) {
	return &models.SubscriptionType{ID: id, DurationDays: 30}, nil
}

func (stubStore) CreateSubscriptionType(ctx context.Context, t *models.SubscriptionType) error {
	return nil
}

func (stubStore) ListUserSubscriptions(ctx context.Context, userID string, activeOnly bool, at time.Time) ([]models.UserSubscription, error) {
	return nil, nil
}

type stubActivator struct {
	attempts int
}

func (s *stubActivator) ActivateWithRetry(ctx context.Context, transactionID string, newStatus models.PaymentStatus, attempts int) (*activation.Result, error) {
	s.attempts = attempts
	return &activation.Result{
		Transaction: &models.Transaction{ID: transactionID, PaymentStatus: newStatus},
		Outcome:     activation.OutcomeNoOp,
	}, nil
}

func newTestServer(act *stubActivator) *Server {
	cfg := config.Config{ServerAddress: ":0", ConflictRetries: 4}
	return New(cfg, Deps{
		Transactions:      stubStore{},
		SubscriptionTypes: stubStore{},
		Subscriptions:     stubStore{},
		Activator:         act,
	})
}

func TestHealthRoute(t *testing.T) {
	server := newTestServer(&stubActivator{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestStatusRouteUsesConfiguredRetries(t *testing.T) {
	act := &stubActivator{}
	server := newTestServer(act)

	req := httptest.NewRequest(http.MethodPatch,
		"/api/transactions/5f0c2a8e-7b1d-4c3e-9a66-0d2f4b8c1e21/status",
		strings.NewReader(`{"payment_status":"cancelled"}`))
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if act.attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", act.attempts)
	}
}

func TestJobRoutesRequireWorker(t *testing.T) {
	server := newTestServer(&stubActivator{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a worker, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := config.Config{ServerAddress: ":0", CORSAllowedOrigins: []string{"https://admin.example.com"}}
	server := New(cfg, Deps{Transactions: stubStore{}, SubscriptionTypes: stubStore{}, Subscriptions: stubStore{}, Activator: &stubActivator{}})

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for unknown origin, got %q", got)
	}
}

func TestMetricsRoute(t *testing.T) {
	cfg := config.Config{ServerAddress: ":0"}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tryout_admin_up 1\n"))
	})
	server := New(cfg, Deps{Transactions: stubStore{}, SubscriptionTypes: stubStore{}, Subscriptions: stubStore{}, Activator: &stubActivator{}, Metrics: metrics})

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "tryout_admin_up") {
		t.Fatalf("expected metrics body, got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	newTestServer(&stubActivator{}).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", rr.Code)
	}
}
