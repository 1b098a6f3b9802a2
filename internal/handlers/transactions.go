package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PortNumber53/tryout-admin/backend/internal/activation"
	"github.com/PortNumber53/tryout-admin/backend/internal/models"
	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

const defaultTransactionPageSize = 50

// TransactionStore defines the transaction storage used by the admin endpoints.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error)
	ListStatusEvents(ctx context.Context, transactionID string) ([]models.TransactionStatusEvent, error)
}

// StatusApplier changes the payment status of a transaction and activates the
// subscription it pays for. *activation.Activator implements it.
type StatusApplier interface {
	ActivateWithRetry(ctx context.Context, transactionID string, newStatus models.PaymentStatus, attempts int) (*activation.Result, error)
}

// CreateTransactionRequest is the body of POST /api/transactions.
type CreateTransactionRequest struct {
	UserID             string       `json:"user_id"`
	SubscriptionTypeID string       `json:"subscription_type_id"`
	Amount             int64        `json:"amount"`
	PaymentMethod      string       `json:"payment_method"`
	Metadata           models.JSONB `json:"metadata,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/transactions/{id}/status.
type UpdateStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// CreateTransaction records a new pending transaction entered by an admin.
func CreateTransaction(transactions TransactionStore, types SubscriptionTypeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("CreateTransaction: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		if !isUUID(req.UserID) {
			http.Error(w, "user_id must be a UUID", http.StatusBadRequest)
			return
		}
		if !isUUID(req.SubscriptionTypeID) {
			http.Error(w, "subscription_type_id must be a UUID", http.StatusBadRequest)
			return
		}
		if req.Amount < 0 {
			http.Error(w, "amount must not be negative", http.StatusBadRequest)
			return
		}
		req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
		if req.PaymentMethod == "" {
			http.Error(w, "payment_method is required", http.StatusBadRequest)
			return
		}

		if _, err := types.GetSubscriptionType(r.Context(), req.SubscriptionTypeID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "subscription type not found", http.StatusUnprocessableEntity)
				return
			}
			log.Printf("CreateTransaction: failed to load subscription type %s: %v", req.SubscriptionTypeID, err)
			http.Error(w, "failed to create transaction", http.StatusInternalServerError)
			return
		}

		tx := &models.Transaction{
			UserID:             req.UserID,
			SubscriptionTypeID: req.SubscriptionTypeID,
			Amount:             req.Amount,
			PaymentMethod:      req.PaymentMethod,
			PaymentStatus:      models.PaymentStatusPending,
			Metadata:           req.Metadata,
		}
		if err := transactions.CreateTransaction(r.Context(), tx); err != nil {
			log.Printf("CreateTransaction: failed to insert transaction: %v", err)
			http.Error(w, "failed to create transaction", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, tx, "CreateTransaction")
	}
}

// ListTransactions returns the newest transactions, optionally filtered by status.
func ListTransactions(transactions TransactionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultTransactionPageSize
		if override := r.URL.Query().Get("limit"); override != "" {
			if parsed, err := strconv.Atoi(override); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		status := models.PaymentStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}

		list, err := transactions.ListTransactions(r.Context(), status, limit)
		if err != nil {
			log.Printf("ListTransactions: failed to list transactions: %v", err)
			http.Error(w, "failed to load transactions", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []models.Transaction{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"transactions": list,
			"count":        len(list),
		}, "ListTransactions")
	}
}

// GetTransaction returns one transaction.
func GetTransaction(transactions TransactionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		tx, err := transactions.GetTransaction(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "transaction not found", http.StatusNotFound)
				return
			}
			log.Printf("GetTransaction: failed to load transaction %s: %v", id, err)
			http.Error(w, "failed to load transaction", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, tx, "GetTransaction")
	}
}

// UpdateTransactionStatus applies an admin status change. Marking a
// transaction paid activates or extends the user's subscription in the same
// database transaction.
func UpdateTransactionStatus(applier StatusApplier, conflictRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("UpdateTransactionStatus: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		if !req.PaymentStatus.Valid() {
			http.Error(w, "payment_status must be one of pending, paid, failed, cancelled", http.StatusBadRequest)
			return
		}

		result, err := applier.ActivateWithRetry(r.Context(), id, req.PaymentStatus, conflictRetries)
		if err != nil {
			writeActivationError(w, "UpdateTransactionStatus", id, err)
			return
		}

		writeJSON(w, http.StatusOK, result, "UpdateTransactionStatus")
	}
}

// TransactionEvents returns the status history of a transaction.
func TransactionEvents(transactions TransactionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if _, err := transactions.GetTransaction(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "transaction not found", http.StatusNotFound)
				return
			}
			log.Printf("TransactionEvents: failed to load transaction %s: %v", id, err)
			http.Error(w, "failed to load transaction", http.StatusInternalServerError)
			return
		}

		events, err := transactions.ListStatusEvents(r.Context(), id)
		if err != nil {
			log.Printf("TransactionEvents: failed to list events for %s: %v", id, err)
			http.Error(w, "failed to load transaction events", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []models.TransactionStatusEvent{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"events": events}, "TransactionEvents")
	}
}

// writeActivationError maps the activation error taxonomy onto HTTP statuses.
func writeActivationError(w http.ResponseWriter, name, id string, err error) {
	switch {
	case errors.Is(err, activation.ErrNotFound):
		http.Error(w, "transaction or subscription type not found", http.StatusNotFound)
	case errors.Is(err, activation.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, activation.ErrConflict):
		log.Printf("%s: conflict persisted for transaction %s: %v", name, id, err)
		http.Error(w, "concurrent update, please retry", http.StatusConflict)
	default:
		log.Printf("%s: failed to update transaction %s: %v", name, id, err)
		http.Error(w, "failed to update transaction", http.StatusInternalServerError)
	}
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// uuidParam reads a UUID path parameter, writing a 400 when it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	parsed, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return "", false
	}
	return parsed.String(), true
}
