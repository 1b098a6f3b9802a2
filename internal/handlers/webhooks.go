package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

// JobEnqueuer puts a job on the asynchronous queue. *worker.Worker implements it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// PaymentCallbackRequest is the body a payment provider posts when a payment
// settles.
type PaymentCallbackRequest struct {
	TransactionID string               `json:"transaction_id"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

// PaymentWebhook accepts a payment provider callback and queues the status
// change. The worker applies it, so the provider gets a fast 202 and a failed
// activation is retried from the queue.
func PaymentWebhook(queue JobEnqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("PaymentWebhook: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		if !isUUID(req.TransactionID) {
			http.Error(w, "transaction_id must be a UUID", http.StatusBadRequest)
			return
		}
		if !req.PaymentStatus.Valid() {
			http.Error(w, "payment_status must be one of pending, paid, failed, cancelled", http.StatusBadRequest)
			return
		}

		job := models.NewTransactionStatusJob(req.TransactionID, req.PaymentStatus)
		if err := queue.Enqueue(r.Context(), job); err != nil {
			log.Printf("PaymentWebhook: failed to enqueue status job for %s: %v", req.TransactionID, err)
			http.Error(w, "failed to accept callback", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": job.ID,
			"status": job.Status,
		}, "PaymentWebhook")
	}
}
