package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/PortNumber53/tryout-admin/backend/internal/activation"
	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

// StatusApplier applies a payment status change to a transaction.
type StatusApplier interface {
	ActivateWithRetry(ctx context.Context, transactionID string, newStatus models.PaymentStatus, attempts int) (*activation.Result, error)
}

// RegisterActivationJobs registers the transaction_status job handler.
func RegisterActivationJobs(w *Worker, applier StatusApplier, conflictRetries int) {
	w.RegisterHandler(models.JobTypeTransactionStatus, transactionStatusHandler(applier, conflictRetries))

	log.Printf("[worker] Registered activation job handlers: %s", models.JobTypeTransactionStatus)
}

// transactionStatusHandler applies the status carried in the job payload.
// Missing records and forbidden transitions fail the job at once; conflicts
// and store failures go through the normal retry schedule.
func transactionStatusHandler(applier StatusApplier, conflictRetries int) Handler {
	return func(ctx context.Context, job *models.Job) error {
		transactionID, status, err := job.TransactionStatusPayload()
		if err != nil {
			return Permanent(err)
		}

		result, err := applier.ActivateWithRetry(ctx, transactionID, status, conflictRetries)
		if err != nil {
			if errors.Is(err, activation.ErrNotFound) || errors.Is(err, activation.ErrInvalidTransition) {
				return Permanent(err)
			}
			return fmt.Errorf("apply %s to transaction %s: %w", status, transactionID, err)
		}

		subscriptionID := "-"
		if result.Subscription != nil {
			subscriptionID = result.Subscription.ID
		}
		log.Printf("[activation-job] job %d: transaction %s -> %s (%s, subscription %s)",
			job.ID, transactionID, status, result.Outcome, subscriptionID)
		return nil
	}
}
