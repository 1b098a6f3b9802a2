package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

// Expirer flags subscriptions whose window has ended as inactive.
type Expirer interface {
	ExpireSubscriptions(ctx context.Context, at time.Time) (int64, error)
}

// SweepRecorder is told how many subscriptions each sweep expired.
type SweepRecorder interface {
	ObserveExpirySweep(expired int64)
}

// RegisterExpiryJobs registers the subscription expiry sweep handler. rec may
// be nil.
func RegisterExpiryJobs(w *Worker, expirer Expirer, rec SweepRecorder) {
	w.RegisterHandler(models.JobTypeSubscriptionExpiry, expirySweepHandler(expirer, rec, time.Now))

	log.Printf("[worker] Registered maintenance job handlers: %s", models.JobTypeSubscriptionExpiry)
}

func expirySweepHandler(expirer Expirer, rec SweepRecorder, now func() time.Time) Handler {
	return func(ctx context.Context, job *models.Job) error {
		expired, err := expirer.ExpireSubscriptions(ctx, now().UTC())
		if err != nil {
			return fmt.Errorf("expire subscriptions: %w", err)
		}
		if rec != nil {
			rec.ObserveExpirySweep(expired)
		}
		if expired > 0 {
			log.Printf("[expiry-sweep] job %d: %d subscriptions expired", job.ID, expired)
		}
		return nil
	}
}
