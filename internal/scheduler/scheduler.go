// Package scheduler enqueues periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
)

// Enqueuer puts a job on the queue. *worker.Worker implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Scheduler manages the cron entries.
type Scheduler struct {
	cron           *cron.Cron
	queue          Enqueuer
	expirySchedule string
}

// New creates a scheduler that enqueues an expiry sweep on expirySchedule
// (standard five-field cron syntax or descriptors such as "@hourly").
func New(queue Enqueuer, expirySchedule string) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron:           cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		queue:          queue,
		expirySchedule: expirySchedule,
	}
}

// Start registers the entries and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.expirySchedule, s.enqueueExpirySweep); err != nil {
		return fmt.Errorf("scheduler: schedule expiry sweep %q: %w", s.expirySchedule, err)
	}
	log.Printf("[scheduler] expiry sweep scheduled: %s", s.expirySchedule)

	s.cron.Start()
	return nil
}

// Stop stops the cron loop. The returned context is done once running
// entries have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, models.NewSubscriptionExpiryJob()); err != nil {
		log.Printf("[scheduler] failed to enqueue expiry sweep: %v", err)
	}
}
