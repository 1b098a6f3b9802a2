package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

// JobStore defines the interface for job storage operations
type JobStore interface {
	GetByID(ctx context.Context, id int64) (*models.Job, error)
	GetStats(ctx context.Context) (*models.JobStats, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)
}

// JobCanceller cancels queued jobs. *worker.Worker implements it.
type JobCanceller interface {
	CancelJob(ctx context.Context, id int64) error
}

// GetJob retrieves a job by ID
func GetJob(jobStore JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := jobStore.GetByID(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrJobNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			log.Printf("GetJob: failed to get job %d: %v", jobID, err)
			http.Error(w, "failed to retrieve job", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, job, "GetJob")
	}
}

// CancelJob cancels a pending or failed job
func CancelJob(jobStore JobStore, canceller JobCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		if _, err := jobStore.GetByID(r.Context(), jobID); err != nil {
			if errors.Is(err, store.ErrJobNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			log.Printf("CancelJob: failed to get job %d: %v", jobID, err)
			http.Error(w, "failed to cancel job", http.StatusInternalServerError)
			return
		}

		if err := canceller.CancelJob(r.Context(), jobID); err != nil {
			if errors.Is(err, store.ErrJobNotCancellable) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			log.Printf("CancelJob: failed to cancel job %d: %v", jobID, err)
			http.Error(w, "failed to cancel job", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":      jobID,
			"message": "Job cancelled successfully",
		}, "CancelJob")
	}
}

// GetJobStats returns statistics about the job queue
func GetJobStats(jobStore JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := jobStore.GetStats(r.Context())
		if err != nil {
			log.Printf("GetJobStats: failed to get stats: %v", err)
			http.Error(w, "failed to retrieve job statistics", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats, "GetJobStats")
	}
}

// ListJobs returns recent jobs, optionally filtered by ?status=.
func ListJobs(jobStore JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}

		status := models.JobStatus(r.URL.Query().Get("status"))
		switch status {
		case "", models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted,
			models.JobStatusFailed, models.JobStatusCancelled:
		default:
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}

		jobs, err := jobStore.ListJobs(r.Context(), status, limit)
		if err != nil {
			log.Printf("ListJobs: failed to list jobs: %v", err)
			http.Error(w, "failed to retrieve jobs", http.StatusInternalServerError)
			return
		}
		if jobs == nil {
			jobs = []*models.Job{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":  jobs,
			"count": len(jobs),
		}, "ListJobs")
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || jobID <= 0 {
		http.Error(w, "invalid job ID", http.StatusBadRequest)
		return 0, false
	}
	return jobID, true
}
