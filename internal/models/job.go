package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a queued job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobPriority controls claim order; higher priorities are claimed first.
type JobPriority string

const (
	JobPriorityLow      JobPriority = "low"
	JobPriorityNormal   JobPriority = "normal"
	JobPriorityHigh     JobPriority = "high"
	JobPriorityCritical JobPriority = "critical"
)

// JobTypeTransactionStatus applies a payment status reported by a payment
// provider callback to a transaction.
const JobTypeTransactionStatus = "transaction_status"

// Job is an asynchronous unit of work stored in the jobs table.
type Job struct {
	ID           int64       `json:"id"`
	JobType      string      `json:"job_type"`
	Payload      JSONB       `json:"payload"`
	Status       JobStatus   `json:"status"`
	Priority     JobPriority `json:"priority"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"max_attempts"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	LastError    *string     `json:"last_error,omitempty"`
	RetryAfter   *time.Time  `json:"retry_after,omitempty"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	WorkerID     *string     `json:"worker_id,omitempty"`
}

// JobTypeSubscriptionExpiry flags subscriptions whose window has ended as
// inactive.
const JobTypeSubscriptionExpiry = "subscription_expiry_sweep"

// NewSubscriptionExpiryJob builds an expiry sweep job.
func NewSubscriptionExpiryJob() *Job {
	return &Job{
		JobType:     JobTypeSubscriptionExpiry,
		Payload:     JSONB{},
		Priority:    JobPriorityLow,
		MaxAttempts: 3,
	}
}

// NewTransactionStatusJob builds a job that moves transactionID to status.
func NewTransactionStatusJob(transactionID string, status PaymentStatus) *Job {
	return &Job{
		JobType: JobTypeTransactionStatus,
		Payload: JSONB{
			"transaction_id": transactionID,
			"payment_status": string(status),
		},
		Priority:    JobPriorityHigh,
		MaxAttempts: 5,
	}
}

// TransactionStatusPayload extracts the transaction id and target status from
// a transaction_status job.
func (j *Job) TransactionStatusPayload() (string, PaymentStatus, error) {
	id, _ := j.Payload["transaction_id"].(string)
	status, _ := j.Payload["payment_status"].(string)
	if id == "" {
		return "", "", fmt.Errorf("missing transaction_id in payload")
	}
	if !PaymentStatus(status).Valid() {
		return "", "", fmt.Errorf("invalid payment_status %q in payload", status)
	}
	return id, PaymentStatus(status), nil
}

// JSONB maps a PostgreSQL jsonb column to an open attribute map.
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// JobStats holds counts of jobs per status
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// IsValid checks the job can be enqueued, defaulting the priority.
func (j *Job) IsValid() error {
	if j.JobType == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if j.Priority == "" {
		j.Priority = JobPriorityNormal
	}
	return nil
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts && j.Status != JobStatusCancelled
}
