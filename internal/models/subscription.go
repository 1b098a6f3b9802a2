package models

import "time"

// SubscriptionType is a purchasable plan. DurationDays defines how long one
// successful payment keeps a subscription active.
type SubscriptionType struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	DurationDays int       `json:"duration_days"`
	Features     JSONB     `json:"features"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WindowEnd returns the expiry of a window of DurationDays starting at from.
func (t *SubscriptionType) WindowEnd(from time.Time) time.Time {
	return from.AddDate(0, 0, t.DurationDays)
}

// UserSubscription grants a user access to a subscription type during the
// window [StartedAt, ExpiresAt). TransactionID points at the most recent
// payment that created or extended the window.
type UserSubscription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	SubscriptionTypeID string    `json:"subscription_type_id"`
	TransactionID      string    `json:"transaction_id"`
	StartedAt          time.Time `json:"started_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ActiveAt reports whether the subscription grants access at t. Expiry is
// evaluated lazily; no job flips IsActive when ExpiresAt passes.
func (s *UserSubscription) ActiveAt(t time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(t)
}
