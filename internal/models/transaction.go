package models

import "time"

// PaymentStatus is the lifecycle state of a payment transaction.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Valid reports whether s is one of the known payment statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Transaction is a payment made (or attempted) by a user for a subscription type.
// Transactions are never deleted; they form the audit trail for subscriptions.
type Transaction struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	SubscriptionTypeID string        `json:"subscription_type_id"`
	Amount             int64         `json:"amount"`
	PaymentMethod      string        `json:"payment_method"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	Metadata           JSONB         `json:"metadata"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TransactionStatusEvent records one status change applied to a transaction
// together with the subscription outcome it produced.
type TransactionStatusEvent struct {
	ID             int64         `json:"id"`
	TransactionID  string        `json:"transaction_id"`
	FromStatus     PaymentStatus `json:"from_status"`
	ToStatus       PaymentStatus `json:"to_status"`
	Outcome        string        `json:"outcome"`
	SubscriptionID *string       `json:"subscription_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
