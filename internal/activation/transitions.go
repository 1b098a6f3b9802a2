package activation

import "github.com/PortNumber53/tryout-admin/backend/internal/models"

// Transition is a change of payment status.
type Transition struct {
	From models.PaymentStatus
	To   models.PaymentStatus
}

// transitions lists every permitted status change. Moves from a state to
// itself are permitted and never mutate anything.
var transitions = map[Transition]bool{
	{models.PaymentStatusPending, models.PaymentStatusPending}:     true,
	{models.PaymentStatusPending, models.PaymentStatusPaid}:        true, // activation
	{models.PaymentStatusPending, models.PaymentStatusFailed}:      true,
	{models.PaymentStatusPending, models.PaymentStatusCancelled}:   true,
	{models.PaymentStatusPaid, models.PaymentStatusPaid}:           true,
	{models.PaymentStatusFailed, models.PaymentStatusFailed}:       true,
	{models.PaymentStatusCancelled, models.PaymentStatusCancelled}: true,
}

// CanTransition reports whether a transaction may move from one status to
// another. paid, failed and cancelled are terminal.
func CanTransition(from, to models.PaymentStatus) bool {
	return transitions[Transition{from, to}]
}

// activates reports whether the transition creates or extends a subscription.
func activates(from, to models.PaymentStatus) bool {
	return from != models.PaymentStatusPaid && to == models.PaymentStatusPaid
}
