package workflow

import (
	"context"
	"time"
)

// Principal is the authenticated user driving a draft.
type Principal struct {
	ID    uint64
	Email string
	Name  string
	Role  string
}

// IdentityProvider yields the current principal. Entering the workflow
// requires one.
type IdentityProvider interface {
	Current(ctx context.Context) (Principal, bool)
	SignOut(ctx context.Context) error
}

// NewBooking is what the record store needs to materialize a draft.
// DraftID makes the create idempotent on the store side as well.
type NewBooking struct {
	DraftID    string
	UserID     uint64
	Draft      Draft
	RentalDays int
	TotalPrice float64
}

// Checkin carries the check-in completion written at the signature stage.
type Checkin struct {
	FuelLevel    int
	Mileage      int
	SignatureRef string
	CompletedAt  time.Time
}

// RecordStore is the durable booking ledger. Both calls are all-or-nothing.
type RecordStore interface {
	CreateBooking(ctx context.Context, nb NewBooking) (string, error)
	CompleteCheckin(ctx context.Context, bookingID string, c Checkin) error
}

// EventKind identifies a workflow event.
type EventKind string

const (
	EventBookingCreated   EventKind = "booking.created"
	EventCheckinCompleted EventKind = "booking.checkin_completed"
)

// Event is emitted after an external write succeeded.
type Event struct {
	Kind      EventKind
	DraftID   string
	BookingID string
	UserID    uint64
	Draft     Draft
	At        time.Time
}

// Notifier receives workflow events. Failures never fail a transition.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
