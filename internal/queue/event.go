// Package queue defines the payloads published to the message broker and
// the consumer that records them.
package queue

// Queue names. Each event kind has its own durable queue.
const (
	BookingCreatedQueue   = "booking.created"
	CheckinCompletedQueue = "booking.checkin_completed"
)

// BookingCreatedEvent is published once payment is confirmed and the
// booking row exists. It carries enough to log or notify without a
// database lookup.
type BookingCreatedEvent struct {
	BookingID      string  `json:"booking_id"`
	DraftID        string  `json:"draft_id"`
	UserID         uint64  `json:"user_id"`
	VehicleID      string  `json:"vehicle_id"`
	VehicleName    string  `json:"vehicle_name"`
	PickupLocation string  `json:"pickup_location"`
	PickupDate     string  `json:"pickup_date"`
	ReturnDate     string  `json:"return_date"`
	RentalDays     int     `json:"rental_days"`
	TotalPrice     float64 `json:"total_price"`
	CreatedAt      string  `json:"created_at"`
}

// CheckinCompletedEvent is published when the agreement is signed and the
// rental becomes active.
type CheckinCompletedEvent struct {
	BookingID   string `json:"booking_id"`
	UserID      uint64 `json:"user_id"`
	FuelLevel   int    `json:"fuel_level"`
	Mileage     int    `json:"mileage"`
	PhotoCount  int    `json:"photo_count"`
	CompletedAt string `json:"completed_at"`
}
