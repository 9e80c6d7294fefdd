package model

import "time"

// Booking status values.
const (
	BookingConfirmed = "confirmed" // payment taken, check-in pending
	BookingActive    = "active"    // check-in completed, rental running
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// Booking is a durable rental record as stored in the `bookings` table.
// It is created once payment is confirmed and updated when the check-in
// is signed. The checkout columns exist in the schema but are not written
// by this service.
//
// Fields:
//  ID                 – uuid primary key.
//  DraftID            – draft the booking was created from (unique).
//  UserID             – customer who booked.
//  PickupDate/ReturnDate – calendar dates, YYYY-MM-DD.
//  RentalDays         – ceil((return - pickup) / 24h), at least 1.
//  PricePerDay/TotalPrice – decimal amounts.
//  Checkin*           – recorded at the signature step; nil until then.
type Booking struct {
	ID                 string     `json:"id"`
	DraftID            string     `json:"draft_id"`
	UserID             uint64     `json:"user_id"`
	VehicleID          string     `json:"vehicle_id"`
	VehicleName        string     `json:"vehicle_name"`
	VehicleType        string     `json:"vehicle_type"`
	PickupLocation     string     `json:"pickup_location"`
	PickupDate         string     `json:"pickup_date"`
	ReturnDate         string     `json:"return_date"`
	RentalDays         int        `json:"rental_days"`
	PricePerDay        float64    `json:"price_per_day"`
	TotalPrice         float64    `json:"total_price"`
	Status             string     `json:"status"`
	DriversLicenseURL  string     `json:"drivers_license_url,omitempty"`
	IDDocumentURL      string     `json:"id_document_url,omitempty"`
	CheckinFuelLevel   *int       `json:"checkin_fuel_level,omitempty"`
	CheckinMileage     *int       `json:"checkin_mileage,omitempty"`
	CheckinSignature   string     `json:"checkin_signature,omitempty"`
	CheckinCompletedAt *time.Time `json:"checkin_completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Photo phases.
const (
	PhaseCheckin = "checkin"
)

// BookingPhoto is one row of `booking_photos`: an inspection picture taken
// at check-in. Photos are append-only.
type BookingPhoto struct {
	ID        uint64    `json:"id"`
	BookingID string    `json:"booking_id"`
	Phase     string    `json:"phase"`
	PhotoType string    `json:"photo_type"`
	PhotoURL  string    `json:"photo_url"`
	CreatedAt time.Time `json:"created_at"`
}
