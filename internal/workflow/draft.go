package workflow

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RequiredPhotoCount is how many check-in photos unlock the photo stage.
const RequiredPhotoCount = 10

// RequiredPhotos lists the inspection shots in display order. Progress is
// measured by how many photos were uploaded, not by which labels were used,
// so a duplicate label still counts towards completion.
var RequiredPhotos = [RequiredPhotoCount]string{
	"Front exterior",
	"Rear exterior",
	"Left side",
	"Right side",
	"Dashboard",
	"Interior front seats",
	"Interior rear seats",
	"Front tires",
	"Rear tires",
	"Fuel gauge",
}

// MaxFuelLevel is the upper bound of the fuel gauge reading (percent).
const MaxFuelLevel = 100

// Draft is the in-memory booking that a user builds up while walking
// through the stages. It only becomes durable once the payment stage
// creates a booking record.
type Draft struct {
	VehicleID        string   `json:"vehicle_id"`
	VehicleName      string   `json:"vehicle_name"`
	VehicleType      string   `json:"vehicle_type"`
	PricePerDay      float64  `json:"price_per_day"`
	PickupLocation   string   `json:"pickup_location"`
	PickupDate       string   `json:"pickup_date"`
	ReturnDate       string   `json:"return_date"`
	DriversLicense   string   `json:"drivers_license"`
	IDDocument       string   `json:"id_document"`
	PaymentConfirmed bool     `json:"payment_confirmed"`
	BookingID        string   `json:"booking_id"`
	CheckinPhotos    []string `json:"checkin_photos"`
	CheckinFuelLevel int      `json:"checkin_fuel_level"`
	CheckinMileage   int      `json:"checkin_mileage"`
	CheckinSignature string   `json:"checkin_signature"`
}

// RentalDays is ceil((return - pickup) / 24h), never less than one. Missing
// or unparseable dates also yield one day.
func (d Draft) RentalDays() int {
	pickup, err := ParseDate(d.PickupDate)
	if err != nil {
		return 1
	}
	ret, err := ParseDate(d.ReturnDate)
	if err != nil {
		return 1
	}
	days := int(math.Ceil(ret.Sub(pickup).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// TotalPrice is the daily price multiplied by the rental days.
func (d Draft) TotalPrice() float64 {
	return d.PricePerDay * float64(d.RentalDays())
}

// clone returns a copy that shares no slices with d.
func (d Draft) clone() Draft {
	out := d
	if d.CheckinPhotos != nil {
		out.CheckinPhotos = append([]string(nil), d.CheckinPhotos...)
	}
	return out
}

// ParseDate accepts a calendar date (2006-01-02) or a full RFC 3339
// timestamp and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// SeedFromQuery builds the initial draft from the catalog search query
// (vehicleId, vehicleName, vehicleType, price, location, pickup, return).
// Missing values stay empty and fail the first gate on their own.
func SeedFromQuery(q url.Values) Draft {
	price, err := strconv.ParseFloat(strings.TrimSpace(q.Get("price")), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		price = 0
	}
	return Draft{
		VehicleID:      q.Get("vehicleId"),
		VehicleName:    q.Get("vehicleName"),
		VehicleType:    q.Get("vehicleType"),
		PricePerDay:    price,
		PickupLocation: q.Get("location"),
		PickupDate:     q.Get("pickup"),
		ReturnDate:     q.Get("return"),
		CheckinPhotos:  []string{},
	}
}

// DocumentKind names one of the two identity documents.
type DocumentKind string

const (
	DocumentLicense DocumentKind = "license"
	DocumentID      DocumentKind = "id"
)

// ParseDocumentKind maps a path segment onto a DocumentKind.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentLicense:
		return DocumentLicense, true
	case DocumentID:
		return DocumentID, true
	}
	return "", false
}

// DraftUpdate is a partial draft. Nil fields are left untouched; set
// fields overwrite the draft (later writes win). The booking id is not
// part of it: only a successful create can assign one.
type DraftUpdate struct {
	VehicleID        *string   `json:"vehicle_id,omitempty"`
	VehicleName      *string   `json:"vehicle_name,omitempty"`
	VehicleType      *string   `json:"vehicle_type,omitempty"`
	PricePerDay      *float64  `json:"price_per_day,omitempty"`
	PickupLocation   *string   `json:"pickup_location,omitempty"`
	PickupDate       *string   `json:"pickup_date,omitempty"`
	ReturnDate       *string   `json:"return_date,omitempty"`
	DriversLicense   *string   `json:"drivers_license,omitempty"`
	IDDocument       *string   `json:"id_document,omitempty"`
	PaymentConfirmed *bool     `json:"payment_confirmed,omitempty"`
	CheckinPhotos    *[]string `json:"checkin_photos,omitempty"`
	CheckinFuelLevel *int      `json:"checkin_fuel_level,omitempty"`
	CheckinMileage   *int      `json:"checkin_mileage,omitempty"`
	CheckinSignature *string   `json:"checkin_signature,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u DraftUpdate) Empty() bool { return u == (DraftUpdate{}) }

// check enforces the draft's data invariants against the current state.
// It does not look at stage gates.
func (u DraftUpdate) check(d Draft) *ValidationError {
	switch {
	case u.PricePerDay != nil && (*u.PricePerDay < 0 || math.IsNaN(*u.PricePerDay) || math.IsInf(*u.PricePerDay, 0)):
		return fieldError("price_per_day", "Price per day must be a non-negative amount.")
	case u.CheckinFuelLevel != nil && (*u.CheckinFuelLevel < 0 || *u.CheckinFuelLevel > MaxFuelLevel):
		return fieldError("checkin_fuel_level", "Fuel level must be between 0 and 100.")
	case u.CheckinMileage != nil && *u.CheckinMileage < 0:
		return fieldError("checkin_mileage", "Mileage cannot be negative.")
	case u.CheckinPhotos != nil && len(*u.CheckinPhotos) > RequiredPhotoCount:
		return fieldError("checkin_photos", "All required photos have already been uploaded.")
	case u.PaymentConfirmed != nil && !*u.PaymentConfirmed && d.BookingID != "":
		return fieldError("payment_confirmed", "Payment cannot be withdrawn once the booking exists.")
	}
	return nil
}

// apply merges u into d. It assumes check passed.
func (u DraftUpdate) apply(d *Draft) {
	setString(&d.VehicleID, u.VehicleID)
	setString(&d.VehicleName, u.VehicleName)
	setString(&d.VehicleType, u.VehicleType)
	setString(&d.PickupLocation, u.PickupLocation)
	setString(&d.PickupDate, u.PickupDate)
	setString(&d.ReturnDate, u.ReturnDate)
	setString(&d.DriversLicense, u.DriversLicense)
	setString(&d.IDDocument, u.IDDocument)
	setString(&d.CheckinSignature, u.CheckinSignature)
	if u.PricePerDay != nil {
		d.PricePerDay = *u.PricePerDay
	}
	if u.PaymentConfirmed != nil {
		d.PaymentConfirmed = *u.PaymentConfirmed
	}
	if u.CheckinPhotos != nil {
		d.CheckinPhotos = append([]string{}, (*u.CheckinPhotos)...)
	}
	if u.CheckinFuelLevel != nil {
		d.CheckinFuelLevel = *u.CheckinFuelLevel
	}
	if u.CheckinMileage != nil {
		d.CheckinMileage = *u.CheckinMileage
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
