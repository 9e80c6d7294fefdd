// Package agreement renders the rental agreement a customer signs at
// check-in as a PDF document.
package agreement

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/driveshare/rental-booking/internal/model"
)

const terms = "The renter agrees to return the vehicle on the return date in the " +
	"condition recorded at check-in, with a comparable fuel level. Damage not " +
	"visible on the check-in photos is charged to the renter. Payment shown " +
	"above was collected when the booking was confirmed."

// Render builds the agreement for b. The signature is printed as a
// reference to the stored image; photos are listed by label.
func Render(b model.Booking, u model.User, photos []model.BookingPhoto) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Rental Agreement", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "RENTAL AGREEMENT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Booking      : " + b.ID,
		"Customer     : " + safe(u.FullName, u.Email),
		"Email        : " + safe(u.Email, "-"),
		"Vehicle      : " + safe(b.VehicleName, "-") + " (" + safe(b.VehicleType, "-") + ")",
		"Pickup at    : " + safe(b.PickupLocation, "-"),
		"Period       : " + b.PickupDate + " to " + b.ReturnDate,
		fmt.Sprintf("Rental days  : %d", b.RentalDays),
		"Price / day  : " + money(b.PricePerDay),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Total: "+money(b.TotalPrice))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Check-in")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	if b.CheckinCompletedAt == nil {
		pdf.Cell(0, 6, "Check-in has not been completed yet.")
		pdf.Ln(8)
	} else {
		pdf.Cell(0, 6, fmt.Sprintf("Fuel level   : %d%%", deref(b.CheckinFuelLevel)))
		pdf.Ln(6)
		pdf.Cell(0, 6, fmt.Sprintf("Mileage      : %d km", deref(b.CheckinMileage)))
		pdf.Ln(6)
		pdf.Cell(0, 6, "Completed    : "+b.CheckinCompletedAt.UTC().Format("2006-01-02 15:04"))
		pdf.Ln(6)
		pdf.MultiCell(0, 6, "Signature    : "+safe(b.CheckinSignature, "-"), "", "", false)
		pdf.Ln(2)
	}

	if len(photos) > 0 {
		labels := make([]string, 0, len(photos))
		for _, p := range photos {
			labels = append(labels, safe(p.PhotoType, "photo"))
		}
		pdf.MultiCell(0, 6, fmt.Sprintf("Inspection photos (%d): %s", len(photos), strings.Join(labels, ", ")), "", "", false)
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, terms, "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), Filename(b, time.Now()), nil
}

// Filename is the download name offered for the agreement.
func Filename(b model.Booking, now time.Time) string {
	id := b.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("agreement-%s-%s.pdf", id, now.UTC().Format("20060102"))
}

func safe(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
