package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// BookingRepo is the durable booking ledger. It satisfies
// workflow.RecordStore: both writes run in a single transaction and either
// apply completely or not at all.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const dateLayout = "2006-01-02"

const bookingColumns = `id, draft_id, user_id, vehicle_id, vehicle_name, vehicle_type,
	pickup_location, pickup_date, return_date, rental_days, price_per_day, total_price,
	status, drivers_license_url, id_document_url, checkin_fuel_level, checkin_mileage,
	checkin_signature, checkin_completed_at, created_at, updated_at`

// CreateBooking inserts the booking for a draft and returns its id. A
// draft maps to at most one booking: when a row for nb.DraftID already
// exists its id is returned and nothing is written.
func (r *BookingRepo) CreateBooking(ctx context.Context, nb workflow.NewBooking) (string, error) {
	pickup, err := workflow.ParseDate(nb.Draft.PickupDate)
	if err != nil {
		return "", fmt.Errorf("pickup date %q: %w", nb.Draft.PickupDate, err)
	}
	ret, err := workflow.ParseDate(nb.Draft.ReturnDate)
	if err != nil {
		return "", fmt.Errorf("return date %q: %w", nb.Draft.ReturnDate, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM bookings WHERE draft_id = ? FOR UPDATE`, nb.DraftID).Scan(&existing)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return "", err
		}
		committed = true
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", err
	}

	id := uuid.NewString()
	const ins = `INSERT INTO bookings (id, draft_id, user_id, vehicle_id, vehicle_name, vehicle_type,
		pickup_location, pickup_date, return_date, rental_days, price_per_day, total_price, status,
		drivers_license_url, id_document_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	d := nb.Draft
	if _, err := tx.ExecContext(ctx, ins,
		id, nb.DraftID, nb.UserID, d.VehicleID, d.VehicleName, d.VehicleType,
		d.PickupLocation, pickup.Format(dateLayout), ret.Format(dateLayout),
		nb.RentalDays, d.PricePerDay, nb.TotalPrice, model.BookingConfirmed,
		nullString(d.DriversLicense), nullString(d.IDDocument),
	); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	committed = true
	return id, nil
}

// CompleteCheckin records the check-in readings and the signature and
// activates the booking. A booking that is missing, cancelled or completed
// yields ErrBookingNotFound and nothing is changed.
func (r *BookingRepo) CompleteCheckin(ctx context.Context, bookingID string, c workflow.Checkin) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE bookings
		SET checkin_fuel_level = ?, checkin_mileage = ?, checkin_signature = ?,
		    checkin_completed_at = ?, status = ?
		WHERE id = ? AND status IN (?, ?)`
	res, err := tx.ExecContext(ctx, upd,
		c.FuelLevel, c.Mileage, c.SignatureRef, c.CompletedAt.UTC(), model.BookingActive,
		bookingID, model.BookingConfirmed, model.BookingActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// a retry with identical values changes nothing
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, bookingID).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrBookingNotFound
		case err != nil:
			return err
		case status != model.BookingActive:
			return ErrConflict
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetForUser loads one booking and checks that it belongs to userID.
func (r *BookingRepo) GetForUser(ctx context.Context, bookingID string, userID uint64) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, ErrBookingNotFound
		}
		return model.Booking{}, err
	}
	if b.UserID != userID {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Cancel moves a confirmed booking to cancelled. Once check-in completed
// the rental can no longer be cancelled and ErrConflict is returned.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID string, userID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var (
		owner  uint64
		status string
	)
	err = tx.QueryRowContext(ctx, `SELECT user_id, status FROM bookings WHERE id = ? FOR UPDATE`, bookingID).
		Scan(&owner, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		return err
	}
	if owner != userID {
		return ErrForbidden
	}
	if status != model.BookingConfirmed {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, model.BookingCancelled, bookingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (model.Booking, error) {
	var (
		b                   model.Booking
		pickup, ret         time.Time
		license, idDoc, sig sql.NullString
		fuel, mileage       sql.NullInt64
		completedAt         sql.NullTime
	)
	err := s.Scan(&b.ID, &b.DraftID, &b.UserID, &b.VehicleID, &b.VehicleName, &b.VehicleType,
		&b.PickupLocation, &pickup, &ret, &b.RentalDays, &b.PricePerDay, &b.TotalPrice,
		&b.Status, &license, &idDoc, &fuel, &mileage, &sig, &completedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.PickupDate = pickup.Format(dateLayout)
	b.ReturnDate = ret.Format(dateLayout)
	b.DriversLicenseURL = license.String
	b.IDDocumentURL = idDoc.String
	b.CheckinSignature = sig.String
	if fuel.Valid {
		v := int(fuel.Int64)
		b.CheckinFuelLevel = &v
	}
	if mileage.Valid {
		v := int(mileage.Int64)
		b.CheckinMileage = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		b.CheckinCompletedAt = &t
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
