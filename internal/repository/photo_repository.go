package repository

import (
	"context"
	"database/sql"

	"github.com/driveshare/rental-booking/internal/model"
)

// PhotoRepo stores inspection photos. Rows are only ever appended.
type PhotoRepo struct {
	db *sql.DB
}

func NewPhotoRepo(db *sql.DB) *PhotoRepo { return &PhotoRepo{db: db} }

// AppendPhoto records an uploaded check-in photo for a booking.
func (r *PhotoRepo) AppendPhoto(ctx context.Context, bookingID, photoType, url string) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO booking_photos (booking_id, phase, photo_type, photo_url) VALUES (?, ?, ?, ?)`,
		bookingID, model.PhaseCheckin, photoType, url)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ListByBooking returns the booking's photos in upload order.
func (r *PhotoRepo) ListByBooking(ctx context.Context, bookingID string) ([]model.BookingPhoto, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, booking_id, phase, photo_type, photo_url, created_at
		 FROM booking_photos WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BookingPhoto{}
	for rows.Next() {
		var p model.BookingPhoto
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Phase, &p.PhotoType, &p.PhotoURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
