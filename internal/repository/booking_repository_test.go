package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/workflow"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sampleNewBooking() workflow.NewBooking {
	return workflow.NewBooking{
		DraftID: "draft-1",
		UserID:  42,
		Draft: workflow.Draft{
			VehicleID:      "v1",
			VehicleName:    "Corolla",
			VehicleType:    "sedan",
			PricePerDay:    50,
			PickupLocation: "Airport",
			PickupDate:     "2025-06-01",
			ReturnDate:     "2025-06-04",
			DriversLicense: "https://cdn.example.com/license.jpg",
		},
		RentalDays: 3,
		TotalPrice: 150,
	}
}

func TestCreateBookingInsertsOnce(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bookings WHERE draft_id = \? FOR UPDATE`).
		WithArgs("draft-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bookings`).
		WithArgs(sqlmock.AnyArg(), "draft-1", uint64(42), "v1", "Corolla", "sedan",
			"Airport", "2025-06-01", "2025-06-04", 3, 50.0, 150.0, model.BookingConfirmed,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := repo.CreateBooking(context.Background(), sampleNewBooking())
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingReturnsExistingForDraft(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bookings WHERE draft_id = \? FOR UPDATE`).
		WithArgs("draft-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-id"))
	mock.ExpectCommit()

	id, err := repo.CreateBooking(context.Background(), sampleNewBooking())
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingRollsBackOnInsertError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM bookings`).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key"})
	mock.ExpectRollback()

	_, err := repo.CreateBooking(context.Background(), sampleNewBooking())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingRejectsBadDates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	nb := sampleNewBooking()
	nb.Draft.ReturnDate = "someday"
	_, err := repo.CreateBooking(context.Background(), nb)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckin(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings\s+SET checkin_fuel_level`).
		WithArgs(80, 12345, "https://cdn.example.com/sig.png", at, model.BookingActive,
			"b-1", model.BookingConfirmed, model.BookingActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CompleteCheckin(context.Background(), "b-1", workflow.Checkin{
		FuelLevel: 80, Mileage: 12345, SignatureRef: "https://cdn.example.com/sig.png", CompletedAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckinUnknownBooking(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings WHERE id = \?`).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CompleteCheckin(context.Background(), "missing", workflow.Checkin{CompletedAt: time.Now()})
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckinRetryWithSameValues(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings WHERE id = \?`).WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(model.BookingActive))
	mock.ExpectCommit()

	err := repo.CompleteCheckin(context.Background(), "b-1", workflow.Checkin{CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteCheckinCancelledBooking(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM bookings WHERE id = \?`).WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(model.BookingCancelled))
	mock.ExpectRollback()

	err := repo.CompleteCheckin(context.Background(), "b-1", workflow.Checkin{CompletedAt: time.Now()})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var bookingCols = []string{"id", "draft_id", "user_id", "vehicle_id", "vehicle_name", "vehicle_type",
	"pickup_location", "pickup_date", "return_date", "rental_days", "price_per_day", "total_price",
	"status", "drivers_license_url", "id_document_url", "checkin_fuel_level", "checkin_mileage",
	"checkin_signature", "checkin_completed_at", "created_at", "updated_at"}

func bookingRow(rows *sqlmock.Rows, id string, userID uint64, status string) *sqlmock.Rows {
	now := time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(id, "draft-"+id, userID, "v1", "Corolla", "sedan", "Airport",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		3, 50.0, 150.0, status, "https://cdn.example.com/l.jpg", nil, int64(80), nil, nil, nil, now, now)
}

func TestGetForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \?`).
		WithArgs("b-1").
		WillReturnRows(bookingRow(sqlmock.NewRows(bookingCols), "b-1", 42, model.BookingConfirmed))

	b, err := repo.GetForUser(context.Background(), "b-1", 42)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", b.PickupDate)
	assert.Equal(t, "2025-06-04", b.ReturnDate)
	assert.Equal(t, 150.0, b.TotalPrice)
	require.NotNil(t, b.CheckinFuelLevel)
	assert.Equal(t, 80, *b.CheckinFuelLevel)
	assert.Nil(t, b.CheckinMileage)
	assert.Nil(t, b.CheckinCompletedAt)
	assert.Empty(t, b.IDDocumentURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUserOwnership(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \?`).
		WillReturnRows(bookingRow(sqlmock.NewRows(bookingCols), "b-1", 7, model.BookingConfirmed))
	_, err := repo.GetForUser(context.Background(), "b-1", 42)
	assert.ErrorIs(t, err, ErrForbidden)

	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id = \?`).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetForUser(context.Background(), "nope", 42)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestListByUserClampsLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db)

	rows := sqlmock.NewRows(bookingCols)
	bookingRow(rows, "b-2", 42, model.BookingActive)
	bookingRow(rows, "b-1", 42, model.BookingConfirmed)
	mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE user_id = \?`).
		WithArgs(uint64(42), 20, 0).
		WillReturnRows(rows)

	list, err := repo.ListByUser(context.Background(), 42, 500, -1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b-2", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel(t *testing.T) {
	cases := []struct {
		name    string
		owner   uint64
		status  string
		wantErr error
	}{
		{"confirmed", 42, model.BookingConfirmed, nil},
		{"active", 42, model.BookingActive, ErrConflict},
		{"someone else", 7, model.BookingConfirmed, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewBookingRepo(db)

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT user_id, status FROM bookings WHERE id = \? FOR UPDATE`).
				WithArgs("b-1").
				WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(tc.owner, tc.status))
			if tc.wantErr == nil {
				mock.ExpectExec(`UPDATE bookings SET status = \? WHERE id = \?`).
					WithArgs(model.BookingCancelled, "b-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := repo.Cancel(context.Background(), "b-1", 42)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.wantErr))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
