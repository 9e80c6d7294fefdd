package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/agreement"
	"github.com/driveshare/rental-booking/internal/model"
)

// ListBookings returns the caller's bookings, newest first.
func (s *BookingService) ListBookings(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	return s.Bookings.ListByUser(ctx, userID, limit, offset)
}

func (s *BookingService) GetBooking(ctx context.Context, userID uint64, bookingID string) (model.Booking, error) {
	return s.Bookings.GetForUser(ctx, bookingID, userID)
}

// BookingPhotos lists the check-in photos of a booking the caller owns.
func (s *BookingService) BookingPhotos(ctx context.Context, userID uint64, bookingID string) ([]model.BookingPhoto, error) {
	if _, err := s.Bookings.GetForUser(ctx, bookingID, userID); err != nil {
		return nil, err
	}
	return s.Photos.ListByBooking(ctx, bookingID)
}

// Agreement renders the rental agreement PDF and its file name.
func (s *BookingService) Agreement(ctx context.Context, userID uint64, bookingID string) ([]byte, string, error) {
	b, err := s.Bookings.GetForUser(ctx, bookingID, userID)
	if err != nil {
		return nil, "", err
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	photos, err := s.Photos.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, "", err
	}
	return agreement.Render(b, u, photos)
}

// CancelBooking cancels a confirmed booking before check-in.
func (s *BookingService) CancelBooking(ctx context.Context, userID uint64, bookingID string) error {
	if err := s.Bookings.Cancel(ctx, bookingID, userID); err != nil {
		return err
	}
	s.Log.Info("booking cancelled", zap.String("booking_id", bookingID), zap.Uint64("user_id", userID))
	return nil
}
