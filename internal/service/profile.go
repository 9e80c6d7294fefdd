package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/workflow"
)

func documentLabels(kind workflow.DocumentKind) (what, label string) {
	switch kind {
	case workflow.DocumentLicense:
		return "driver's license", "drivers-license"
	case workflow.DocumentID:
		return "ID document", "id-document"
	}
	return "document", string(kind)
}

// Profile returns the caller's account with its stored documents.
func (s *BookingService) Profile(ctx context.Context, userID uint64) (model.User, error) {
	return s.Users.GetByID(ctx, userID)
}

// UploadProfileDocument stores a driver's license or ID document on the
// customer's profile. Drafts created afterwards start with it filled in.
func (s *BookingService) UploadProfileDocument(ctx context.Context, userID uint64, kind workflow.DocumentKind, data []byte) (model.User, error) {
	what, label := documentLabels(kind)
	u, err := s.upload(ctx, what, "users/"+strconv.FormatUint(userID, 10), label, data)
	if err != nil {
		return model.User{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if err := s.Users.SetDocument(cctx, userID, kind, u); err != nil {
		return model.User{}, &workflow.PersistenceError{Op: workflow.OpSaveProfile, Err: err}
	}
	s.Log.Info("profile document stored", zap.Uint64("user_id", userID), zap.String("kind", string(kind)))
	return s.Users.GetByID(ctx, userID)
}

// prefillDocuments copies the profile documents into a new draft. A lookup
// failure only costs the customer a re-upload.
func (s *BookingService) prefillDocuments(ctx context.Context, userID uint64, d *workflow.Draft) {
	if s.Users == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	u, err := s.Users.GetByID(cctx, userID)
	if err != nil {
		s.Log.Warn("profile documents not loaded", zap.Uint64("user_id", userID), zap.Error(err))
		return
	}
	d.DriversLicense, d.IDDocument = u.DriversLicenseURL, u.IDDocumentURL
}
