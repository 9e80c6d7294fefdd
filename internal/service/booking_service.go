// Package service connects the HTTP handlers to the booking workflow. Each
// call loads the draft from the session store, rebuilds its controller,
// runs one operation under the per-draft lock and saves the result.
package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/repository"
	"github.com/driveshare/rental-booking/internal/session"
	"github.com/driveshare/rental-booking/internal/storage"
	"github.com/driveshare/rental-booking/internal/workflow"
)

// BookingLedger is the durable booking table as the service uses it.
type BookingLedger interface {
	workflow.RecordStore
	GetForUser(ctx context.Context, bookingID string, userID uint64) (model.Booking, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error)
	Cancel(ctx context.Context, bookingID string, userID uint64) error
}

// PhotoLog is the append-only check-in photo table.
type PhotoLog interface {
	AppendPhoto(ctx context.Context, bookingID, photoType, url string) (uint64, error)
	ListByBooking(ctx context.Context, bookingID string) ([]model.BookingPhoto, error)
}

// UserDirectory is the users table as the service uses it: the customer
// printed on the agreement and the documents kept on the profile.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetDocument(ctx context.Context, userID uint64, kind workflow.DocumentKind, url string) error
}

// Deps wires a BookingService. Notifier and Log may be nil.
type Deps struct {
	Sessions session.Store
	Locker   session.Locker
	Bookings BookingLedger
	Photos   PhotoLog
	Users    UserDirectory
	Blobs    storage.BlobStore
	Notifier workflow.Notifier
	Log      *zap.Logger
	Timeout  time.Duration
	Now      func() time.Time
}

type BookingService struct {
	Deps
	validate *validator.Validate
}

func NewBookingService(d Deps) *BookingService {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = workflow.DefaultTimeout
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	s := &BookingService{Deps: d}
	s.validate = newValidator(s.cardExpiry)
	return s
}

func (s *BookingService) controllerOptions() workflow.Options {
	return workflow.Options{
		Records:  s.Bookings,
		Notifier: s.Notifier,
		Logger:   s.Log,
		Timeout:  s.Timeout,
		Now:      s.Now,
	}
}

// Create starts a draft seeded from the catalog query string.
func (s *BookingService) Create(ctx context.Context, userID uint64, q url.Values) (DraftView, error) {
	id := uuid.NewString()
	seed := workflow.SeedFromQuery(q)
	s.prefillDocuments(ctx, userID, &seed)
	c := workflow.NewController(id, userID, seed, s.controllerOptions())
	stage, d := c.Snapshot()
	now := s.Now()
	rec := session.Record{ID: id, UserID: userID, Stage: stage, Draft: d, CreatedAt: now, UpdatedAt: now}
	if err := s.Sessions.Save(ctx, rec); err != nil {
		return DraftView{}, &workflow.PersistenceError{Op: workflow.OpSaveDraft, Err: err}
	}
	s.Log.Info("draft created", zap.String("draft_id", id), zap.Uint64("user_id", userID))
	return newDraftView(rec), nil
}

// Get returns the draft as the client renders it.
func (s *BookingService) Get(ctx context.Context, userID uint64, id string) (DraftView, error) {
	rec, err := s.load(ctx, userID, id)
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// Patch merges a partial update into the draft.
func (s *BookingService) Patch(ctx context.Context, userID uint64, id string, u workflow.DraftUpdate) (DraftView, error) {
	rec, err := s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		return c.SubmitStageUpdate(u)
	})
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// Advance moves the draft to the next stage. Advancing past the last
// stage ends the workflow and discards the draft.
func (s *BookingService) Advance(ctx context.Context, userID uint64, id string) (DraftView, error) {
	rec, err := s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		return c.Advance(ctx)
	})
	if errors.Is(err, workflow.ErrWorkflowFinished) {
		if derr := s.Sessions.Delete(ctx, id); derr != nil {
			s.Log.Warn("finished draft not deleted", zap.String("draft_id", id), zap.Error(derr))
		}
		v := newDraftView(rec)
		v.Finished = true
		return v, nil
	}
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// Retreat moves the draft back one stage.
func (s *BookingService) Retreat(ctx context.Context, userID uint64, id string) (DraftView, error) {
	rec, err := s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		c.Retreat()
		return nil
	})
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// Discard cancels the wizard. A booking already created stays in the
// ledger and can be cancelled from the bookings list.
func (s *BookingService) Discard(ctx context.Context, userID uint64, id string) error {
	unlock, err := s.Locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := s.load(ctx, userID, id); err != nil {
		return err
	}
	return s.Sessions.Delete(ctx, id)
}

// ClearSignature removes the signature so it can be drawn again.
func (s *BookingService) ClearSignature(ctx context.Context, userID uint64, id string) (DraftView, error) {
	empty := ""
	return s.Patch(ctx, userID, id, workflow.DraftUpdate{CheckinSignature: &empty})
}

// load reads a draft and checks that userID owns it.
func (s *BookingService) load(ctx context.Context, userID uint64, id string) (session.Record, error) {
	rec, err := s.Sessions.Load(ctx, id)
	if err != nil {
		return session.Record{}, err
	}
	if rec.UserID != userID {
		return session.Record{}, repository.ErrForbidden
	}
	return rec, nil
}

// withController runs fn against the draft under its lock. The record is
// saved only when fn succeeds; on failure the record is returned as it
// was loaded.
func (s *BookingService) withController(ctx context.Context, userID uint64, id string, fn func(*workflow.Controller) error) (session.Record, error) {
	unlock, err := s.Locker.Lock(ctx, id)
	if err != nil {
		return session.Record{}, err
	}
	defer unlock()

	rec, err := s.load(ctx, userID, id)
	if err != nil {
		return session.Record{}, err
	}
	c, err := workflow.Restore(rec.ID, rec.UserID, rec.Stage, rec.Draft, s.controllerOptions())
	if err != nil {
		return session.Record{}, err
	}
	if err := fn(c); err != nil {
		return rec, err
	}
	rec.Stage, rec.Draft = c.Snapshot()
	rec.UpdatedAt = s.Now()
	if err := s.Sessions.Save(ctx, rec); err != nil {
		return rec, &workflow.PersistenceError{Op: workflow.OpSaveDraft, Err: err}
	}
	return rec, nil
}

// upload sniffs data and writes it to the blob store under owner/label.
func (s *BookingService) upload(ctx context.Context, what, owner, label string, data []byte) (string, error) {
	ct, ext, err := storage.Sniff(data)
	if err != nil {
		return "", &workflow.StorageError{Op: what, Err: err}
	}
	if s.Blobs == nil {
		return "", &workflow.StorageError{Op: what, Err: errors.New("blob store not configured")}
	}
	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	u, err := s.Blobs.Upload(cctx, storage.ObjectKey(owner, label, ext, s.Now()), ct, data)
	if err != nil {
		s.Log.Warn("blob upload failed", zap.String("what", what), zap.String("owner", owner), zap.Error(err))
		return "", &workflow.StorageError{Op: what, Err: err}
	}
	return u, nil
}

// UploadDocument stores a driver's license or ID document and records its
// URL on the draft.
func (s *BookingService) UploadDocument(ctx context.Context, userID uint64, id string, kind workflow.DocumentKind, data []byte) (DraftView, error) {
	if _, err := s.load(ctx, userID, id); err != nil {
		return DraftView{}, err
	}
	what, label := documentLabels(kind)
	u, err := s.upload(ctx, what, "drafts/"+id, label, data)
	if err != nil {
		return DraftView{}, err
	}
	rec, err := s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		return c.SetDocument(kind, u)
	})
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// UploadPhoto stores one check-in photo, appends it to the booking's
// photo log and then to the draft. photoType defaults to the next label
// of the checklist.
func (s *BookingService) UploadPhoto(ctx context.Context, userID uint64, id, photoType string, data []byte) (DraftView, error) {
	rec, err := s.load(ctx, userID, id)
	if err != nil {
		return DraftView{}, err
	}
	pre, err := workflow.Restore(rec.ID, rec.UserID, rec.Stage, rec.Draft, s.controllerOptions())
	if err != nil {
		return DraftView{}, err
	}
	if err := pre.PhotoSlotAvailable(); err != nil {
		return DraftView{}, err
	}
	photoType = strings.TrimSpace(photoType)
	if photoType == "" {
		photoType = workflow.RequiredPhotos[len(rec.Draft.CheckinPhotos)]
	}
	bookingID := rec.Draft.BookingID

	u, err := s.upload(ctx, "photo", "bookings/"+bookingID, photoType, data)
	if err != nil {
		return DraftView{}, err
	}

	rec, err = s.withController(ctx, userID, id, func(c *workflow.Controller) error {
		// another upload may have filled the last slot meanwhile
		if err := c.PhotoSlotAvailable(); err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, s.Timeout)
		defer cancel()
		if _, err := s.Photos.AppendPhoto(cctx, bookingID, photoType, u); err != nil {
			return &workflow.PersistenceError{Op: workflow.OpAppendPhoto, Err: err}
		}
		return c.AppendPhoto(u)
	})
	if err != nil {
		return DraftView{}, err
	}
	return newDraftView(rec), nil
}

// SetSignature stores the signature image drawn on the signature pad and
// records its URL on the draft.
func (s *BookingService) SetSignature(ctx context.Context, userID uint64, id, dataURL string) (DraftView, error) {
	rec, err := s.load(ctx, userID, id)
	if err != nil {
		return DraftView{}, err
	}
	data, _, err := storage.DecodeDataURL(dataURL)
	if err != nil {
		return DraftView{}, &workflow.ValidationError{
			Stage: rec.Stage, Field: "checkin_signature",
			Heading: "Signature Required", Message: "Please sign the rental agreement.",
		}
	}
	owner := "drafts/" + id
	if rec.Draft.BookingID != "" {
		owner = "bookings/" + rec.Draft.BookingID
	}
	u, err := s.upload(ctx, "signature", owner, "signature", data)
	if err != nil {
		return DraftView{}, err
	}
	return s.Patch(ctx, userID, id, workflow.DraftUpdate{CheckinSignature: &u})
}
