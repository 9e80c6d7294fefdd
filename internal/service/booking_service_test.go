package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/repository"
	"github.com/driveshare/rental-booking/internal/session"
	"github.com/driveshare/rental-booking/internal/workflow"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var fixedNow = time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu        sync.Mutex
	creates   int
	checkins  int
	createErr error
	bookings  map[string]model.Booking
}

func (f *fakeLedger) CreateBooking(_ context.Context, nb workflow.NewBooking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "bk-" + nb.DraftID[:4]
	f.bookings[id] = model.Booking{
		ID: id, DraftID: nb.DraftID, UserID: nb.UserID, VehicleName: nb.Draft.VehicleName,
		RentalDays: nb.RentalDays, TotalPrice: nb.TotalPrice, Status: model.BookingConfirmed,
	}
	return id, nil
}

func (f *fakeLedger) CompleteCheckin(_ context.Context, id string, c workflow.Checkin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkins++
	b := f.bookings[id]
	b.Status = model.BookingActive
	b.CheckinFuelLevel, b.CheckinMileage = &c.FuelLevel, &c.Mileage
	b.CheckinCompletedAt = &c.CompletedAt
	f.bookings[id] = b
	return nil
}

func (f *fakeLedger) GetForUser(_ context.Context, id string, userID uint64) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return model.Booking{}, repository.ErrBookingNotFound
	}
	if b.UserID != userID {
		return model.Booking{}, repository.ErrForbidden
	}
	return b, nil
}

func (f *fakeLedger) ListByUser(_ context.Context, userID uint64, _, _ int) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Booking{}
	for _, b := range f.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) Cancel(ctx context.Context, id string, userID uint64) error {
	b, err := f.GetForUser(ctx, id, userID)
	if err != nil {
		return err
	}
	if b.Status != model.BookingConfirmed {
		return repository.ErrConflict
	}
	f.mu.Lock()
	b.Status = model.BookingCancelled
	f.bookings[id] = b
	f.mu.Unlock()
	return nil
}

type fakePhotos struct {
	mu     sync.Mutex
	rows   []model.BookingPhoto
	failOn int // fail the n-th append (1-based), 0 = never
}

func (f *fakePhotos) AppendPhoto(_ context.Context, bookingID, photoType, u string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.rows)+1 == f.failOn {
		f.failOn = 0
		return 0, errors.New("insert failed")
	}
	f.rows = append(f.rows, model.BookingPhoto{ID: uint64(len(f.rows) + 1), BookingID: bookingID, Phase: model.PhaseCheckin, PhotoType: photoType, PhotoURL: u})
	return uint64(len(f.rows)), nil
}

func (f *fakePhotos) ListByBooking(_ context.Context, bookingID string) ([]model.BookingPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BookingPhoto
	for _, p := range f.rows {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeBlobs) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://blobs.example.com/" + key, nil
}

type fakeUsers struct {
	mu     sync.Mutex
	users  map[uint64]model.User
	setErr error
}

func (f *fakeUsers) lookup(id uint64) model.User {
	if u, ok := f.users[id]; ok {
		return u
	}
	return model.User{ID: id, Email: "ana@example.com", FullName: "Ana"}
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(id), nil
}

func (f *fakeUsers) SetDocument(_ context.Context, id uint64, kind workflow.DocumentKind, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	user := f.lookup(id)
	switch kind {
	case workflow.DocumentLicense:
		user.DriversLicenseURL = u
	case workflow.DocumentID:
		user.IDDocumentURL = u
	}
	f.users[id] = user
	return nil
}

type harness struct {
	svc      *BookingService
	ledger   *fakeLedger
	photos   *fakePhotos
	blobs    *fakeBlobs
	users    *fakeUsers
	sessions *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:   &fakeLedger{bookings: map[string]model.Booking{}},
		photos:   &fakePhotos{},
		blobs:    &fakeBlobs{},
		users:    &fakeUsers{users: map[uint64]model.User{}},
		sessions: session.NewMemoryStore(time.Hour),
	}
	h.svc = NewBookingService(Deps{
		Sessions: h.sessions,
		Locker:   session.NewLocalLocker(),
		Bookings: h.ledger,
		Photos:   h.photos,
		Users:    h.users,
		Blobs:    h.blobs,
		Timeout:  time.Second,
		Now:      func() time.Time { return fixedNow },
	})
	return h
}

func seedQuery() url.Values {
	return url.Values{
		"vehicleId":   {"v1"},
		"vehicleName": {"Model 3"},
		"vehicleType": {"sedan"},
		"price":       {"50"},
		"location":    {"Airport"},
		"pickup":      {"2025-06-01"},
		"return":      {"2025-06-04"},
	}
}

func validCard() PaymentForm {
	return PaymentForm{CardNumber: "4242 4242 4242 4242", Expiry: "12/29", CVV: "123"}
}

func TestCreateAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)
	assert.Equal(t, workflow.StageVehicle, v.Stage)
	assert.Equal(t, "Vehicle & Dates", v.StageName)
	assert.Equal(t, 12, v.Progress)
	assert.Equal(t, 3, v.RentalDays)
	assert.InDelta(t, 150.0, v.TotalPrice, 1e-9)
	assert.Len(t, v.Photos, workflow.RequiredPhotoCount)

	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = h.svc.Get(ctx, 8, v.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = h.svc.Get(ctx, 7, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestAdvanceGateFailureKeepsStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, url.Values{})
	require.NoError(t, err)

	_, err = h.svc.Advance(ctx, 7, v.ID)
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Missing Information", verr.Heading)

	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageVehicle, got.Stage)
}

func TestPaymentForm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)

	_, err = h.svc.ConfirmPayment(ctx, 7, v.ID, PaymentForm{CardNumber: "4242424242424242"})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Missing Information", verr.Heading)
	assert.Equal(t, "Please fill in all payment details.", verr.Message)

	bad := validCard()
	bad.Expiry = "13/29"
	_, err = h.svc.ConfirmPayment(ctx, 7, v.ID, bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expiry", verr.Field)

	bad = validCard()
	bad.Expiry = "01/24"
	_, err = h.svc.ConfirmPayment(ctx, 7, v.ID, bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expiry", verr.Field)

	bad = validCard()
	bad.CardNumber = "4242424242424241"
	_, err = h.svc.ConfirmPayment(ctx, 7, v.ID, bad)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "card_number", verr.Field)

	got, err := h.svc.ConfirmPayment(ctx, 7, v.ID, validCard())
	require.NoError(t, err)
	assert.True(t, got.Draft.PaymentConfirmed)
}

// walkToPhotos drives a fresh draft through documents and payment.
func walkToPhotos(t *testing.T, h *harness) DraftView {
	t.Helper()
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)

	_, err = h.svc.UploadDocument(ctx, 7, v.ID, workflow.DocumentLicense, pngBytes)
	require.NoError(t, err)
	_, err = h.svc.UploadDocument(ctx, 7, v.ID, workflow.DocumentID, pngBytes)
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)

	_, err = h.svc.ConfirmPayment(ctx, 7, v.ID, validCard())
	require.NoError(t, err)
	v, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StageConfirmation, v.Stage)
	require.NotEmpty(t, v.Draft.BookingID)

	v, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StagePhotos, v.Stage)
	return v
}

func TestFullWalkthrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := walkToPhotos(t, h)
	assert.Equal(t, 1, h.ledger.creates)
	assert.Contains(t, v.Draft.DriversLicense, "drafts/"+v.ID+"/")

	for i := 0; i < workflow.RequiredPhotoCount; i++ {
		v, _ = h.svc.UploadPhoto(ctx, 7, v.ID, "", pngBytes)
	}
	require.Len(t, v.Draft.CheckinPhotos, workflow.RequiredPhotoCount)
	assert.True(t, v.Photos[9].Done)
	assert.Len(t, h.photos.rows, workflow.RequiredPhotoCount)
	assert.Equal(t, "Front exterior", h.photos.rows[0].PhotoType)
	assert.Equal(t, "Fuel gauge", h.photos.rows[9].PhotoType)

	_, err := h.svc.UploadPhoto(ctx, 7, v.ID, "extra", pngBytes)
	assert.True(t, workflow.IsValidation(err))
	assert.Len(t, h.photos.rows, workflow.RequiredPhotoCount)

	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)

	fuel, miles := 80, 12000
	_, err = h.svc.Patch(ctx, 7, v.ID, workflow.DraftUpdate{CheckinFuelLevel: &fuel, CheckinMileage: &miles})
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)

	sig := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	v, err = h.svc.SetSignature(ctx, 7, v.ID, sig)
	require.NoError(t, err)
	assert.Contains(t, v.Draft.CheckinSignature, "bookings/"+v.Draft.BookingID+"/")

	v, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageStartRental, v.Stage)
	assert.Equal(t, 1, h.ledger.checkins)
	assert.Equal(t, model.BookingActive, h.ledger.bookings[v.Draft.BookingID].Status)

	v, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.True(t, v.Finished)
	_, err = h.svc.Get(ctx, 7, v.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	pdf, name, err := h.svc.Agreement(ctx, 7, v.Draft.BookingID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.NotEmpty(t, name)

	assert.ErrorIs(t, h.svc.CancelBooking(ctx, 7, v.Draft.BookingID), repository.ErrConflict)
}

func TestCreateBookingFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ledger.createErr = errors.New("db down")

	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)
	paid, lic := true, "https://blobs.example.com/l.png"
	_, err = h.svc.Patch(ctx, 7, v.ID, workflow.DraftUpdate{DriversLicense: &lic, IDDocument: &lic, PaymentConfirmed: &paid})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = h.svc.Advance(ctx, 7, v.ID)
		require.NoError(t, err)
	}

	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.True(t, workflow.IsPersistence(err))
	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StagePayment, got.Stage)
	assert.Empty(t, got.Draft.BookingID)

	h.ledger.createErr = nil
	got, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageConfirmation, got.Stage)
	assert.Equal(t, 2, h.ledger.creates)
}

func TestPhotoFailuresLeaveDraftUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := walkToPhotos(t, h)

	h.blobs.err = errors.New("bucket gone")
	_, err := h.svc.UploadPhoto(ctx, 7, v.ID, "Front exterior", pngBytes)
	assert.True(t, workflow.IsStorage(err))

	h.blobs.err = nil
	_, err = h.svc.UploadPhoto(ctx, 7, v.ID, "Front exterior", []byte("plain text"))
	assert.True(t, workflow.IsStorage(err))

	h.photos.failOn = 1
	_, err = h.svc.UploadPhoto(ctx, 7, v.ID, "Front exterior", pngBytes)
	var perr *workflow.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, workflow.OpAppendPhoto, perr.Op)

	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Draft.CheckinPhotos)
}

func TestPhotoBeforeBookingRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)

	_, err = h.svc.UploadPhoto(ctx, 7, v.ID, "", pngBytes)
	assert.True(t, workflow.IsValidation(err))
	assert.Empty(t, h.blobs.keys)
}

func TestSignatureLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)

	_, err = h.svc.SetSignature(ctx, 7, v.ID, "not a data url")
	assert.True(t, workflow.IsValidation(err))

	sig := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	got, err := h.svc.SetSignature(ctx, 7, v.ID, sig)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Draft.CheckinSignature)

	got, err = h.svc.ClearSignature(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Draft.CheckinSignature)
}

func TestRetreatAndDiscard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, 7, v.ID)
	require.NoError(t, err)

	got, err := h.svc.Retreat(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageVehicle, got.Stage)

	assert.ErrorIs(t, h.svc.Discard(ctx, 8, v.ID), repository.ErrForbidden)
	require.NoError(t, h.svc.Discard(ctx, 7, v.ID))
	_, err = h.svc.Get(ctx, 7, v.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestPatchRejectsBoundaryViolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v, err := h.svc.Create(ctx, 7, seedQuery())
	require.NoError(t, err)

	fuel := 150
	_, err = h.svc.Patch(ctx, 7, v.ID, workflow.DraftUpdate{CheckinFuelLevel: &fuel})
	assert.True(t, workflow.IsValidation(err))
	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Draft.CheckinFuelLevel)
}

func TestConcurrentPhotoUploadsNeverOverflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := walkToPhotos(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.UploadPhoto(ctx, 7, v.ID, "shot", pngBytes)
		}()
	}
	wg.Wait()

	got, err := h.svc.Get(ctx, 7, v.ID)
	require.NoError(t, err)
	assert.Len(t, got.Draft.CheckinPhotos, workflow.RequiredPhotoCount)
	assert.Len(t, h.photos.rows, workflow.RequiredPhotoCount)
}

func TestBookingQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := walkToPhotos(t, h)
	id := v.Draft.BookingID

	list, err := h.svc.ListBookings(ctx, 7, 20, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.svc.GetBooking(ctx, 8, id)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = h.svc.UploadPhoto(ctx, 7, v.ID, "", pngBytes)
	require.NoError(t, err)
	photos, err := h.svc.BookingPhotos(ctx, 7, id)
	require.NoError(t, err)
	assert.Len(t, photos, 1)

	require.NoError(t, h.svc.CancelBooking(ctx, 7, id))
	assert.Equal(t, model.BookingCancelled, h.ledger.bookings[id].Status)
}
