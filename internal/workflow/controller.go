package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each external call made by Advance.
const DefaultTimeout = 10 * time.Second

// Options configures a Controller. Records is required for the two
// writing transitions; the rest is optional.
type Options struct {
	Records  RecordStore
	Notifier Notifier
	Logger   *zap.Logger
	Timeout  time.Duration
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Controller owns one draft and its stage pointer. Operations are
// serialized: a transition that performs an external write holds the
// controller until the outcome is known.
type Controller struct {
	mu      sync.Mutex
	opts    Options
	draftID string
	userID  uint64
	stage   Stage
	draft   Draft
}

// effects lists the external writes performed when leaving a stage.
var effects = map[Stage]func(*Controller, context.Context) error{
	StagePayment:   (*Controller).persistBooking,
	StageSignature: (*Controller).persistCheckin,
}

// NewController starts a draft at the first stage.
func NewController(draftID string, userID uint64, d Draft, opts Options) *Controller {
	c, _ := Restore(draftID, userID, FirstStage, d, opts)
	return c
}

// Restore rebuilds a controller from a saved stage and draft.
func Restore(draftID string, userID uint64, stage Stage, d Draft, opts Options) (*Controller, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("workflow: invalid stage %d", stage)
	}
	d = d.clone()
	if d.CheckinPhotos == nil {
		d.CheckinPhotos = []string{}
	}
	return &Controller{
		opts:    opts.withDefaults(),
		draftID: draftID,
		userID:  userID,
		stage:   stage,
		draft:   d,
	}, nil
}

// Stage returns the current stage pointer.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Draft returns a copy of the current draft.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.clone()
}

// Snapshot returns the stage and a copy of the draft taken together.
func (c *Controller) Snapshot() (Stage, Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage, c.draft.clone()
}

// SubmitStageUpdate merges u into the draft. Stage gates are not evaluated
// here; only the draft's data invariants can reject an update, in which
// case nothing is applied.
func (c *Controller) SubmitStageUpdate(u DraftUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if verr := u.check(c.draft); verr != nil {
		verr.Stage = c.stage
		return verr
	}
	u.apply(&c.draft)
	return nil
}

// AppendPhoto records a completed check-in photo upload.
func (c *Controller) AppendPhoto(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.photoSlotLocked(); err != nil {
		return err
	}
	if url == "" {
		return &ValidationError{Stage: c.stage, Field: "checkin_photos", Heading: "Upload Failed", Message: "The uploaded photo has no URL."}
	}
	c.draft.CheckinPhotos = append(c.draft.CheckinPhotos, url)
	return nil
}

// PhotoSlotAvailable reports, as an error, whether another photo may still
// be appended. Callers use it before starting an upload.
func (c *Controller) PhotoSlotAvailable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.photoSlotLocked()
}

func (c *Controller) photoSlotLocked() error {
	if c.draft.BookingID == "" {
		return &ValidationError{Stage: c.stage, Field: "booking_id", Heading: "Error", Message: "Booking not found. Please go back and try again."}
	}
	if len(c.draft.CheckinPhotos) >= RequiredPhotoCount {
		return &ValidationError{Stage: c.stage, Field: "checkin_photos", Heading: "Photos Complete", Message: "All required photos have already been uploaded."}
	}
	return nil
}

// SetDocument records a completed identity document upload.
func (c *Controller) SetDocument(kind DocumentKind, url string) error {
	var u DraftUpdate
	switch kind {
	case DocumentLicense:
		u.DriversLicense = &url
	case DocumentID:
		u.IDDocument = &url
	default:
		return &ValidationError{Field: "document", Heading: "Invalid Information", Message: "Unknown document type."}
	}
	return c.SubmitStageUpdate(u)
}

// Advance checks the current stage's exit gate, performs the stage's
// external write if it has one and moves the pointer forward. On any
// error the stage is left as it was.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage == FinalStage {
		return ErrWorkflowFinished
	}
	if err := CheckGate(c.stage, c.draft); err != nil {
		return err
	}
	if effect, ok := effects[c.stage]; ok {
		if err := effect(c, ctx); err != nil {
			c.opts.Logger.Warn("workflow transition failed",
				zap.String("draft_id", c.draftID),
				zap.Int("stage", int(c.stage)),
				zap.Error(err))
			return err
		}
	}
	c.stage++
	c.opts.Logger.Debug("workflow advanced",
		zap.String("draft_id", c.draftID),
		zap.Int("stage", int(c.stage)))
	return nil
}

// Retreat moves the pointer back one stage. It never validates and never
// touches the draft.
func (c *Controller) Retreat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage > FirstStage {
		c.stage--
	}
}

// persistBooking creates the booking record the first time payment is
// confirmed. The id is only stored once the store reports success.
func (c *Controller) persistBooking(ctx context.Context) error {
	if c.draft.BookingID != "" {
		return nil
	}
	if c.opts.Records == nil {
		return &PersistenceError{Op: OpCreateBooking, Err: errors.New("record store not configured")}
	}
	cctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	id, err := c.opts.Records.CreateBooking(cctx, NewBooking{
		DraftID:    c.draftID,
		UserID:     c.userID,
		Draft:      c.draft.clone(),
		RentalDays: c.draft.RentalDays(),
		TotalPrice: c.draft.TotalPrice(),
	})
	if err != nil {
		return &PersistenceError{Op: OpCreateBooking, Err: err}
	}
	if id == "" {
		return &PersistenceError{Op: OpCreateBooking, Err: errors.New("record store returned an empty booking id")}
	}
	c.draft.BookingID = id
	c.notify(ctx, EventBookingCreated)
	return nil
}

// persistCheckin writes the check-in completion and activates the booking.
func (c *Controller) persistCheckin(ctx context.Context) error {
	if c.opts.Records == nil {
		return &PersistenceError{Op: OpCompleteCheckin, Err: errors.New("record store not configured")}
	}
	if c.draft.BookingID == "" {
		return &PersistenceError{Op: OpCompleteCheckin, Err: errors.New("draft has no booking id")}
	}
	cctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	err := c.opts.Records.CompleteCheckin(cctx, c.draft.BookingID, Checkin{
		FuelLevel:    c.draft.CheckinFuelLevel,
		Mileage:      c.draft.CheckinMileage,
		SignatureRef: c.draft.CheckinSignature,
		CompletedAt:  c.opts.Now(),
	})
	if err != nil {
		return &PersistenceError{Op: OpCompleteCheckin, Err: err}
	}
	c.notify(ctx, EventCheckinCompleted)
	return nil
}

// notify publishes kind with its own external-call deadline. A slow or
// unreachable broker is logged and never fails the transition.
func (c *Controller) notify(ctx context.Context, kind EventKind) {
	if c.opts.Notifier == nil {
		return
	}
	ev := Event{
		Kind:      kind,
		DraftID:   c.draftID,
		BookingID: c.draft.BookingID,
		UserID:    c.userID,
		Draft:     c.draft.clone(),
		At:        c.opts.Now(),
	}
	nctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if err := c.opts.Notifier.Notify(nctx, ev); err != nil {
		c.opts.Logger.Warn("workflow event not delivered",
			zap.String("event", string(kind)),
			zap.String("booking_id", ev.BookingID),
			zap.Error(err))
	}
}
