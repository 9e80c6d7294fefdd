// Package session keeps booking drafts between requests. A draft lives
// only in the session store until the payment stage turns it into a
// booking record; idle drafts expire.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/driveshare/rental-booking/internal/workflow"
)

// ErrNotFound is returned for unknown or expired drafts.
var ErrNotFound = errors.New("draft not found")

// Record is what is stored per draft.
type Record struct {
	ID        string         `json:"id"`
	UserID    uint64         `json:"user_id"`
	Stage     workflow.Stage `json:"stage"`
	Draft     workflow.Draft `json:"draft"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists draft records.
type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
}

// Locker serializes work on one draft. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
