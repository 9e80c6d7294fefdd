package workflow

import (
	"errors"
	"fmt"
)

// Severity tells the client how to present an error.
type Severity string

const (
	SeverityInfo        Severity = "informational"
	SeverityDestructive Severity = "destructive"
)

// UserError is implemented by every error the workflow reports to a user.
type UserError interface {
	error
	Kind() string
	Title() string
	UserMessage() string
	Severity() Severity
}

// ErrWorkflowFinished is returned by Advance once the rental has started.
// The caller is expected to leave the workflow.
var ErrWorkflowFinished = errors.New("booking workflow already finished")

// ValidationError is a user-correctable gap in the draft. No external call
// was made and the stage did not move.
type ValidationError struct {
	Stage   Stage
	Field   string
	Heading string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed at stage %d (%s): %s", e.Stage, e.Stage, e.Message)
}

func (e *ValidationError) Kind() string        { return "validation" }
func (e *ValidationError) Title() string       { return e.Heading }
func (e *ValidationError) UserMessage() string { return e.Message }
func (e *ValidationError) Severity() Severity  { return SeverityDestructive }

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Heading: "Invalid Information", Message: msg}
}

// Op names an external write for error reporting.
type Op string

const (
	OpCreateBooking   Op = "create booking"
	OpCompleteCheckin Op = "complete check-in"
	OpAppendPhoto     Op = "record photo"
	OpSaveDraft       Op = "save draft"
	OpSaveProfile     Op = "save profile"
)

var fallbackMessages = map[Op]string{
	OpCreateBooking:   "Failed to create booking.",
	OpCompleteCheckin: "Failed to complete check-in.",
	OpAppendPhoto:     "Failed to upload photo.",
	OpSaveDraft:       "Failed to save your booking progress.",
	OpSaveProfile:     "Failed to update profile.",
}

// PersistenceError wraps a failed write to the record store. The stage is
// unchanged and the same operation may be retried.
type PersistenceError struct {
	Op  Op
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error      { return e.Err }
func (e *PersistenceError) Kind() string       { return "persistence" }
func (e *PersistenceError) Title() string      { return "Error" }
func (e *PersistenceError) Severity() Severity { return SeverityDestructive }

func (e *PersistenceError) UserMessage() string {
	if m, ok := fallbackMessages[e.Op]; ok {
		return m
	}
	return "Something went wrong. Please try again."
}

// StorageError wraps a failed blob upload. The draft is unaffected and the
// upload may be attempted again.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error       { return e.Err }
func (e *StorageError) Kind() string        { return "storage" }
func (e *StorageError) Title() string       { return "Upload Failed" }
func (e *StorageError) UserMessage() string { return "Failed to upload " + e.Op + "." }
func (e *StorageError) Severity() Severity  { return SeverityDestructive }

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPersistence reports whether err carries a *PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

// IsStorage reports whether err carries a *StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
