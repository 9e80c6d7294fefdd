// Package repository implements the MySQL record store. The sentinel
// errors below let handlers tell failure scenarios apart without looking
// at driver errors.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own. Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when the booking's state does not allow the
// operation, such as cancelling a rental that already started. Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrBookingNotFound is returned when no booking matches the id, or when a
// check-in targets a booking that can no longer be checked in.
var ErrBookingNotFound = errors.New("booking not found")

// ErrEmailExists is returned by UserRepo.Create on a duplicate email.
var ErrEmailExists = errors.New("email already exists")
