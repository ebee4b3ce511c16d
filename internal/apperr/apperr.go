package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services and handlers. Handlers map these to
// HTTP statuses; everything unmatched is treated as an infrastructure fault.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("resource not found")
	ErrNoActiveDraw        = errors.New("no active draw available")
	ErrDrawNotAccepting    = errors.New("the current draw is no longer accepting tickets")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateTicket     = errors.New("a ticket with these numbers already exists for this draw")
	ErrNotClaimable        = errors.New("only winning tickets can be claimed")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")

	// ErrInvalidState marks a draw or ticket transition attempted from the
	// wrong status. It signals a scheduler or locking bug, not user input,
	// and is never shown to end users.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrLocked is returned when a FOR UPDATE NOWAIT acquire loses the race
	// against another process instance.
	ErrLocked = errors.New("row is locked by another process")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsBusiness reports whether err is a user-facing business rejection rather
// than an internal fault.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoActiveDraw) ||
		errors.Is(err, ErrDrawNotAccepting) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateTicket) ||
		errors.Is(err, ErrNotClaimable) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrInvalidCredentials)
}
