package booking

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("time slot already booked")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")

	ErrAlreadyCancelled = fmt.Errorf("%w: appointment already cancelled", ErrInvalidState)
	ErrAlreadyCompleted = fmt.Errorf("%w: cannot cancel a completed appointment", ErrInvalidState)
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
