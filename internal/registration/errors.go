package registration

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrIllegalTransition  = errors.New("illegal stage transition")
	ErrCapacityExceeded   = errors.New("session capacity exceeded")
	ErrAlreadyUsed        = errors.New("ticket already used")
	ErrNotEligible        = errors.New("not eligible for a special vote")
	ErrInvalidSelection   = errors.New("invalid selection")
	ErrValidation         = errors.New("validation failed")
)

func invalidSelection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, fmt.Sprintf(format, args...))
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
