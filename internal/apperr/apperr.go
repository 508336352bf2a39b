// Package apperr holds the error taxonomy shared by the queue, the engine and the
// ledger clients. Callers wrap a sentinel with context and test it with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorization             = errors.New("not authorized")
	ErrValidation                = errors.New("validation failed")
	ErrStateConflict             = errors.New("state conflict")
	ErrLedgerSubmission          = errors.New("ledger submission failed")
	ErrLedgerConfirmationTimeout = errors.New("ledger confirmation not observed in time")
	ErrSchemaUnavailable         = errors.New("action schema unavailable")
	ErrNotFound                  = errors.New("not found")
)

func Authorization(format string, args ...any) error {
	return wrap(ErrAuthorization, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func StateConflict(format string, args ...any) error {
	return wrap(ErrStateConflict, format, args...)
}

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Retryable reports whether the error came from the ledger phase, where the caller
// may offer a "try again" affordance.
func Retryable(err error) bool {
	return errors.Is(err, ErrLedgerSubmission) || errors.Is(err, ErrLedgerConfirmationTimeout)
}
