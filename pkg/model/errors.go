package model

import (
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// Malformed interpretation requests. Checked before any network activity.
	ErrInvalidSpread     = goerr.New("invalid spread type")
	ErrNoCards           = goerr.New("no cards to interpret")
	ErrCardCountMismatch = goerr.New("card count does not match spread")

	// ErrTransport covers network failures, DNS errors and timeouts
	ErrTransport = goerr.New("Network error: Unable to reach AI service")
	// ErrTimeout is always reported together with ErrTransport
	ErrTimeout = goerr.New("interpretation request timed out")
	// ErrService covers non-2xx responses, error events and empty answers
	ErrService = goerr.New("API Error")

	ErrReadingNotFound = goerr.New("reading not found")

	// ErrSuperseded is returned to a generation whose result was discarded
	// because a newer generation started
	ErrSuperseded = goerr.New("generation superseded by a newer request")
)

// ServiceError carries the message reported by the interpretation service.
// It matches ErrService with errors.Is.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("API Error: %s", e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}

// TimeoutError matches both ErrTimeout and ErrTransport
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	return ErrTransport.Error()
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrTransport
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// IsFormatError reports whether err was caused by a malformed request
func IsFormatError(err error) bool {
	return errors.Is(err, ErrInvalidSpread) || errors.Is(err, ErrNoCards) || errors.Is(err, ErrCardCountMismatch)
}

// Describe returns the message shown to a user for a failed generation
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var svcErr *ServiceError
	switch {
	case errors.As(err, &svcErr):
		return svcErr.Error()
	case errors.Is(err, ErrTransport):
		return ErrTransport.Error()
	case errors.Is(err, ErrService):
		return "Failed to generate interpretation"
	case IsFormatError(err):
		return err.Error()
	default:
		return "Failed to generate interpretation"
	}
}
