package errs

import (
	"errors"
	"fmt"
)

// Failure taxonomy used across the pipeline. Workers decide retry behaviour
// with IsRetryable; handlers map these onto HTTP statuses.
var (
	ErrValidation        = errors.New("validation failed")
	ErrTransientIO       = errors.New("transient io failure")
	ErrProvider          = errors.New("provider failure")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrConsistency       = errors.New("consistency violation")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal")
)

func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientIO, err)
}

func Provider(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

func Consistency(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}

// IsRetryable reports whether a worker may retry the failed unit of work.
// Validation and consistency failures never consume a retry budget.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientIO) || errors.Is(err, ErrProvider)
}
