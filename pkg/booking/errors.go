package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrValidation           = errors.New("validation failed")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrMissingCredential    = errors.New("missing credential")
	ErrInvalidSession       = errors.New("invalid or expired session")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrDishNotFound         = errors.New("dish not found")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrConfigNotFound       = errors.New("config entry not found")
	ErrInvalidServiceConfig = errors.New("invalid service config")

	ErrInvalidReservationID = fmt.Errorf("%w: invalid reservation id", ErrValidation)
	ErrInvalidDishID        = fmt.Errorf("%w: invalid dish id", ErrValidation)
	ErrInvalidName          = fmt.Errorf("%w: invalid name", ErrValidation)
	ErrInvalidDate          = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidTimeSlot      = fmt.Errorf("%w: invalid time slot", ErrValidation)
	ErrInvalidGuestCount    = fmt.Errorf("%w: invalid guest count", ErrValidation)
	ErrInvalidItems         = fmt.Errorf("%w: invalid items", ErrValidation)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidConfigKey     = fmt.Errorf("%w: invalid config key", ErrValidation)
	ErrInvalidConfigValue   = fmt.Errorf("%w: invalid config value", ErrValidation)
	ErrInvalidPassword      = fmt.Errorf("%w: invalid password", ErrValidation)
	ErrTooLate              = fmt.Errorf("%w: reservation is inside the advance notice window", ErrValidation)
)

// CapacityExceededError reports a slot that cannot take the requested guests.
type CapacityExceededError struct {
	Slot        Slot
	Requested   GuestCount
	Available   int64
	MaxCapacity int64
}

// Error returns the formatted error message.
func (capacityError CapacityExceededError) Error() string {
	return fmt.Sprintf("%v: %s has %d of %d seats available, %d requested",
		ErrCapacityExceeded, capacityError.Slot, capacityError.Available, capacityError.MaxCapacity, capacityError.Requested)
}

// Unwrap returns ErrCapacityExceeded.
func (capacityError CapacityExceededError) Unwrap() error {
	return ErrCapacityExceeded
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// IsStorageFailure reports whether err is not one of the classified domain errors.
func IsStorageFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, known := range []error{
		ErrValidation,
		ErrCapacityExceeded,
		ErrMissingCredential,
		ErrInvalidSession,
		ErrInvalidCredentials,
		ErrReservationNotFound,
		ErrDishNotFound,
		ErrAdminNotFound,
		ErrConfigNotFound,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

func isConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}
