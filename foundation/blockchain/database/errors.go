package database

import (
	"errors"
	"fmt"
)

// ErrUnknownOutput is returned when an input references an output that is
// not present in the unspent set.
var ErrUnknownOutput = errors.New("referenced output is not in the unspent set")

// ErrInvalidSignature is returned when an input's unlock proof does not
// validate against the referenced output's lock.
var ErrInvalidSignature = errors.New("signature does not validate")

// ValidationError represents a block or transaction that failed the
// consensus rules. The offending data is rejected and existing chain state is
// never touched.
type ValidationError struct {
	Err error
}

// NewValidationError wraps the reason a block or transaction was rejected.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return ve.Err.Error()
}

// Unwrap supports errors.Is checks against the wrapped reason.
func (ve *ValidationError) Unwrap() error {
	return ve.Err
}

// IsValidationError checks if the specified error is a consensus rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
