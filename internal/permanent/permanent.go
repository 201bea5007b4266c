package permanent

import "errors"

// Error marks failures that must not be retried by queue workers.
// Params: wrapped root cause.
// Returns: typed non-retryable error marker.
type Error struct {
	Err error
}

// Error returns wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Mark wraps error with the non-retryable marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether error carries the non-retryable marker.
// Params: candidate error.
// Returns: true when retrying cannot succeed.
func Is(err error) bool {
	var marker Error
	return errors.As(err, &marker)
}
