package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a pipeline is started for a job that left pending
	ErrJobAlreadyClaimed = errors.New("job already started or not in pending status")

	// ErrJobFinalized is returned when reconciling a job that already reached a terminal status
	ErrJobFinalized = errors.New("job already finalized")

	// ErrInvalidTransition is returned when a status write would move a job backwards
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrUnsupportedInput is returned when a job has no text and a non-text mime type
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrStoreUnavailable is returned when neither the durable nor the fallback store can serve a call
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrInvalidPayload is returned when a queue message or a submission is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrQueueFull is returned when the in-process queue cannot accept more work
	ErrQueueFull = errors.New("job queue is full")

	// ErrMissingField is returned when a submission lacks a required field
	ErrMissingField = errors.New("missing required field")

	// ErrCaptchaRejected is returned when CAPTCHA verification fails
	ErrCaptchaRejected = errors.New("captcha verification failed")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is or wraps a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
