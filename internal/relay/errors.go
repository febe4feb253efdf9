package relay

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("relay: another job is running")
	ErrNotAuthorized  = errors.New("relay: requester is not an owner")
	ErrNotFound       = errors.New("relay: message not found")
	ErrUnsupported    = errors.New("relay: platform does not support this mode")
	ErrInvalidRange   = errors.New("relay: invalid range")
)

// RateLimitError is the platform's flood-control signal.
//
// Platforms wrap their native throttling error with RateLimited so the engine
// can apply its bounded retry policy without knowing the platform.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit signal carrying the wait duration.
func RateLimited(err error, after time.Duration) error {
	if after < 0 {
		after = 0
	}
	return &RateLimitError{RetryAfter: after, Err: err}
}

// AsRateLimit reports whether err carries a rate-limit signal and returns the
// signaled wait.
func AsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// NotFound marks err as "message missing or inaccessible".
func NotFound(err error) error {
	if err == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrNotFound, err)
}

// JobError is a fatal, job-terminating failure.
type JobError struct {
	JobID string
	MsgID int
	Err   error
}

func (e *JobError) Error() string {
	if e.MsgID > 0 {
		return fmt.Sprintf("job %s failed at message %d: %v", e.JobID, e.MsgID, e.Err)
	}
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
