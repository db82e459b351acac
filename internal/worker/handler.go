package worker

import (
	"context"
	"errors"
)

// JobHandler executes one kind of queued job. Type must equal the job_type
// stored on the row; Handle receives the raw JSON payload.
type JobHandler interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// permanentError marks a failure that retrying cannot fix, such as a
// malformed payload or a submission that no longer exists.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// NewPermanentError wraps err so the job is marked failed without retries.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, came from
// NewPermanentError.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
