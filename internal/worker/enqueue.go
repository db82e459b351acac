package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/repository"
)

// JobTypeSubmissionNotification is handled by the submission email sender.
const JobTypeSubmissionNotification = "submission_notification"

const (
	defaultPriority    = 10
	defaultMaxAttempts = 3
)

// SubmissionNotificationPayload is the payload for submission email jobs.
type SubmissionNotificationPayload struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	FormID       uuid.UUID `json:"form_id"`
	UserID       string    `json:"user_id"`
}

// EnqueueOption adjusts the row written by EnqueueJob.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithDelay schedules the job to run after delay. A negative delay makes it
// due immediately even against a clock that runs slightly behind.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a pending job. Pass the
// transaction's Querier to make the job commit or roll back with the caller's
// writes.
func EnqueueJob(
	ctx context.Context,
	queries repository.Querier,
	jobType string,
	payload any,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    defaultPriority,
		MaxAttempts: defaultMaxAttempts,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// EnqueueSubmissionNotification enqueues the confirmation and developer
// emails for a stored submission.
func EnqueueSubmissionNotification(
	ctx context.Context,
	queries repository.Querier,
	payload SubmissionNotificationPayload,
	opts ...EnqueueOption,
) (repository.Job, error) {
	return EnqueueJob(ctx, queries, JobTypeSubmissionNotification, payload, opts...)
}
