package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies which email a NotificationLog records.
type NotificationType string

const (
	NotificationSubmissionConfirmation NotificationType = "SUBMISSION_CONFIRMATION"
	NotificationDeveloperNotification  NotificationType = "DEVELOPER_NOTIFICATION"
)

// NotificationStatus is the outcome of one send attempt.
type NotificationStatus string

const (
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
	NotificationStatusSkipped NotificationStatus = "SKIPPED"
)

// NotificationLog is an append-only record of an email send attempt.
type NotificationLog struct {
	ID           uuid.UUID
	FormID       uuid.UUID
	SubmissionID *uuid.UUID
	Type         NotificationType
	Status       NotificationStatus
	Error        string
	CreatedAt    time.Time
}
