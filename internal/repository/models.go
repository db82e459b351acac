package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	FirstName        sql.NullString `json:"first_name"`
	LastName         sql.NullString `json:"last_name"`
	Plan             string         `json:"plan"`
	QuotaLimit       int32          `json:"quota_limit"`
	StripeCustomerID sql.NullString `json:"stripe_customer_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Quota struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Year            int32     `json:"year"`
	Month           int32     `json:"month"`
	SubmissionCount int32     `json:"submission_count"`
	FormCount       int32     `json:"form_count"`
	CampaignCount   int32     `json:"campaign_count"`
	EmailsSent      int32     `json:"emails_sent"`
	EmailsOpened    int32     `json:"emails_opened"`
	EmailsClicked   int32     `json:"emails_clicked"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Form struct {
	ID          uuid.UUID             `json:"id"`
	UserID      string                `json:"user_id"`
	Name        string                `json:"name"`
	Description sql.NullString        `json:"description"`
	FormType    string                `json:"form_type"`
	Settings    pqtype.NullRawMessage `json:"settings"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

type EmailSetting struct {
	ID                  uuid.UUID      `json:"id"`
	FormID              uuid.UUID      `json:"form_id"`
	ConfirmationEnabled bool           `json:"confirmation_enabled"`
	DeveloperEmail      sql.NullString `json:"developer_email"`
	FromEmail           sql.NullString `json:"from_email"`
	CreatedAt           time.Time      `json:"created_at"`
}

type Submission struct {
	ID           uuid.UUID       `json:"id"`
	FormID       uuid.UUID       `json:"form_id"`
	Data         json.RawMessage `json:"data"`
	Email        sql.NullString  `json:"email"`
	Unsubscribed bool            `json:"unsubscribed"`
	IpAddress    sql.NullString  `json:"ip_address"`
	CreatedAt    time.Time       `json:"created_at"`
}

type NotificationLog struct {
	ID           uuid.UUID      `json:"id"`
	FormID       uuid.UUID      `json:"form_id"`
	SubmissionID uuid.NullUUID  `json:"submission_id"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	Error        sql.NullString `json:"error"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Campaign struct {
	ID             uuid.UUID     `json:"id"`
	FormID         uuid.UUID     `json:"form_id"`
	UserID         string        `json:"user_id"`
	Name           string        `json:"name"`
	Subject        string        `json:"subject"`
	Content        string        `json:"content"`
	Status         string        `json:"status"`
	RecipientLimit sql.NullInt32 `json:"recipient_limit"`
	ScheduledAt    sql.NullTime  `json:"scheduled_at"`
	SentAt         sql.NullTime  `json:"sent_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type CampaignRecipient struct {
	ID           uuid.UUID      `json:"id"`
	CampaignID   uuid.UUID      `json:"campaign_id"`
	SubmissionID uuid.UUID      `json:"submission_id"`
	Email        string         `json:"email"`
	Status       string         `json:"status"`
	Error        sql.NullString `json:"error"`
	SentAt       sql.NullTime   `json:"sent_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

type SentEmail struct {
	ID           uuid.UUID    `json:"id"`
	CampaignID   uuid.UUID    `json:"campaign_id"`
	RecipientID  uuid.UUID    `json:"recipient_id"`
	SubmissionID uuid.UUID    `json:"submission_id"`
	UserID       string       `json:"user_id"`
	OpenedAt     sql.NullTime `json:"opened_at"`
	ClickedAt    sql.NullTime `json:"clicked_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

type ApiKey struct {
	ID         uuid.UUID    `json:"id"`
	UserID     string       `json:"user_id"`
	Name       string       `json:"name"`
	Prefix     string       `json:"prefix"`
	KeyHash    string       `json:"key_hash"`
	LastUsedAt sql.NullTime `json:"last_used_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID       `json:"id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Priority     int32           `json:"priority"`
	Attempts     int32           `json:"attempts"`
	MaxAttempts  int32           `json:"max_attempts"`
	ErrorMessage sql.NullString  `json:"error_message"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    sql.NullTime    `json:"started_at"`
	CompletedAt  sql.NullTime    `json:"completed_at"`
	CreatedAt    time.Time       `json:"created_at"`
}
