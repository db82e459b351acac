package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Querier is the full set of statements; *Queries and test doubles implement it.
type Querier interface {
	// Users
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (User, error)
	UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error)
	UpdateUserPlan(ctx context.Context, arg UpdateUserPlanParams) error
	UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error

	// Quotas
	GetQuota(ctx context.Context, arg GetQuotaParams) (Quota, error)
	GetQuotaForUpdate(ctx context.Context, arg GetQuotaParams) (Quota, error)
	CreateQuotaIfAbsent(ctx context.Context, arg CreateQuotaParams) (int64, error)
	CreateQuota(ctx context.Context, arg CreateQuotaParams) (Quota, error)
	IncrementQuota(ctx context.Context, arg IncrementQuotaParams) (int64, error)
	DeleteQuotasByUser(ctx context.Context, userID string) error
	ListResetCandidates(ctx context.Context, arg PeriodParams) ([]QuotaCandidateRow, error)
	ListWarningCandidates(ctx context.Context, arg PeriodParams) ([]QuotaCandidateRow, error)

	// Forms
	CreateForm(ctx context.Context, arg CreateFormParams) (Form, error)
	GetForm(ctx context.Context, id uuid.UUID) (Form, error)
	GetFormByIDAndUser(ctx context.Context, arg GetFormByIDAndUserParams) (Form, error)
	ListFormsByUser(ctx context.Context, userID string) ([]ListFormsByUserRow, error)
	ListFormIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error)
	DeleteFormByIDAndUser(ctx context.Context, arg GetFormByIDAndUserParams) (int64, error)
	DeleteFormsByUser(ctx context.Context, userID string) error
	CreateEmailSettings(ctx context.Context, arg CreateEmailSettingsParams) (EmailSetting, error)
	GetEmailSettingsByForm(ctx context.Context, formID uuid.UUID) (EmailSetting, error)
	DeleteEmailSettingsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error

	// Submissions
	CreateSubmission(ctx context.Context, arg CreateSubmissionParams) (Submission, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (Submission, error)
	ListSubmissionsByForm(ctx context.Context, arg ListSubmissionsByFormParams) ([]Submission, error)
	CountSubmissionsByForm(ctx context.Context, arg CountSubmissionsByFormParams) (int64, error)
	ListAllSubmissionsByForm(ctx context.Context, formID uuid.UUID) ([]Submission, error)
	ListRecipientCandidates(ctx context.Context, arg ListRecipientCandidatesParams) ([]Submission, error)
	MarkSubmissionUnsubscribed(ctx context.Context, id uuid.UUID) error
	ListSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) ([]Submission, error)
	DeleteSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error

	// Notification logs
	CreateNotificationLog(ctx context.Context, arg CreateNotificationLogParams) (NotificationLog, error)
	ListNotificationLogsByForm(ctx context.Context, arg ListNotificationLogsByFormParams) ([]NotificationLog, error)
	DeleteNotificationLogsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error

	// Campaigns
	CreateCampaign(ctx context.Context, arg CreateCampaignParams) (Campaign, error)
	GetCampaignByIDAndUser(ctx context.Context, arg GetCampaignByIDAndUserParams) (Campaign, error)
	ScheduleCampaign(ctx context.Context, arg ScheduleCampaignParams) (int64, error)
	ListDueCampaigns(ctx context.Context, now time.Time) ([]Campaign, error)
	ClaimCampaign(ctx context.Context, id uuid.UUID) (int64, error)
	TouchCampaign(ctx context.Context, id uuid.UUID) error
	RequeueStaleCampaigns(ctx context.Context, cutoff time.Time) (int64, error)
	FinishCampaign(ctx context.Context, arg FinishCampaignParams) error
	DeleteCampaignsByUser(ctx context.Context, userID string) error
	CountCampaignRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error)
	CreateCampaignRecipient(ctx context.Context, arg CreateCampaignRecipientParams) (CampaignRecipient, error)
	ListPendingRecipients(ctx context.Context, campaignID uuid.UUID) ([]CampaignRecipient, error)
	MarkRecipientSent(ctx context.Context, arg MarkRecipientSentParams) error
	MarkRecipientFailed(ctx context.Context, arg MarkRecipientFailedParams) error
	DeleteCampaignRecipientsByUser(ctx context.Context, userID string) error

	// Sent email tracking
	CreateSentEmail(ctx context.Context, arg CreateSentEmailParams) (SentEmail, error)
	GetSentEmail(ctx context.Context, id uuid.UUID) (SentEmail, error)
	MarkSentEmailOpened(ctx context.Context, arg MarkSentEmailEventParams) (int64, error)
	MarkSentEmailClicked(ctx context.Context, arg MarkSentEmailEventParams) (int64, error)
	DeleteSentEmailsByUser(ctx context.Context, userID string) error

	// API keys
	CreateAPIKey(ctx context.Context, arg CreateAPIKeyParams) (ApiKey, error)
	ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]ApiKey, error)
	TouchAPIKey(ctx context.Context, arg TouchAPIKeyParams) error
	DeleteAPIKeysByUser(ctx context.Context, userID string) error

	// Jobs
	EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error)
	DequeueJob(ctx context.Context) (Job, error)
	UpdateJobStarted(ctx context.Context, id uuid.UUID) error
	UpdateJobCompleted(ctx context.Context, id uuid.UUID) error
	UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error
	RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error)
}

var _ Querier = (*Queries)(nil)
