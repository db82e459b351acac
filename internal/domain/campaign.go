// Package domain contains core business types and interfaces.
//
// This file defines the Campaign domain type, its lifecycle, and the
// per-recipient delivery records.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRecipientCap bounds recipient materialization when a campaign has
// no explicit recipient limit.
const DefaultRecipientCap = 500

// =============================================================================
// Campaign Status
// =============================================================================

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	// CampaignStatusDraft is editable and not yet queued for sending.
	CampaignStatusDraft CampaignStatus = "DRAFT"

	// CampaignStatusScheduled waits for its scheduled time.
	CampaignStatusScheduled CampaignStatus = "SCHEDULED"

	// CampaignStatusSending has been claimed by a dispatch run.
	CampaignStatusSending CampaignStatus = "SENDING"

	// CampaignStatusSent is terminal: at least one recipient did not fail.
	CampaignStatusSent CampaignStatus = "SENT"

	// CampaignStatusFailed is terminal: every recipient failed, or the
	// dispatch run itself failed.
	CampaignStatusFailed CampaignStatus = "FAILED"
)

// String returns the string representation of the status.
func (s CampaignStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusSending,
		CampaignStatusSent, CampaignStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for SENT and FAILED.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusSent || s == CampaignStatusFailed
}

// CanTransitionTo checks if a campaign can move to the target status.
//
// Valid transitions:
// - DRAFT -> SCHEDULED (user schedules)
// - SCHEDULED -> SENDING (dispatch claims)
// - SENDING -> SENT | FAILED (dispatch finishes)
// - SCHEDULED -> FAILED (dispatch fails before claiming)
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return target == CampaignStatusScheduled
	case CampaignStatusScheduled:
		return target == CampaignStatusSending || target == CampaignStatusFailed
	case CampaignStatusSending:
		return target == CampaignStatusSent || target == CampaignStatusFailed
	}
	return false
}

// =============================================================================
// Campaign Domain Type
// =============================================================================

// Campaign is an email blast to a form's submitters.
type Campaign struct {
	ID             uuid.UUID
	FormID         uuid.UUID
	UserID         string
	Name           string
	Subject        string
	Content        string // Plain text or light HTML body
	Status         CampaignStatus
	RecipientLimit int // Zero means DefaultRecipientCap
	ScheduledAt    *time.Time
	SentAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionTo moves the campaign to target if allowed.
func (c *Campaign) TransitionTo(target CampaignStatus) error {
	if !c.Status.CanTransitionTo(target) {
		return fmt.Errorf("cannot transition campaign from %s to %s", c.Status, target)
	}
	c.Status = target
	return nil
}

// RecipientCap returns the maximum number of recipients to materialize.
func (c *Campaign) RecipientCap() int {
	if c.RecipientLimit > 0 {
		return c.RecipientLimit
	}
	return DefaultRecipientCap
}

// IsDue returns true if the campaign is scheduled at or before now.
func (c *Campaign) IsDue(now time.Time) bool {
	return c.Status == CampaignStatusScheduled &&
		c.ScheduledAt != nil && !c.ScheduledAt.After(now)
}

// CampaignOutcome returns the terminal status for a finished send loop:
// FAILED only when there was at least one recipient and all of them failed.
func CampaignOutcome(total, failed int) CampaignStatus {
	if total > 0 && failed == total {
		return CampaignStatusFailed
	}
	return CampaignStatusSent
}

// CreateCampaignParams contains validated parameters for creating a campaign.
type CreateCampaignParams struct {
	UserID         string
	FormID         uuid.UUID
	Name           string
	Subject        string
	Content        string
	RecipientCount int
}

// ScheduleCampaignParams contains parameters for scheduling a draft campaign.
type ScheduleCampaignParams struct {
	ID          uuid.UUID
	UserID      string
	ScheduledAt time.Time
}

// =============================================================================
// Recipients
// =============================================================================

// RecipientStatus is the delivery state of one campaign recipient.
type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "PENDING"
	RecipientStatusSent    RecipientStatus = "SENT"
	RecipientStatusFailed  RecipientStatus = "FAILED"
)

// CampaignRecipient joins a campaign to a submission.
type CampaignRecipient struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	SubmissionID uuid.UUID
	Email        string // Copied from the submission
	Status       RecipientStatus
	Error        string
	SentAt       *time.Time
}
