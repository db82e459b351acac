// Package domain contains core business types and interfaces.
//
// This file defines the Form domain type and its notification settings.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FormType categorizes a form for templates and dashboards.
type FormType string

const (
	FormTypeCustom   FormType = "CUSTOM"
	FormTypeFeedback FormType = "FEEDBACK"
	FormTypeContact  FormType = "CONTACT"
	FormTypeWaitlist FormType = "WAITLIST"
	FormTypeSurvey   FormType = "SURVEY"
)

// IsValid returns true if the form type is a recognized value.
func (t FormType) IsValid() bool {
	switch t {
	case FormTypeCustom, FormTypeFeedback, FormTypeContact,
		FormTypeWaitlist, FormTypeSurvey:
		return true
	}
	return false
}

// Form is a tenant-owned form definition.
type Form struct {
	ID          uuid.UUID
	UserID      string
	Name        string
	Description string
	FormType    FormType
	Settings    json.RawMessage // Opaque field definitions, may be nil
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Computed fields
	SubmissionCount int64
}

// CreateFormParams contains validated parameters for creating a form.
type CreateFormParams struct {
	UserID      string
	Name        string
	Description string
	FormType    FormType
	Settings    json.RawMessage

	// Notification settings created alongside the form.
	ConfirmationEnabled bool
	DeveloperEmail      string
}

// EmailSettings configures the notification emails sent for a form.
type EmailSettings struct {
	FormID              uuid.UUID
	ConfirmationEnabled bool   // Send a confirmation to the submitter
	DeveloperEmail      string // Empty disables developer notifications
	FromEmail           string // Optional override of the default sender
}

// NotifiesDeveloper returns true if developer notifications are configured.
func (s *EmailSettings) NotifiesDeveloper() bool {
	return s != nil && s.DeveloperEmail != ""
}
