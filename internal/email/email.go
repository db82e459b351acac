// Package email provides email sending functionality for Mantlz.
//
// Sender is the transport contract (SMTP in production, a fake in tests).
// Mailer renders the application's emails from embedded templates and hands
// them to a Sender.
package email

import (
	"context"
	"errors"
	"strings"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg).
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// =============================================================================
// Email Data Types
// =============================================================================

// Message represents a single email message.
type Message struct {
	From    string // Sender address, DefaultFromEmail when empty
	To      string // Recipient email address
	Subject string // Email subject line
	HTML    string // HTML content of the email
	Text    string // Plain text fallback content
	ReplyTo string // Optional Reply-To address
}

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("email: message has no recipient")

// Validate checks that a message can be sent.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if strings.ContainsAny(m.To+m.Subject+m.From+m.ReplyTo, "\r\n") {
		return errors.New("email: header values must not contain line breaks")
	}
	return nil
}

// =============================================================================
// Configuration Types
// =============================================================================

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

// =============================================================================
// Common Constants
// =============================================================================

const (
	// DefaultFromEmail is the default sender email for transactional emails.
	DefaultFromEmail = "noreply@mantlz.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Mantlz"
)
