package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mantlz/mantlz/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// =============================================================================
// Mailer
// =============================================================================

// Mailer renders Mantlz's emails and delivers them through a Sender.
type Mailer struct {
	sender    Sender
	baseURL   string
	signer    *LinkSigner
	templates *template.Template
	logger    *slog.Logger
}

// NewMailer parses the embedded templates and returns a Mailer. signer signs
// click-tracking links in campaign emails.
func NewMailer(sender Sender, baseURL string, signer *LinkSigner, logger *slog.Logger) (*Mailer, error) {
	templates, err := template.New("email").Funcs(emailTemplateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &Mailer{
		sender:    sender,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		signer:    signer,
		templates: templates,
		logger:    logger,
	}, nil
}

// BaseURL returns the public origin used for links in emails.
func (m *Mailer) BaseURL() string {
	return m.baseURL
}

// TrackingLinks returns the signed open, click and unsubscribe URLs for one
// sent campaign email.
func (m *Mailer) TrackingLinks(sentEmailID uuid.UUID) TrackingLinks {
	return NewTrackingLinks(m.baseURL, m.signer, sentEmailID)
}

// =============================================================================
// Submission notifications
// =============================================================================

// SubmissionConfirmation is sent to the person who filled in a form.
type SubmissionConfirmation struct {
	To          string
	FormName    string
	SubmittedAt time.Time
	From        string // Optional per-form sender override
}

// SendSubmissionConfirmation thanks a submitter for their response.
func (m *Mailer) SendSubmissionConfirmation(ctx context.Context, c SubmissionConfirmation) error {
	subject := fmt.Sprintf("Thanks for your submission to %s", c.FormName)
	data := map[string]interface{}{
		"Subject":     subject,
		"FormName":    c.FormName,
		"SubmittedAt": c.SubmittedAt,
	}

	htmlBody, err := m.renderTemplate("submission_confirmation.html", data)
	if err != nil {
		return fmt.Errorf("failed to render submission confirmation template: %w", err)
	}

	textBody := fmt.Sprintf(`Thanks for your submission!

We received your response to %s.

- The Mantlz Team`, c.FormName)

	return m.sender.Send(ctx, Message{
		From:    c.From,
		To:      c.To,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// Field is one name/value pair of submission data.
type Field struct {
	Name  string
	Value string
}

// DeveloperNotification tells a form owner about a new submission.
type DeveloperNotification struct {
	To          string
	FormID      string
	FormName    string
	Data        map[string]any
	SubmittedAt time.Time
	ReplyTo     string // Submitter email, if any
}

// SendDeveloperNotification forwards a submission to the form's developer address.
func (m *Mailer) SendDeveloperNotification(ctx context.Context, n DeveloperNotification) error {
	subject := fmt.Sprintf("New submission: %s", n.FormName)
	fields := submissionFields(n.Data)
	dashboardURL := ""
	if m.baseURL != "" && n.FormID != "" {
		dashboardURL = fmt.Sprintf("%s/dashboard/forms/%s", m.baseURL, n.FormID)
	}

	data := map[string]interface{}{
		"Subject":      subject,
		"FormName":     n.FormName,
		"Fields":       fields,
		"SubmittedAt":  n.SubmittedAt,
		"DashboardURL": dashboardURL,
	}

	htmlBody, err := m.renderTemplate("developer_notification.html", data)
	if err != nil {
		return fmt.Errorf("failed to render developer notification template: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "New submission for %s\n\n", n.FormName)
	for _, f := range fields {
		fmt.Fprintf(&text, "%s: %s\n", f.Name, f.Value)
	}

	return m.sender.Send(ctx, Message{
		To:      n.To,
		Subject: subject,
		HTML:    htmlBody,
		Text:    text.String(),
		ReplyTo: n.ReplyTo,
	})
}

// submissionFields flattens submission data into sorted display fields,
// leaving out the derived metadata.
func submissionFields(data map[string]any) []Field {
	fields := make([]Field, 0, len(data))
	for k, v := range data {
		if k == domain.MetaKey {
			continue
		}
		fields = append(fields, Field{Name: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// =============================================================================
// Billing-cycle emails
// =============================================================================

// QuotaReset is sent after a user's data has been cleared for a new period.
type QuotaReset struct {
	To          string
	Name        string
	Plan        domain.Plan
	Period      domain.Period // The period that was cleared
	Submissions int64
	Limit       int64 // The plan's monthly submission limit
	Forms       int64
	Campaigns   int64
	ArchiveURL  string // Empty when there was nothing to export or the export failed
}

// SendQuotaReset notifies a user that their monthly data was reset.
func (m *Mailer) SendQuotaReset(ctx context.Context, r QuotaReset) error {
	subject := "Your Mantlz quota has been reset"
	data := map[string]interface{}{
		"Subject":     subject,
		"Name":        r.Name,
		"PlanName":    r.Plan.DisplayName(),
		"Period":      r.Period.Start().Format("January 2006"),
		"Submissions": r.Submissions,
		"Limit":       r.Limit,
		"Forms":       r.Forms,
		"Campaigns":   r.Campaigns,
		"ArchiveURL":  r.ArchiveURL,
	}

	htmlBody, err := m.renderTemplate("quota_reset.html", data)
	if err != nil {
		return fmt.Errorf("failed to render quota reset template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

A new billing period has started on your %s plan. Your forms, submissions and campaigns from %s have been cleared.

Last period you received %d of %d submissions across %d forms and sent %d campaigns.
`, r.Name, r.Plan.DisplayName(), r.Period.Start().Format("January 2006"), r.Submissions, r.Limit, r.Forms, r.Campaigns)
	if r.ArchiveURL != "" {
		textBody += fmt.Sprintf("\nDownload an archive of last period's submissions:\n%s\n", r.ArchiveURL)
	}

	return m.sender.Send(ctx, Message{
		To:      r.To,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// QuotaWarning is sent shortly before the monthly reset.
type QuotaWarning struct {
	To       string
	Name     string
	Plan     domain.Plan
	Used     int64
	Limit    int64
	ResetsOn time.Time
	DaysLeft int
}

// SendQuotaWarning warns a user that their data will be cleared soon.
func (m *Mailer) SendQuotaWarning(ctx context.Context, w QuotaWarning) error {
	subject := fmt.Sprintf("Your Mantlz data resets in %d days", w.DaysLeft)
	dashboardURL := ""
	if m.baseURL != "" {
		dashboardURL = m.baseURL + "/dashboard"
	}
	data := map[string]interface{}{
		"Subject":      subject,
		"Name":         w.Name,
		"PlanName":     w.Plan.DisplayName(),
		"Used":         w.Used,
		"Limit":        w.Limit,
		"Percent":      domain.UsagePercent(w.Used, w.Limit),
		"ResetsOn":     w.ResetsOn,
		"DaysLeft":     w.DaysLeft,
		"DashboardURL": dashboardURL,
	}

	htmlBody, err := m.renderTemplate("quota_warning.html", data)
	if err != nil {
		return fmt.Errorf("failed to render quota warning template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

You have used %d of %d submissions (%d%%) this month on your %s plan.

On %s your forms, submissions and campaigns will be cleared. Export anything you want to keep before then.
`, w.Name, w.Used, w.Limit, domain.UsagePercent(w.Used, w.Limit), w.Plan.DisplayName(), w.ResetsOn.Format("January 2, 2006"))

	return m.sender.Send(ctx, Message{
		To:      w.To,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// =============================================================================
// Campaigns
// =============================================================================

// CampaignEmail is one rendered campaign message for one recipient.
type CampaignEmail struct {
	To      string
	Subject string
	Content string
	Links   TrackingLinks
}

// SendCampaign renders a campaign body with tracking and sends it.
func (m *Mailer) SendCampaign(ctx context.Context, c CampaignEmail) error {
	data := map[string]interface{}{
		"Subject":        c.Subject,
		"Body":           RenderCampaignHTML(c.Content, c.Links),
		"UnsubscribeURL": c.Links.Unsubscribe,
		"OpenURL":        c.Links.Open,
	}

	htmlBody, err := m.renderTemplate("campaign.html", data)
	if err != nil {
		return fmt.Errorf("failed to render campaign template: %w", err)
	}

	return m.sender.Send(ctx, Message{
		To:      c.To,
		Subject: c.Subject,
		HTML:    htmlBody,
		Text:    RenderCampaignText(c.Content, c.Links),
	})
}

// =============================================================================
// Template Rendering
// =============================================================================

// renderTemplate renders an email template with the given data.
func (m *Mailer) renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// emailTemplateFuncs returns template functions for email templates.
func emailTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"currentYear": func() int {
			return time.Now().Year()
		},
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("Jan 2, 2006 at 15:04 UTC")
		},
		"formatDate": func(t time.Time) string {
			return t.UTC().Format("January 2, 2006")
		},
	}
}
