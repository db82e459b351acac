package email

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// LinkSigner binds a click-tracking target to the sent email it was issued
// for, so /t/click only redirects to URLs that appeared in that email.
type LinkSigner struct {
	key []byte
}

func NewLinkSigner(secret string) *LinkSigner {
	return &LinkSigner{key: []byte(secret)}
}

// Sign returns the URL-safe HMAC-SHA256 of (sentEmailID, target).
func (s *LinkSigner) Sign(sentEmailID uuid.UUID, target string) string {
	return base64.RawURLEncoding.EncodeToString(s.mac(sentEmailID, target))
}

// Verify reports whether sig was produced by Sign for the same pair.
func (s *LinkSigner) Verify(sentEmailID uuid.UUID, target, sig string) bool {
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(sentEmailID, target))
}

func (s *LinkSigner) mac(sentEmailID uuid.UUID, target string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(sentEmailID.String()))
	h.Write([]byte{0})
	h.Write([]byte(target))
	return h.Sum(nil)
}

// TrackingLinks are the per-recipient URLs embedded in a campaign email.
type TrackingLinks struct {
	Open        string // 1x1 pixel
	Click       string // Redirect prefix, the target is appended as ?url=
	Unsubscribe string

	sentEmailID uuid.UUID
	signer      *LinkSigner
}

// NewTrackingLinks builds the tracking URLs for one sent email. Click URLs
// carry a signature from signer; the click handler refuses unsigned ones.
func NewTrackingLinks(baseURL string, signer *LinkSigner, sentEmailID uuid.UUID) TrackingLinks {
	base := strings.TrimSuffix(baseURL, "/")
	id := sentEmailID.String()
	return TrackingLinks{
		Open:        fmt.Sprintf("%s/t/open/%s", base, id),
		Click:       fmt.Sprintf("%s/t/click/%s", base, id),
		Unsubscribe: fmt.Sprintf("%s/unsubscribe/%s", base, id),
		sentEmailID: sentEmailID,
		signer:      signer,
	}
}

// ClickURL returns the tracked redirect URL for target.
func (l TrackingLinks) ClickURL(target string) string {
	if l.Click == "" {
		return target
	}
	u := l.Click + "?url=" + url.QueryEscape(target)
	if l.signer != nil {
		u += "&sig=" + l.signer.Sign(l.sentEmailID, target)
	}
	return u
}

var (
	hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// looksLikeHTML reports whether content carries markup of its own.
func looksLikeHTML(content string) bool {
	return strings.Contains(content, "<") && strings.Contains(content, ">")
}

// RenderCampaignHTML converts campaign content into the HTML body of an email.
// Plain text is escaped with line breaks preserved. Absolute links in HTML
// content are rewritten through the click tracker.
func RenderCampaignHTML(content string, links TrackingLinks) template.HTML {
	if !looksLikeHTML(content) {
		escaped := template.HTMLEscapeString(content)
		escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
		return template.HTML("<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>")
	}

	rewritten := hrefPattern.ReplaceAllStringFunc(content, func(attr string) string {
		target := html.UnescapeString(hrefPattern.FindStringSubmatch(attr)[1])
		return `href="` + template.HTMLEscapeString(links.ClickURL(target)) + `"`
	})
	return template.HTML(rewritten)
}

// RenderCampaignText returns the plain text alternative of campaign content.
func RenderCampaignText(content string, links TrackingLinks) string {
	text := content
	if looksLikeHTML(content) {
		text = html.UnescapeString(tagPattern.ReplaceAllString(content, ""))
	}
	text = strings.TrimSpace(text)
	if links.Unsubscribe != "" {
		text += "\n\n--\nUnsubscribe: " + links.Unsubscribe
	}
	return text
}
