// Package domain contains core business types and interfaces.
//
// This file defines the Submission domain type and the derived analytics
// metadata stored under the reserved "_meta" key of the submission data.
package domain

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MetaKey is the reserved key of the submission data holding derived metadata.
const MetaKey = "_meta"

// CountryUnknown is recorded when no edge header carries a country.
const CountryUnknown = "Unknown"

// countryHeaders are checked in order for a best-effort visitor country.
var countryHeaders = []string{"CF-IPCountry", "X-Vercel-IP-Country", "X-Country-Code"}

// Submission is one filled-in form record.
type Submission struct {
	ID           uuid.UUID
	FormID       uuid.UUID
	Data         json.RawMessage
	Email        string // Extracted from data.email, may be empty
	Unsubscribed bool
	CreatedAt    time.Time
}

// SubmissionMeta is the derived analytics metadata of a submission.
type SubmissionMeta struct {
	Browser   string    `json:"browser"`
	Country   string    `json:"country"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// SubmitParams contains the raw input of a form submission.
type SubmitParams struct {
	FormID    uuid.UUID
	UserID    string // Owner resolved from the API key
	Data      map[string]any
	Meta      SubmissionMeta
	RequestAt time.Time
}

// MetaFromRequest derives submission metadata from the request headers.
func MetaFromRequest(r *http.Request, now time.Time) SubmissionMeta {
	ua := r.UserAgent()
	return SubmissionMeta{
		Browser:   DetectBrowser(ua),
		Country:   countryFromHeaders(r.Header),
		Timestamp: now.UTC(),
		IP:        ClientIP(r),
		UserAgent: ua,
	}
}

func countryFromHeaders(h http.Header) string {
	for _, name := range countryHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" && v != "XX" {
			return strings.ToUpper(v)
		}
	}
	return CountryUnknown
}

// ClientIP returns the caller's address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DetectBrowser returns a coarse browser family from a User-Agent string.
// Order matters: Edge and Opera include "Chrome", Chrome includes "Safari".
func DetectBrowser(ua string) string {
	switch {
	case ua == "":
		return "Unknown"
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/") || strings.Contains(ua, "FxiOS/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/") || strings.Contains(ua, "CriOS/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return "Other"
	}
}

// ExtractEmail returns data["email"] when it is a non-empty string.
func ExtractEmail(data map[string]any) string {
	v, ok := data["email"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// EnrichSubmissionData returns data with meta stored under MetaKey.
// Any client-supplied MetaKey value is overwritten.
func EnrichSubmissionData(data map[string]any, meta SubmissionMeta) (json.RawMessage, error) {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[MetaKey] = meta
	return json.Marshal(out)
}

// StripMeta removes the MetaKey entry from stored submission data.
// Data that is not a JSON object is returned unchanged.
func StripMeta(data json.RawMessage) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return data
	}
	if _, ok := m[MetaKey]; !ok {
		return data
	}
	delete(m, MetaKey)
	out, err := json.Marshal(m)
	if err != nil {
		return data
	}
	return out
}

// MetaOf decodes the MetaKey entry of stored submission data.
func MetaOf(data json.RawMessage) (SubmissionMeta, bool) {
	var wrapper struct {
		Meta *SubmissionMeta `json:"_meta"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.Meta == nil {
		return SubmissionMeta{}, false
	}
	return *wrapper.Meta, true
}

// ListSubmissionsParams contains parameters for listing a form's submissions.
type ListSubmissionsParams struct {
	FormID      uuid.UUID
	UserID      string
	Limit       int32
	Offset      int32
	Since       *time.Time // Optional, requires date filtering access
	Until       *time.Time
	IncludeMeta bool
}

// ListSubmissionsResult contains a page of submissions.
type ListSubmissionsResult struct {
	Submissions []Submission
	Total       int64
	Limit       int32
	Offset      int32
}

// HasMore returns true if there are more results available.
func (r *ListSubmissionsResult) HasMore() bool {
	return int64(r.Offset)+int64(len(r.Submissions)) < r.Total
}
