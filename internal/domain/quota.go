package domain

import (
	"fmt"
	"time"
)

// Period is a calendar month used as the quota accounting window.
// Periods are always derived in UTC.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Previous returns the period immediately before p.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	return PeriodOf(p.End())
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Quota is the per-user, per-period usage ledger entry.
type Quota struct {
	UserID          string
	Period          Period
	SubmissionCount int64
	FormCount       int64
	CampaignCount   int64
	EmailsSent      int64
	EmailsOpened    int64
	EmailsClicked   int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QuotaDelta is a relative update applied to the current period's row.
// Zero fields leave the corresponding counter untouched.
type QuotaDelta struct {
	Forms       int64
	Submissions int64
	Campaigns   int64
	Emails      int64
	Opens       int64
	Clicks      int64
}

// IsZero reports whether the delta changes nothing.
func (d QuotaDelta) IsZero() bool {
	return d == QuotaDelta{}
}

// UsageCounter is a used/limit pair for display.
type UsageCounter struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// QuotaUsage summarizes a user's current period against their plan.
type QuotaUsage struct {
	Plan        Plan         `json:"plan"`
	Period      string       `json:"period"`
	Forms       UsageCounter `json:"forms"`
	Submissions UsageCounter `json:"submissions"`
	Campaigns   UsageCounter `json:"campaigns"`
	EmailsSent  int64        `json:"emailsSent"`
	ResetsOn    time.Time    `json:"resetsOn"`
	Limits      PlanQuota    `json:"limits"`
}

// =============================================================================
// Billing calendar
// =============================================================================

// WarningLeadDays is how many days before the monthly reset users are warned.
const WarningLeadDays = 2

// IsResetDay reports whether t falls on the first day of a month (UTC).
func IsResetDay(t time.Time) bool {
	return t.UTC().Day() == 1
}

// NextResetAt returns the start of the period after the one containing t.
func NextResetAt(t time.Time) time.Time {
	return PeriodOf(t).End()
}

// WarningDate returns the calendar day on which the pre-reset warning for
// the period containing t is sent: the next reset minus WarningLeadDays.
func WarningDate(t time.Time) time.Time {
	return NextResetAt(t).AddDate(0, 0, -WarningLeadDays)
}

// IsWarningDay reports whether t falls on the warning date of its period.
func IsWarningDay(t time.Time) bool {
	t = t.UTC()
	w := WarningDate(t)
	return t.Year() == w.Year() && t.YearDay() == w.YearDay()
}

// DaysUntilReset returns the number of whole days from t's calendar day to
// the next reset.
func DaysUntilReset(t time.Time) int {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(NextResetAt(t).Sub(day).Hours() / 24)
}

// WarningThresholdPercent is the usage share at or below which no warning
// is sent.
const WarningThresholdPercent = 10

// AboveWarningThreshold reports whether used is strictly more than
// WarningThresholdPercent of limit.
func AboveWarningThreshold(used, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return used*100 > limit*WarningThresholdPercent
}

// UsagePercent returns used as a whole percentage of limit.
func UsagePercent(used, limit int64) int {
	if limit <= 0 {
		return 0
	}
	return int(used * 100 / limit)
}
