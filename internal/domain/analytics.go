package domain

import (
	"sort"
	"strings"
	"time"
)

// DefaultAnalyticsDays is the trailing window of the daily breakdown.
const DefaultAnalyticsDays = 30

// DailyCount is the number of submissions on one UTC day.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// BucketCount is a labelled count, used for browsers and countries.
type BucketCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FormAnalytics is a linear aggregation over a form's submissions.
type FormAnalytics struct {
	TotalSubmissions int           `json:"totalSubmissions"`
	UniqueEmails     int           `json:"uniqueEmails"`
	LastSubmissionAt *time.Time    `json:"lastSubmissionAt,omitempty"`
	Daily            []DailyCount  `json:"daily"`
	Browsers         []BucketCount `json:"browsers"`
	Countries        []BucketCount `json:"countries"`
}

// ComputeFormAnalytics aggregates subs. Daily holds one entry per day of the
// trailing window ending on now's UTC date, oldest first.
func ComputeFormAnalytics(subs []Submission, now time.Time, days int) FormAnalytics {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	daily := make([]DailyCount, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		daily[i] = DailyCount{Date: d}
		index[d] = i
	}

	emails := make(map[string]struct{})
	browsers := make(map[string]int)
	countries := make(map[string]int)
	var last *time.Time

	for i := range subs {
		s := &subs[i]
		if last == nil || s.CreatedAt.After(*last) {
			t := s.CreatedAt
			last = &t
		}
		if di, ok := index[s.CreatedAt.UTC().Format(time.DateOnly)]; ok {
			daily[di].Count++
		}
		if s.Email != "" {
			emails[strings.ToLower(s.Email)] = struct{}{}
		}
		browser, country := "Unknown", CountryUnknown
		if meta, ok := MetaOf(s.Data); ok {
			if meta.Browser != "" {
				browser = meta.Browser
			}
			if meta.Country != "" {
				country = meta.Country
			}
		}
		browsers[browser]++
		countries[country]++
	}

	return FormAnalytics{
		TotalSubmissions: len(subs),
		UniqueEmails:     len(emails),
		LastSubmissionAt: last,
		Daily:            daily,
		Browsers:         sortedBuckets(browsers),
		Countries:        sortedBuckets(countries),
	}
}

// sortedBuckets orders by count descending, then name.
func sortedBuckets(m map[string]int) []BucketCount {
	out := make([]BucketCount, 0, len(m))
	for name, n := range m {
		out = append(out, BucketCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
