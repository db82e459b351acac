package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFormAnalytics(t *testing.T) {
	now := time.Date(2024, time.May, 10, 15, 0, 0, 0, time.UTC)
	withMeta := func(browser, country string) json.RawMessage {
		raw, err := EnrichSubmissionData(map[string]any{}, SubmissionMeta{Browser: browser, Country: country})
		require.NoError(t, err)
		return raw
	}

	subs := []Submission{
		{Email: "a@example.com", Data: withMeta("Chrome", "US"), CreatedAt: now.Add(-time.Hour)},
		{Email: "A@example.com", Data: withMeta("Chrome", "DE"), CreatedAt: now.AddDate(0, 0, -1)},
		{Email: "", Data: withMeta("Firefox", "US"), CreatedAt: now.AddDate(0, 0, -2)},
		{Email: "b@example.com", Data: json.RawMessage(`{}`), CreatedAt: now.AddDate(0, 0, -40)},
	}

	a := ComputeFormAnalytics(subs, now, 7)

	assert.Equal(t, 4, a.TotalSubmissions)
	assert.Equal(t, 2, a.UniqueEmails)
	require.NotNil(t, a.LastSubmissionAt)
	assert.Equal(t, now.Add(-time.Hour), *a.LastSubmissionAt)

	require.Len(t, a.Daily, 7)
	assert.Equal(t, "2024-05-04", a.Daily[0].Date)
	assert.Equal(t, "2024-05-10", a.Daily[6].Date)
	assert.Equal(t, 1, a.Daily[6].Count)
	assert.Equal(t, 1, a.Daily[5].Count)
	assert.Equal(t, 1, a.Daily[4].Count)

	assert.Equal(t, []BucketCount{{"Chrome", 2}, {"Firefox", 1}, {"Unknown", 1}}, a.Browsers)
	assert.Equal(t, []BucketCount{{"US", 2}, {"DE", 1}, {"Unknown", 1}}, a.Countries)
}

func TestComputeFormAnalytics_Empty(t *testing.T) {
	a := ComputeFormAnalytics(nil, time.Now(), 0)
	assert.Equal(t, 0, a.TotalSubmissions)
	assert.Nil(t, a.LastSubmissionAt)
	assert.Len(t, a.Daily, DefaultAnalyticsDays)
	assert.Empty(t, a.Browsers)
}
