package mock

import (
	"sort"

	"github.com/google/uuid"
	"github.com/mantlz/mantlz/internal/repository"
)

// UserCounts is a snapshot of how many rows a user owns per table.
type UserCounts struct {
	Quotas        int
	Forms         int
	Submissions   int
	Campaigns     int
	Recipients    int
	SentEmails    int
	Logs          int
	EmailSettings int
	APIKeys       int
}

// CountsFor returns the number of rows owned by userID in every table.
func (s *Store) CountsFor(userID string) UserCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c UserCounts
	forms := make(map[uuid.UUID]bool)
	for _, f := range s.t.forms {
		if f.UserID == userID {
			c.Forms++
			forms[f.ID] = true
		}
	}
	for _, q := range s.t.quotas {
		if q.UserID == userID {
			c.Quotas++
		}
	}
	for _, sub := range s.t.submissions {
		if forms[sub.FormID] {
			c.Submissions++
		}
	}
	campaigns := make(map[uuid.UUID]bool)
	for _, cp := range s.t.campaigns {
		if cp.UserID == userID {
			c.Campaigns++
			campaigns[cp.ID] = true
		}
	}
	for _, r := range s.t.recipients {
		if campaigns[r.CampaignID] {
			c.Recipients++
		}
	}
	for _, e := range s.t.sentEmails {
		if e.UserID == userID {
			c.SentEmails++
		}
	}
	for _, l := range s.t.logs {
		if forms[l.FormID] {
			c.Logs++
		}
	}
	for formID := range s.t.emailSettings {
		if forms[formID] {
			c.EmailSettings++
		}
	}
	for _, k := range s.t.apiKeys {
		if k.UserID == userID {
			c.APIKeys++
		}
	}
	return c
}

// QuotasFor returns all quota rows of a user, oldest period first.
func (s *Store) QuotasFor(userID string) []repository.Quota {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Quota
	for _, q := range s.t.quotas {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// NotificationLogs returns all notification logs in insertion order.
func (s *Store) NotificationLogs() []repository.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.NotificationLog, 0, len(s.t.logs))
	for _, l := range s.t.logs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out
}

// SentEmails returns all tracking rows in insertion order.
func (s *Store) SentEmails() []repository.SentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.SentEmail, 0, len(s.t.sentEmails))
	for _, e := range s.t.sentEmails {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out
}
