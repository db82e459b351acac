// Package mock provides an in-memory repository.Store for tests.
//
// Transactions are serialized and roll back by restoring a snapshot, so a
// failing ExecTx leaves no partial writes behind. Writes made outside a
// transaction while one is open are lost if that transaction rolls back.
package mock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mantlz/mantlz/internal/repository"
)

// ErrUniqueViolation is returned where PostgreSQL would raise 23505.
var ErrUniqueViolation = errors.New("duplicate key value violates unique constraint")

type tables struct {
	users         map[string]repository.User
	quotas        map[uuid.UUID]repository.Quota
	forms         map[uuid.UUID]repository.Form
	emailSettings map[uuid.UUID]repository.EmailSetting // keyed by form id
	submissions   map[uuid.UUID]repository.Submission
	logs          map[uuid.UUID]repository.NotificationLog
	campaigns     map[uuid.UUID]repository.Campaign
	recipients    map[uuid.UUID]repository.CampaignRecipient
	sentEmails    map[uuid.UUID]repository.SentEmail
	apiKeys       map[uuid.UUID]repository.ApiKey
	jobs          map[uuid.UUID]repository.Job
	userSeq       map[string]int64
	seq           map[uuid.UUID]int64 // insertion order, used to break ties
}

func newTables() *tables {
	return &tables{
		users:         make(map[string]repository.User),
		quotas:        make(map[uuid.UUID]repository.Quota),
		forms:         make(map[uuid.UUID]repository.Form),
		emailSettings: make(map[uuid.UUID]repository.EmailSetting),
		submissions:   make(map[uuid.UUID]repository.Submission),
		logs:          make(map[uuid.UUID]repository.NotificationLog),
		campaigns:     make(map[uuid.UUID]repository.Campaign),
		recipients:    make(map[uuid.UUID]repository.CampaignRecipient),
		sentEmails:    make(map[uuid.UUID]repository.SentEmail),
		apiKeys:       make(map[uuid.UUID]repository.ApiKey),
		jobs:          make(map[uuid.UUID]repository.Job),
		userSeq:       make(map[string]int64),
		seq:           make(map[uuid.UUID]int64),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *tables) clone() *tables {
	return &tables{
		users:         cloneMap(t.users),
		quotas:        cloneMap(t.quotas),
		forms:         cloneMap(t.forms),
		emailSettings: cloneMap(t.emailSettings),
		submissions:   cloneMap(t.submissions),
		logs:          cloneMap(t.logs),
		campaigns:     cloneMap(t.campaigns),
		recipients:    cloneMap(t.recipients),
		sentEmails:    cloneMap(t.sentEmails),
		apiKeys:       cloneMap(t.apiKeys),
		jobs:          cloneMap(t.jobs),
		userSeq:       cloneMap(t.userSeq),
		seq:           cloneMap(t.seq),
	}
}

// Store is an in-memory repository.Store.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	t    *tables
	next int64

	failures map[string]func(arg any) error
	calls    map[string]int

	// Now is the clock used for created_at and NOW() columns.
	Now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		t:        newTables(),
		failures: make(map[string]func(arg any) error),
		calls:    make(map[string]int),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named method return fn(arg) when fn returns non-nil.
// The argument passed to fn is the method's parameter.
func (s *Store) FailOn(method string, fn func(arg any) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = fn
}

// Calls returns how many times the named method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// begin records the call, runs the failure hook and locks the store.
// The caller must call s.mu.Unlock when err is nil.
func (s *Store) begin(method string, arg any) error {
	s.mu.Lock()
	s.calls[method]++
	fn := s.failures[method]
	s.mu.Unlock()

	if fn != nil {
		if err := fn(arg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	return nil
}

func (s *Store) stamp(id uuid.UUID) {
	s.next++
	s.t.seq[id] = s.next
}

// ExecTx runs fn against the store, restoring the previous state if fn fails.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if err := s.begin("ExecTx", nil); err != nil {
		return err
	}
	s.mu.Unlock()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.t.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.t = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id string) (repository.User, error) {
	if err := s.begin("GetUser", id); err != nil {
		return repository.User{}, err
	}
	defer s.mu.Unlock()
	u, ok := s.t.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID string) (repository.User, error) {
	if err := s.begin("GetUserByStripeCustomerID", stripeCustomerID); err != nil {
		return repository.User{}, err
	}
	defer s.mu.Unlock()
	for _, u := range s.t.users {
		if u.StripeCustomerID.Valid && u.StripeCustomerID.String == stripeCustomerID {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (s *Store) UpsertUser(ctx context.Context, arg repository.UpsertUserParams) (repository.User, error) {
	if err := s.begin("UpsertUser", arg); err != nil {
		return repository.User{}, err
	}
	defer s.mu.Unlock()
	now := s.Now()
	u, ok := s.t.users[arg.ID]
	if !ok {
		u = repository.User{
			ID:         arg.ID,
			Plan:       arg.Plan,
			QuotaLimit: arg.QuotaLimit,
			CreatedAt:  now,
		}
		s.next++
		s.t.userSeq[arg.ID] = s.next
	}
	u.Email = arg.Email
	if arg.FirstName.Valid {
		u.FirstName = arg.FirstName
	}
	if arg.LastName.Valid {
		u.LastName = arg.LastName
	}
	u.UpdatedAt = now
	s.t.users[arg.ID] = u
	return u, nil
}

func (s *Store) UpdateUserPlan(ctx context.Context, arg repository.UpdateUserPlanParams) error {
	if err := s.begin("UpdateUserPlan", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	u, ok := s.t.users[arg.ID]
	if !ok {
		return nil
	}
	u.Plan = arg.Plan
	u.QuotaLimit = arg.QuotaLimit
	u.UpdatedAt = s.Now()
	s.t.users[arg.ID] = u
	return nil
}

func (s *Store) UpdateUserStripeCustomer(ctx context.Context, arg repository.UpdateUserStripeCustomerParams) error {
	if err := s.begin("UpdateUserStripeCustomer", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	u, ok := s.t.users[arg.ID]
	if !ok {
		return nil
	}
	u.StripeCustomerID = arg.StripeCustomerID
	s.t.users[arg.ID] = u
	return nil
}

// =============================================================================
// Quotas
// =============================================================================

func (s *Store) findQuota(userID string, year, month int32) (repository.Quota, bool) {
	for _, q := range s.t.quotas {
		if q.UserID == userID && q.Year == year && q.Month == month {
			return q, true
		}
	}
	return repository.Quota{}, false
}

func (s *Store) GetQuota(ctx context.Context, arg repository.GetQuotaParams) (repository.Quota, error) {
	if err := s.begin("GetQuota", arg); err != nil {
		return repository.Quota{}, err
	}
	defer s.mu.Unlock()
	q, ok := s.findQuota(arg.UserID, arg.Year, arg.Month)
	if !ok {
		return repository.Quota{}, sql.ErrNoRows
	}
	return q, nil
}

func (s *Store) GetQuotaForUpdate(ctx context.Context, arg repository.GetQuotaParams) (repository.Quota, error) {
	if err := s.begin("GetQuotaForUpdate", arg); err != nil {
		return repository.Quota{}, err
	}
	defer s.mu.Unlock()
	q, ok := s.findQuota(arg.UserID, arg.Year, arg.Month)
	if !ok {
		return repository.Quota{}, sql.ErrNoRows
	}
	return q, nil
}

func (s *Store) insertQuota(arg repository.CreateQuotaParams) repository.Quota {
	now := s.Now()
	q := repository.Quota{
		ID:            uuid.New(),
		UserID:        arg.UserID,
		Year:          arg.Year,
		Month:         arg.Month,
		FormCount:     arg.FormCount,
		CampaignCount: arg.CampaignCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.t.quotas[q.ID] = q
	s.stamp(q.ID)
	return q
}

func (s *Store) CreateQuotaIfAbsent(ctx context.Context, arg repository.CreateQuotaParams) (int64, error) {
	if err := s.begin("CreateQuotaIfAbsent", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	if _, ok := s.findQuota(arg.UserID, arg.Year, arg.Month); ok {
		return 0, nil
	}
	s.insertQuota(arg)
	return 1, nil
}

func (s *Store) CreateQuota(ctx context.Context, arg repository.CreateQuotaParams) (repository.Quota, error) {
	if err := s.begin("CreateQuota", arg); err != nil {
		return repository.Quota{}, err
	}
	defer s.mu.Unlock()
	if _, ok := s.findQuota(arg.UserID, arg.Year, arg.Month); ok {
		return repository.Quota{}, fmt.Errorf("quotas (user_id, year, month): %w", ErrUniqueViolation)
	}
	return s.insertQuota(arg), nil
}

func clampAdd(v, d int32) int32 {
	if v+d < 0 {
		return 0
	}
	return v + d
}

func (s *Store) IncrementQuota(ctx context.Context, arg repository.IncrementQuotaParams) (int64, error) {
	if err := s.begin("IncrementQuota", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	q, ok := s.findQuota(arg.UserID, arg.Year, arg.Month)
	if !ok {
		return 0, nil
	}
	q.SubmissionCount = clampAdd(q.SubmissionCount, arg.Submissions)
	q.FormCount = clampAdd(q.FormCount, arg.Forms)
	q.CampaignCount = clampAdd(q.CampaignCount, arg.Campaigns)
	q.EmailsSent += arg.Emails
	q.EmailsOpened += arg.Opens
	q.EmailsClicked += arg.Clicks
	q.UpdatedAt = s.Now()
	s.t.quotas[q.ID] = q
	return 1, nil
}

func (s *Store) DeleteQuotasByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteQuotasByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, q := range s.t.quotas {
		if q.UserID == userID {
			delete(s.t.quotas, id)
		}
	}
	return nil
}

func (s *Store) candidates(arg repository.PeriodParams, keep func(repository.Quota) bool) []repository.QuotaCandidateRow {
	var rows []repository.QuotaCandidateRow
	for _, q := range s.t.quotas {
		if q.Year != arg.Year || q.Month != arg.Month || !keep(q) {
			continue
		}
		u, ok := s.t.users[q.UserID]
		if !ok {
			continue
		}
		rows = append(rows, repository.QuotaCandidateRow{
			UserID:          u.ID,
			Email:           u.Email,
			FirstName:       u.FirstName,
			Plan:            u.Plan,
			SubmissionCount: q.SubmissionCount,
			FormCount:       q.FormCount,
			CampaignCount:   q.CampaignCount,
		})
	}
	return rows
}

func (s *Store) ListResetCandidates(ctx context.Context, arg repository.PeriodParams) ([]repository.QuotaCandidateRow, error) {
	if err := s.begin("ListResetCandidates", arg); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	rows := s.candidates(arg, func(repository.Quota) bool { return true })
	sort.Slice(rows, func(i, j int) bool {
		return s.t.userSeq[rows[i].UserID] > s.t.userSeq[rows[j].UserID]
	})
	return rows, nil
}

func (s *Store) ListWarningCandidates(ctx context.Context, arg repository.PeriodParams) ([]repository.QuotaCandidateRow, error) {
	if err := s.begin("ListWarningCandidates", arg); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	rows := s.candidates(arg, func(q repository.Quota) bool { return q.SubmissionCount > 0 })
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SubmissionCount != rows[j].SubmissionCount {
			return rows[i].SubmissionCount > rows[j].SubmissionCount
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

// =============================================================================
// Forms
// =============================================================================

func (s *Store) CreateForm(ctx context.Context, arg repository.CreateFormParams) (repository.Form, error) {
	if err := s.begin("CreateForm", arg); err != nil {
		return repository.Form{}, err
	}
	defer s.mu.Unlock()
	if _, ok := s.t.forms[arg.ID]; ok {
		return repository.Form{}, fmt.Errorf("forms (id): %w", ErrUniqueViolation)
	}
	now := s.Now()
	f := repository.Form{
		ID:          arg.ID,
		UserID:      arg.UserID,
		Name:        arg.Name,
		Description: arg.Description,
		FormType:    arg.FormType,
		Settings:    arg.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.t.forms[f.ID] = f
	s.stamp(f.ID)
	return f, nil
}

func (s *Store) GetForm(ctx context.Context, id uuid.UUID) (repository.Form, error) {
	if err := s.begin("GetForm", id); err != nil {
		return repository.Form{}, err
	}
	defer s.mu.Unlock()
	f, ok := s.t.forms[id]
	if !ok {
		return repository.Form{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *Store) GetFormByIDAndUser(ctx context.Context, arg repository.GetFormByIDAndUserParams) (repository.Form, error) {
	if err := s.begin("GetFormByIDAndUser", arg); err != nil {
		return repository.Form{}, err
	}
	defer s.mu.Unlock()
	f, ok := s.t.forms[arg.ID]
	if !ok || f.UserID != arg.UserID {
		return repository.Form{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *Store) userForms(userID string) []repository.Form {
	var out []repository.Form
	for _, f := range s.t.forms {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] > s.t.seq[out[j].ID] })
	return out
}

func (s *Store) ListFormsByUser(ctx context.Context, userID string) ([]repository.ListFormsByUserRow, error) {
	if err := s.begin("ListFormsByUser", userID); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var rows []repository.ListFormsByUserRow
	for _, f := range s.userForms(userID) {
		var n int64
		for _, sub := range s.t.submissions {
			if sub.FormID == f.ID {
				n++
			}
		}
		rows = append(rows, repository.ListFormsByUserRow{Form: f, SubmissionCount: n})
	}
	return rows, nil
}

func (s *Store) ListFormIDsByUser(ctx context.Context, userID string) ([]uuid.UUID, error) {
	if err := s.begin("ListFormIDsByUser", userID); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for _, f := range s.userForms(userID) {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// deleteFormCascade mirrors the ON DELETE CASCADE foreign keys of forms.
func (s *Store) deleteFormCascade(formID uuid.UUID) {
	delete(s.t.forms, formID)
	delete(s.t.emailSettings, formID)
	for id, sub := range s.t.submissions {
		if sub.FormID == formID {
			delete(s.t.submissions, id)
		}
	}
	for id, l := range s.t.logs {
		if l.FormID == formID {
			delete(s.t.logs, id)
		}
	}
	for id, c := range s.t.campaigns {
		if c.FormID == formID {
			s.deleteCampaignCascade(id)
		}
	}
}

func (s *Store) deleteCampaignCascade(campaignID uuid.UUID) {
	delete(s.t.campaigns, campaignID)
	for id, r := range s.t.recipients {
		if r.CampaignID == campaignID {
			delete(s.t.recipients, id)
		}
	}
	for id, e := range s.t.sentEmails {
		if e.CampaignID == campaignID {
			delete(s.t.sentEmails, id)
		}
	}
}

func (s *Store) DeleteFormByIDAndUser(ctx context.Context, arg repository.GetFormByIDAndUserParams) (int64, error) {
	if err := s.begin("DeleteFormByIDAndUser", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	f, ok := s.t.forms[arg.ID]
	if !ok || f.UserID != arg.UserID {
		return 0, nil
	}
	s.deleteFormCascade(f.ID)
	return 1, nil
}

func (s *Store) DeleteFormsByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteFormsByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, f := range s.userForms(userID) {
		s.deleteFormCascade(f.ID)
	}
	return nil
}

func (s *Store) CreateEmailSettings(ctx context.Context, arg repository.CreateEmailSettingsParams) (repository.EmailSetting, error) {
	if err := s.begin("CreateEmailSettings", arg); err != nil {
		return repository.EmailSetting{}, err
	}
	defer s.mu.Unlock()
	if _, ok := s.t.emailSettings[arg.FormID]; ok {
		return repository.EmailSetting{}, fmt.Errorf("email_settings (form_id): %w", ErrUniqueViolation)
	}
	es := repository.EmailSetting{
		ID:                  arg.ID,
		FormID:              arg.FormID,
		ConfirmationEnabled: arg.ConfirmationEnabled,
		DeveloperEmail:      arg.DeveloperEmail,
		FromEmail:           arg.FromEmail,
		CreatedAt:           s.Now(),
	}
	s.t.emailSettings[arg.FormID] = es
	return es, nil
}

func (s *Store) GetEmailSettingsByForm(ctx context.Context, formID uuid.UUID) (repository.EmailSetting, error) {
	if err := s.begin("GetEmailSettingsByForm", formID); err != nil {
		return repository.EmailSetting{}, err
	}
	defer s.mu.Unlock()
	es, ok := s.t.emailSettings[formID]
	if !ok {
		return repository.EmailSetting{}, sql.ErrNoRows
	}
	return es, nil
}

func (s *Store) DeleteEmailSettingsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	if err := s.begin("DeleteEmailSettingsByFormIDs", formIDs); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for _, id := range formIDs {
		delete(s.t.emailSettings, id)
	}
	return nil
}

// =============================================================================
// Submissions
// =============================================================================

func (s *Store) CreateSubmission(ctx context.Context, arg repository.CreateSubmissionParams) (repository.Submission, error) {
	if err := s.begin("CreateSubmission", arg); err != nil {
		return repository.Submission{}, err
	}
	defer s.mu.Unlock()
	if _, ok := s.t.forms[arg.FormID]; !ok {
		return repository.Submission{}, errors.New("submissions (form_id): foreign key violation")
	}
	createdAt := arg.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.Now()
	}
	sub := repository.Submission{
		ID:        arg.ID,
		FormID:    arg.FormID,
		Data:      arg.Data,
		Email:     arg.Email,
		IpAddress: arg.IpAddress,
		CreatedAt: createdAt,
	}
	s.t.submissions[sub.ID] = sub
	s.stamp(sub.ID)
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (repository.Submission, error) {
	if err := s.begin("GetSubmission", id); err != nil {
		return repository.Submission{}, err
	}
	defer s.mu.Unlock()
	sub, ok := s.t.submissions[id]
	if !ok {
		return repository.Submission{}, sql.ErrNoRows
	}
	return sub, nil
}

// formSubmissions returns the form's submissions newest first.
func (s *Store) formSubmissions(formID uuid.UUID, since, until sql.NullTime) []repository.Submission {
	var out []repository.Submission
	for _, sub := range s.t.submissions {
		if sub.FormID != formID {
			continue
		}
		if since.Valid && sub.CreatedAt.Before(since.Time) {
			continue
		}
		if until.Valid && !sub.CreatedAt.Before(until.Time) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.t.seq[out[i].ID] > s.t.seq[out[j].ID]
	})
	return out
}

func page[T any](items []T, limit, offset int32) []T {
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) ListSubmissionsByForm(ctx context.Context, arg repository.ListSubmissionsByFormParams) ([]repository.Submission, error) {
	if err := s.begin("ListSubmissionsByForm", arg); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return page(s.formSubmissions(arg.FormID, arg.Since, arg.Until), arg.Limit, arg.Offset), nil
}

func (s *Store) CountSubmissionsByForm(ctx context.Context, arg repository.CountSubmissionsByFormParams) (int64, error) {
	if err := s.begin("CountSubmissionsByForm", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return int64(len(s.formSubmissions(arg.FormID, arg.Since, arg.Until))), nil
}

func (s *Store) ListAllSubmissionsByForm(ctx context.Context, formID uuid.UUID) ([]repository.Submission, error) {
	if err := s.begin("ListAllSubmissionsByForm", formID); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.formSubmissions(formID, sql.NullTime{}, sql.NullTime{}), nil
}

func (s *Store) ListRecipientCandidates(ctx context.Context, arg repository.ListRecipientCandidatesParams) ([]repository.Submission, error) {
	if err := s.begin("ListRecipientCandidates", arg); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.Submission
	for _, sub := range s.formSubmissions(arg.FormID, sql.NullTime{}, sql.NullTime{}) {
		if sub.Email.Valid && sub.Email.String != "" && !sub.Unsubscribed {
			out = append(out, sub)
		}
	}
	return page(out, arg.Limit, 0), nil
}

func (s *Store) MarkSubmissionUnsubscribed(ctx context.Context, id uuid.UUID) error {
	if err := s.begin("MarkSubmissionUnsubscribed", id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if sub, ok := s.t.submissions[id]; ok {
		sub.Unsubscribed = true
		s.t.submissions[id] = sub
	}
	return nil
}

func inSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (s *Store) ListSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) ([]repository.Submission, error) {
	if err := s.begin("ListSubmissionsByFormIDs", formIDs); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	set := inSet(formIDs)
	var out []repository.Submission
	for _, sub := range s.t.submissions {
		if set[sub.FormID] {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out, nil
}

func (s *Store) DeleteSubmissionsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	if err := s.begin("DeleteSubmissionsByFormIDs", formIDs); err != nil {
		return err
	}
	defer s.mu.Unlock()
	set := inSet(formIDs)
	for id, sub := range s.t.submissions {
		if set[sub.FormID] {
			delete(s.t.submissions, id)
		}
	}
	return nil
}

// =============================================================================
// Notification logs
// =============================================================================

func (s *Store) CreateNotificationLog(ctx context.Context, arg repository.CreateNotificationLogParams) (repository.NotificationLog, error) {
	if err := s.begin("CreateNotificationLog", arg); err != nil {
		return repository.NotificationLog{}, err
	}
	defer s.mu.Unlock()
	l := repository.NotificationLog{
		ID:           arg.ID,
		FormID:       arg.FormID,
		SubmissionID: arg.SubmissionID,
		Type:         arg.Type,
		Status:       arg.Status,
		Error:        arg.Error,
		CreatedAt:    s.Now(),
	}
	s.t.logs[l.ID] = l
	s.stamp(l.ID)
	return l, nil
}

func (s *Store) ListNotificationLogsByForm(ctx context.Context, arg repository.ListNotificationLogsByFormParams) ([]repository.NotificationLog, error) {
	if err := s.begin("ListNotificationLogsByForm", arg); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.NotificationLog
	for _, l := range s.t.logs {
		if l.FormID == arg.FormID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] > s.t.seq[out[j].ID] })
	return page(out, arg.Limit, arg.Offset), nil
}

func (s *Store) DeleteNotificationLogsByFormIDs(ctx context.Context, formIDs []uuid.UUID) error {
	if err := s.begin("DeleteNotificationLogsByFormIDs", formIDs); err != nil {
		return err
	}
	defer s.mu.Unlock()
	set := inSet(formIDs)
	for id, l := range s.t.logs {
		if set[l.FormID] {
			delete(s.t.logs, id)
		}
	}
	return nil
}

// =============================================================================
// Campaigns
// =============================================================================

func (s *Store) CreateCampaign(ctx context.Context, arg repository.CreateCampaignParams) (repository.Campaign, error) {
	if err := s.begin("CreateCampaign", arg); err != nil {
		return repository.Campaign{}, err
	}
	defer s.mu.Unlock()
	now := s.Now()
	c := repository.Campaign{
		ID:             arg.ID,
		FormID:         arg.FormID,
		UserID:         arg.UserID,
		Name:           arg.Name,
		Subject:        arg.Subject,
		Content:        arg.Content,
		Status:         arg.Status,
		RecipientLimit: arg.RecipientLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.t.campaigns[c.ID] = c
	s.stamp(c.ID)
	return c, nil
}

// PutCampaign stores c as-is. Tests use it to seed campaigns in any state.
func (s *Store) PutCampaign(c repository.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t.campaigns[c.ID] = c
	s.stamp(c.ID)
}

func (s *Store) GetCampaignByIDAndUser(ctx context.Context, arg repository.GetCampaignByIDAndUserParams) (repository.Campaign, error) {
	if err := s.begin("GetCampaignByIDAndUser", arg); err != nil {
		return repository.Campaign{}, err
	}
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[arg.ID]
	if !ok || c.UserID != arg.UserID {
		return repository.Campaign{}, sql.ErrNoRows
	}
	return c, nil
}

// Campaign returns the stored campaign by id.
func (s *Store) Campaign(id uuid.UUID) (repository.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[id]
	return c, ok
}

func (s *Store) ScheduleCampaign(ctx context.Context, arg repository.ScheduleCampaignParams) (int64, error) {
	if err := s.begin("ScheduleCampaign", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[arg.ID]
	if !ok || c.UserID != arg.UserID || c.Status != "DRAFT" {
		return 0, nil
	}
	c.Status = "SCHEDULED"
	c.ScheduledAt = sql.NullTime{Time: arg.ScheduledAt, Valid: true}
	c.UpdatedAt = s.Now()
	s.t.campaigns[c.ID] = c
	return 1, nil
}

func (s *Store) ListDueCampaigns(ctx context.Context, now time.Time) ([]repository.Campaign, error) {
	if err := s.begin("ListDueCampaigns", now); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.Campaign
	for _, c := range s.t.campaigns {
		if c.Status == "SCHEDULED" && c.ScheduledAt.Valid && !c.ScheduledAt.Time.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Time.Equal(out[j].ScheduledAt.Time) {
			return out[i].ScheduledAt.Time.Before(out[j].ScheduledAt.Time)
		}
		return s.t.seq[out[i].ID] < s.t.seq[out[j].ID]
	})
	return out, nil
}

func (s *Store) ClaimCampaign(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := s.begin("ClaimCampaign", id); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[id]
	if !ok || c.Status != "SCHEDULED" {
		return 0, nil
	}
	c.Status = "SENDING"
	c.UpdatedAt = s.Now()
	s.t.campaigns[id] = c
	return 1, nil
}

func (s *Store) TouchCampaign(ctx context.Context, id uuid.UUID) error {
	if err := s.begin("TouchCampaign", id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[id]
	if !ok || c.Status != "SENDING" {
		return nil
	}
	c.UpdatedAt = s.Now()
	s.t.campaigns[id] = c
	return nil
}

func (s *Store) RequeueStaleCampaigns(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.begin("RequeueStaleCampaigns", cutoff); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.t.campaigns {
		if c.Status == "SENDING" && c.UpdatedAt.Before(cutoff) {
			c.Status = "SCHEDULED"
			c.UpdatedAt = s.Now()
			s.t.campaigns[id] = c
			n++
		}
	}
	return n, nil
}

func (s *Store) FinishCampaign(ctx context.Context, arg repository.FinishCampaignParams) error {
	if err := s.begin("FinishCampaign", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	c, ok := s.t.campaigns[arg.ID]
	if !ok {
		return nil
	}
	c.Status = arg.Status
	c.SentAt = arg.SentAt
	c.UpdatedAt = s.Now()
	s.t.campaigns[arg.ID] = c
	return nil
}

func (s *Store) DeleteCampaignsByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteCampaignsByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, c := range s.t.campaigns {
		if c.UserID == userID {
			s.deleteCampaignCascade(id)
		}
	}
	return nil
}

func (s *Store) CountCampaignRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	if err := s.begin("CountCampaignRecipients", campaignID); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.t.recipients {
		if r.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateCampaignRecipient(ctx context.Context, arg repository.CreateCampaignRecipientParams) (repository.CampaignRecipient, error) {
	if err := s.begin("CreateCampaignRecipient", arg); err != nil {
		return repository.CampaignRecipient{}, err
	}
	defer s.mu.Unlock()
	for _, r := range s.t.recipients {
		if r.CampaignID == arg.CampaignID && r.SubmissionID == arg.SubmissionID {
			return repository.CampaignRecipient{}, fmt.Errorf("campaign_recipients (campaign_id, submission_id): %w", ErrUniqueViolation)
		}
	}
	r := repository.CampaignRecipient{
		ID:           arg.ID,
		CampaignID:   arg.CampaignID,
		SubmissionID: arg.SubmissionID,
		Email:        arg.Email,
		Status:       "PENDING",
		CreatedAt:    s.Now(),
	}
	s.t.recipients[r.ID] = r
	s.stamp(r.ID)
	return r, nil
}

func (s *Store) ListPendingRecipients(ctx context.Context, campaignID uuid.UUID) ([]repository.CampaignRecipient, error) {
	if err := s.begin("ListPendingRecipients", campaignID); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.CampaignRecipient
	for _, r := range s.t.recipients {
		if r.CampaignID == campaignID && r.Status == "PENDING" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out, nil
}

// Recipients returns every recipient of a campaign in insertion order.
func (s *Store) Recipients(campaignID uuid.UUID) []repository.CampaignRecipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.CampaignRecipient
	for _, r := range s.t.recipients {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out
}

func (s *Store) MarkRecipientSent(ctx context.Context, arg repository.MarkRecipientSentParams) error {
	if err := s.begin("MarkRecipientSent", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if r, ok := s.t.recipients[arg.ID]; ok {
		r.Status = "SENT"
		r.SentAt = sql.NullTime{Time: arg.SentAt, Valid: true}
		r.Error = sql.NullString{}
		s.t.recipients[arg.ID] = r
	}
	return nil
}

func (s *Store) MarkRecipientFailed(ctx context.Context, arg repository.MarkRecipientFailedParams) error {
	if err := s.begin("MarkRecipientFailed", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if r, ok := s.t.recipients[arg.ID]; ok {
		r.Status = "FAILED"
		r.Error = arg.Error
		s.t.recipients[arg.ID] = r
	}
	return nil
}

func (s *Store) DeleteCampaignRecipientsByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteCampaignRecipientsByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, r := range s.t.recipients {
		if c, ok := s.t.campaigns[r.CampaignID]; ok && c.UserID == userID {
			delete(s.t.recipients, id)
		}
	}
	return nil
}

// =============================================================================
// Sent email tracking
// =============================================================================

func (s *Store) CreateSentEmail(ctx context.Context, arg repository.CreateSentEmailParams) (repository.SentEmail, error) {
	if err := s.begin("CreateSentEmail", arg); err != nil {
		return repository.SentEmail{}, err
	}
	defer s.mu.Unlock()
	e := repository.SentEmail{
		ID:           arg.ID,
		CampaignID:   arg.CampaignID,
		RecipientID:  arg.RecipientID,
		SubmissionID: arg.SubmissionID,
		UserID:       arg.UserID,
		CreatedAt:    s.Now(),
	}
	s.t.sentEmails[e.ID] = e
	s.stamp(e.ID)
	return e, nil
}

func (s *Store) GetSentEmail(ctx context.Context, id uuid.UUID) (repository.SentEmail, error) {
	if err := s.begin("GetSentEmail", id); err != nil {
		return repository.SentEmail{}, err
	}
	defer s.mu.Unlock()
	e, ok := s.t.sentEmails[id]
	if !ok {
		return repository.SentEmail{}, sql.ErrNoRows
	}
	return e, nil
}

func (s *Store) MarkSentEmailOpened(ctx context.Context, arg repository.MarkSentEmailEventParams) (int64, error) {
	if err := s.begin("MarkSentEmailOpened", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	e, ok := s.t.sentEmails[arg.ID]
	if !ok || e.OpenedAt.Valid {
		return 0, nil
	}
	e.OpenedAt = sql.NullTime{Time: arg.At, Valid: true}
	s.t.sentEmails[arg.ID] = e
	return 1, nil
}

func (s *Store) MarkSentEmailClicked(ctx context.Context, arg repository.MarkSentEmailEventParams) (int64, error) {
	if err := s.begin("MarkSentEmailClicked", arg); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	e, ok := s.t.sentEmails[arg.ID]
	if !ok || e.ClickedAt.Valid {
		return 0, nil
	}
	e.ClickedAt = sql.NullTime{Time: arg.At, Valid: true}
	s.t.sentEmails[arg.ID] = e
	return 1, nil
}

func (s *Store) DeleteSentEmailsByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteSentEmailsByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, e := range s.t.sentEmails {
		if e.UserID == userID {
			delete(s.t.sentEmails, id)
		}
	}
	return nil
}

// =============================================================================
// API keys
// =============================================================================

func (s *Store) CreateAPIKey(ctx context.Context, arg repository.CreateAPIKeyParams) (repository.ApiKey, error) {
	if err := s.begin("CreateAPIKey", arg); err != nil {
		return repository.ApiKey{}, err
	}
	defer s.mu.Unlock()
	k := repository.ApiKey{
		ID:        arg.ID,
		UserID:    arg.UserID,
		Name:      arg.Name,
		Prefix:    arg.Prefix,
		KeyHash:   arg.KeyHash,
		CreatedAt: s.Now(),
	}
	s.t.apiKeys[k.ID] = k
	s.stamp(k.ID)
	return k, nil
}

func (s *Store) ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]repository.ApiKey, error) {
	if err := s.begin("ListAPIKeysByPrefix", prefix); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []repository.ApiKey
	for _, k := range s.t.apiKeys {
		if k.Prefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) TouchAPIKey(ctx context.Context, arg repository.TouchAPIKeyParams) error {
	if err := s.begin("TouchAPIKey", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if k, ok := s.t.apiKeys[arg.ID]; ok {
		k.LastUsedAt = sql.NullTime{Time: arg.LastUsedAt, Valid: true}
		s.t.apiKeys[arg.ID] = k
	}
	return nil
}

func (s *Store) DeleteAPIKeysByUser(ctx context.Context, userID string) error {
	if err := s.begin("DeleteAPIKeysByUser", userID); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, k := range s.t.apiKeys {
		if k.UserID == userID {
			delete(s.t.apiKeys, id)
		}
	}
	return nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	if err := s.begin("EnqueueJob", arg); err != nil {
		return repository.Job{}, err
	}
	defer s.mu.Unlock()
	j := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     arg.Payload,
		Status:      "pending",
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   s.Now(),
	}
	s.t.jobs[j.ID] = j
	s.stamp(j.ID)
	return j, nil
}

func (s *Store) DequeueJob(ctx context.Context) (repository.Job, error) {
	if err := s.begin("DequeueJob", nil); err != nil {
		return repository.Job{}, err
	}
	defer s.mu.Unlock()
	now := s.Now()
	var best *repository.Job
	for _, j := range s.t.jobs {
		if j.Status != "pending" || j.ScheduledAt.After(now) {
			continue
		}
		j := j
		if best == nil ||
			j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.ScheduledAt.Before(best.ScheduledAt)) ||
			(j.Priority == best.Priority && j.ScheduledAt.Equal(best.ScheduledAt) && s.t.seq[j.ID] < s.t.seq[best.ID]) {
			best = &j
		}
	}
	if best == nil {
		return repository.Job{}, sql.ErrNoRows
	}
	return *best, nil
}

func (s *Store) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	if err := s.begin("UpdateJobStarted", id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if j, ok := s.t.jobs[id]; ok {
		j.Status = "running"
		j.StartedAt = sql.NullTime{Time: s.Now(), Valid: true}
		j.Attempts++
		s.t.jobs[id] = j
	}
	return nil
}

func (s *Store) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	if err := s.begin("UpdateJobCompleted", id); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if j, ok := s.t.jobs[id]; ok {
		j.Status = "completed"
		j.CompletedAt = sql.NullTime{Time: s.Now(), Valid: true}
		j.ErrorMessage = sql.NullString{}
		s.t.jobs[id] = j
	}
	return nil
}

func (s *Store) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) error {
	if err := s.begin("UpdateJobFailed", arg); err != nil {
		return err
	}
	defer s.mu.Unlock()
	j, ok := s.t.jobs[arg.ID]
	if !ok {
		return nil
	}
	now := s.Now()
	j.ErrorMessage = arg.ErrorMessage
	if arg.Permanent || j.Attempts >= j.MaxAttempts {
		j.Status = "failed"
		j.CompletedAt = sql.NullTime{Time: now, Valid: true}
	} else {
		j.Status = "pending"
		j.ScheduledAt = now.Add(time.Duration(1<<uint(j.Attempts)) * 30 * time.Second)
	}
	s.t.jobs[arg.ID] = j
	return nil
}

func (s *Store) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	if err := s.begin("RecoverStaleJobs", thresholdSeconds); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	cutoff := s.Now().Add(-time.Duration(thresholdSeconds * float64(time.Second)))
	var n int64
	for id, j := range s.t.jobs {
		if j.Status == "running" && j.StartedAt.Valid && j.StartedAt.Time.Before(cutoff) {
			j.Status = "pending"
			j.StartedAt = sql.NullTime{}
			s.t.jobs[id] = j
			n++
		}
	}
	return n, nil
}

// Jobs returns every job in enqueue order.
func (s *Store) Jobs() []repository.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Job, 0, len(s.t.jobs))
	for _, j := range s.t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return s.t.seq[out[i].ID] < s.t.seq[out[j].ID] })
	return out
}
