package businessflow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/logging"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/google/uuid"
)

// Fakes embed the repository interface so unused methods need no stubs;
// calling one panics, which flags an unexpected dependency in a test.

type fakeMessageRepo struct {
	repository.MessageLogRepository
	mu     sync.Mutex
	rows   map[uint]*models.MessageLog
	nextID uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{rows: map[uint]*models.MessageLog{}}
}

func (r *fakeMessageRepo) Save(_ context.Context, m *models.MessageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) get(id uint) *models.MessageLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[id]; ok {
		cp := *m
		return &cp
	}
	return nil
}

func (r *fakeMessageRepo) all() []*models.MessageLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.MessageLog, 0, len(r.rows))
	for _, m := range r.rows {
		cp := *m
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.MessageLog) int { return int(b.ID) - int(a.ID) })
	return out
}

func (r *fakeMessageRepo) ByTenantAndID(_ context.Context, tenantID, id uint) (*models.MessageLog, error) {
	m := r.get(id)
	if m == nil || m.TenantID != tenantID {
		return nil, nil
	}
	return m, nil
}

func (r *fakeMessageRepo) ByExternalID(_ context.Context, externalID string) (*models.MessageLog, error) {
	for _, m := range r.all() {
		if utils.Deref(m.ExternalID) == externalID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) Update(_ context.Context, m *models.MessageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) MarkSent(_ context.Context, id uint, externalID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rows[id]
	m.Status = models.MessageStatusSent
	m.ExternalID = &externalID
	m.SentAt = &sentAt
	return nil
}

func (r *fakeMessageRepo) MarkFailed(_ context.Context, id uint, reason string, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rows[id]
	m.Status = models.MessageStatusFailed
	m.FailedAt = &failedAt
	m.RetryCount++
	if m.Metadata == nil {
		m.Metadata = models.JSONMap{}
	}
	m.Metadata["error"] = reason
	return nil
}

func (r *fakeMessageRepo) ResetForRetry(_ context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rows[id]
	if m == nil || m.Status != models.MessageStatusFailed {
		return false, nil
	}
	m.Status = models.MessageStatusQueued
	m.RetryCount++
	m.FailedAt = nil
	return true, nil
}

func (r *fakeMessageRepo) matches(m *models.MessageLog, f models.MessageLogFilter) bool {
	switch {
	case f.TenantID != nil && m.TenantID != *f.TenantID:
		return false
	case f.Channel != nil && m.Channel != *f.Channel:
		return false
	case f.Status != nil && m.Status != *f.Status:
		return false
	case f.RecipientID != nil && m.RecipientID != *f.RecipientID:
		return false
	case f.Search != nil && !strings.Contains(m.Body, *f.Search):
		return false
	case f.CreatedAfter != nil && m.CreatedAt.Before(*f.CreatedAfter):
		return false
	case f.CreatedBefore != nil && m.CreatedAt.After(*f.CreatedBefore):
		return false
	}
	return true
}

func (r *fakeMessageRepo) ByFilter(_ context.Context, f models.MessageLogFilter, _ string, limit, offset int) ([]*models.MessageLog, error) {
	var out []*models.MessageLog
	for _, m := range r.all() {
		if r.matches(m, f) {
			out = append(out, m)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, f models.MessageLogFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeMessageRepo) CountGrouped(ctx context.Context, f models.MessageLogFilter, groupBy repository.MessageGroupBy) ([]models.MessageCount, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	counts := map[string]int64{}
	for _, m := range rows {
		key := string(m.Status)
		if groupBy == repository.MessageGroupByChannel {
			key = string(m.Channel)
		}
		counts[key]++
	}
	out := make([]models.MessageCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.MessageCount{Key: k, Count: c})
	}
	return out, nil
}

type fakeScheduledRepo struct {
	repository.ScheduledMessageRepository
	mu     sync.Mutex
	rows   map[uint]*models.ScheduledMessage
	nextID uint
}

func newFakeScheduledRepo() *fakeScheduledRepo {
	return &fakeScheduledRepo{rows: map[uint]*models.ScheduledMessage{}}
}

func (r *fakeScheduledRepo) Save(_ context.Context, s *models.ScheduledMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *fakeScheduledRepo) all() []*models.ScheduledMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ScheduledMessage, 0, len(r.rows))
	for _, s := range r.rows {
		cp := *s
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.ScheduledMessage) int { return int(a.ID) - int(b.ID) })
	return out
}

func (r *fakeScheduledRepo) ByTenantAndID(_ context.Context, tenantID, id uint) (*models.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScheduledRepo) Cancel(_ context.Context, tenantID, id uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.TenantID != tenantID || s.Status != models.ScheduledMessageStatusPending {
		return false, nil
	}
	s.Status = models.ScheduledMessageStatusCancelled
	s.ProcessedAt = &at
	return true, nil
}

func (r *fakeScheduledRepo) setStatus(id uint, status models.ScheduledMessageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].Status = status
}

func (r *fakeScheduledRepo) ByFilter(_ context.Context, f models.ScheduledMessageFilter, _ string, limit, offset int) ([]*models.ScheduledMessage, error) {
	var out []*models.ScheduledMessage
	for _, s := range r.all() {
		if f.TenantID != nil && s.TenantID != *f.TenantID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		out = append(out, s)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeScheduledRepo) Count(ctx context.Context, f models.ScheduledMessageFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

type fakeTemplateRepo struct {
	repository.TemplateRepository
	mu     sync.Mutex
	rows   map[uint]*models.Template
	nextID uint
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{rows: map[uint]*models.Template{}}
}

func (r *fakeTemplateRepo) Save(_ context.Context, t *models.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	cp := *t
	r.rows[t.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) Update(_ context.Context, t *models.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[t.ID]; !ok {
		return errors.New("template does not exist")
	}
	cp := *t
	r.rows[t.ID] = &cp
	return nil
}

func (r *fakeTemplateRepo) ByTenantAndID(_ context.Context, tenantID, id uint) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	if !ok || t.TenantID != tenantID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTemplateRepo) ByName(_ context.Context, tenantID uint, name string, channel models.MessageChannel) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows {
		if t.TenantID == tenantID && t.Name == name && t.Channel == channel {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTemplateRepo) ByFilter(_ context.Context, f models.TemplateFilter, _ string, _, _ int) ([]*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Template
	for _, t := range r.rows {
		if f.TenantID != nil && t.TenantID != *f.TenantID {
			continue
		}
		if f.Channel != nil && t.Channel != *f.Channel {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Template) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

type fakeHistoryRepo struct {
	mu   sync.Mutex
	rows []*models.TemplateHistory
}

func (r *fakeHistoryRepo) Save(_ context.Context, h *models.TemplateHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.TemplateID == h.TemplateID && existing.Version == h.Version {
			return errors.New("duplicate template version")
		}
	}
	h.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, h)
	return nil
}

func (r *fakeHistoryRepo) ListByTemplate(_ context.Context, templateID uint) ([]*models.TemplateHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TemplateHistory
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TemplateID == templateID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

type fakeRuleRepo struct {
	repository.AutomationRuleRepository
	mu        sync.Mutex
	rows      map[uint]*models.AutomationRule
	templates *fakeTemplateRepo
	nextID    uint
}

func newFakeRuleRepo(templates *fakeTemplateRepo) *fakeRuleRepo {
	return &fakeRuleRepo{rows: map[uint]*models.AutomationRule{}, templates: templates}
}

func (r *fakeRuleRepo) Save(_ context.Context, rule *models.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	rule.ID = r.nextID
	cp := *rule
	r.rows[rule.ID] = &cp
	return nil
}

func (r *fakeRuleRepo) Update(_ context.Context, rule *models.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.rows[rule.ID] = &cp
	return nil
}

func (r *fakeRuleRepo) Delete(_ context.Context, tenantID, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rows[id]; ok && rule.TenantID == tenantID {
		delete(r.rows, id)
	}
	return nil
}

func (r *fakeRuleRepo) ByTenantAndID(_ context.Context, tenantID, id uint) (*models.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rows[id]
	if !ok || rule.TenantID != tenantID {
		return nil, nil
	}
	cp := *rule
	return &cp, nil
}

func (r *fakeRuleRepo) ByFilter(_ context.Context, f models.AutomationRuleFilter, _ string, _, _ int) ([]*models.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AutomationRule
	for _, rule := range r.rows {
		switch {
		case f.TenantID != nil && rule.TenantID != *f.TenantID,
			f.Trigger != nil && rule.Trigger != *f.Trigger,
			f.Channel != nil && rule.Channel != *f.Channel,
			f.TemplateID != nil && rule.TemplateID != *f.TemplateID,
			f.IsActive != nil && utils.IsTrue(rule.IsActive) != *f.IsActive:
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.AutomationRule) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (r *fakeRuleRepo) Exists(ctx context.Context, f models.AutomationRuleFilter) (bool, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return len(rows) > 0, nil
}

func (r *fakeRuleRepo) ListActive(ctx context.Context, tenantID uint, trigger models.AutomationTrigger) ([]*models.AutomationRule, error) {
	rows, _ := r.ByFilter(ctx, models.AutomationRuleFilter{TenantID: &tenantID, Trigger: &trigger, IsActive: utils.ToPtr(true)}, "", 0, 0)
	for _, rule := range rows {
		rule.Template, _ = r.templates.ByTenantAndID(ctx, tenantID, rule.TemplateID)
	}
	return rows, nil
}

// fakeRecipients resolves candidates and users from fixed maps and defers
// external ids to the real parser
type fakeRecipients struct {
	candidates map[string]*models.Candidate
	users      map[string]*models.User
}

func (f *fakeRecipients) Resolve(_ context.Context, _ uint, t models.RecipientType, id string) (*Recipient, error) {
	switch t {
	case models.RecipientTypeCandidate:
		c, ok := f.candidates[id]
		if !ok {
			return nil, NewBusinessError("CANDIDATE_NOT_FOUND", "Candidate not found", ErrCandidateNotFound)
		}
		return CandidateRecipient(c, id), nil
	case models.RecipientTypeUser, models.RecipientTypeInterviewer:
		u, ok := f.users[id]
		if !ok {
			return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
		}
		return UserRecipient(u, t, id), nil
	case models.RecipientTypeExternal:
		return ExternalRecipient(id)
	}
	return nil, NewBusinessError("INVALID_RECIPIENT_TYPE", "bad type", ErrInvalidRecipientType)
}

type fakeVariables struct {
	vars *TemplateVariables
	err  error
}

func (f *fakeVariables) ResolveForInterview(context.Context, uint, uint) (*TemplateVariables, error) {
	return f.vars, f.err
}

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []*models.MessageLog
	dead       []dispatch.DeadLetter
	err        error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg *models.MessageLog) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *msg
	d.dispatched = append(d.dispatched, &cp)
	return uuid.NewString(), nil
}

func (d *recordingDispatcher) DeadLetters(_ context.Context, ch models.MessageChannel, _ int) ([]dispatch.DeadLetter, error) {
	var out []dispatch.DeadLetter
	for _, dl := range d.dead {
		if dl.Envelope.Channel == ch {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

type inlineTx struct{}

func (inlineTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// flowFixture wires every flow against fakes for tenant 1
type flowFixture struct {
	messages   *fakeMessageRepo
	scheduled  *fakeScheduledRepo
	templates  *fakeTemplateRepo
	history    *fakeHistoryRepo
	rules      *fakeRuleRepo
	recipients *fakeRecipients
	variables  *fakeVariables
	dispatcher *recordingDispatcher
	limiter    *services.MemoryRateLimiter
	renderer   services.TemplateRenderer
}

const testTenantID uint = 1

func newFlowFixture() *flowFixture {
	templates := newFakeTemplateRepo()
	return &flowFixture{
		messages:  newFakeMessageRepo(),
		scheduled: newFakeScheduledRepo(),
		templates: templates,
		history:   &fakeHistoryRepo{},
		rules:     newFakeRuleRepo(templates),
		recipients: &fakeRecipients{
			candidates: map[string]*models.Candidate{
				"c1": {ID: 11, TenantID: testTenantID, FirstName: "Ada", LastName: "Lovelace", Email: utils.ToPtr("ada@example.com"), Stage: "Screening"},
				"c2": {ID: 12, TenantID: testTenantID, FirstName: "Grace", LastName: "Hopper", Email: utils.ToPtr("grace@example.com"), Phone: utils.ToPtr("+15551234567")},
			},
			users: map[string]*models.User{
				"u1": {ID: 21, TenantID: testTenantID, Name: "Rita Recruiter", Email: "rita@example.com", Status: models.UserStatusActive},
			},
		},
		variables:  &fakeVariables{err: ErrInterviewNotFound},
		dispatcher: &recordingDispatcher{},
		limiter:    services.NewMemoryRateLimiter(),
		renderer:   services.NewTemplateRenderer(logging.Discard(), time.UTC),
	}
}

func (fx *flowFixture) messageFlow() *MessageFlowImpl {
	return NewMessageFlow(fx.messages, fx.scheduled, fx.templates, fx.recipients, fx.renderer,
		fx.dispatcher, fx.limiter, config.RateLimitConfig{}, logging.Discard()).(*MessageFlowImpl)
}

func (fx *flowFixture) automationFlow() *AutomationFlowImpl {
	return NewAutomationFlow(fx.rules, fx.templates, fx.messages, fx.scheduled, fx.recipients, fx.variables,
		fx.renderer, fx.dispatcher, logging.Discard()).(*AutomationFlowImpl)
}

func (fx *flowFixture) templateFlow() *TemplateFlowImpl {
	return NewTemplateFlow(fx.templates, fx.history, fx.rules, inlineTx{}, fx.renderer, fx.variables,
		logging.Discard()).(*TemplateFlowImpl)
}

func (fx *flowFixture) addTemplate(name string, channel models.MessageChannel, subject *string, body string) *models.Template {
	t := &models.Template{
		TenantID: testTenantID,
		Name:     name,
		Channel:  channel,
		Category: models.TemplateCategoryGeneral,
		Subject:  subject,
		Body:     body,
		Version:  1,
		IsSystem: utils.ToPtr(false),
		IsActive: utils.ToPtr(true),
	}
	_ = fx.templates.Save(context.Background(), t)
	return t
}
