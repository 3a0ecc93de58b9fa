package businessflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// Event context keys read by the rule engine
const (
	ContextKeyCandidateID   = "candidateId"
	ContextKeyUserID        = "userId"
	ContextKeyInterviewID   = "interviewId"
	ContextKeyInterviewDate = "interviewDate"
)

// AutomationFlow evaluates automation rules for domain events and administers rules
type AutomationFlow interface {
	ProcessTrigger(ctx context.Context, req *dto.ProcessTriggerRequest) (*dto.ProcessTriggerResponse, error)
	CreateRule(ctx context.Context, req *dto.CreateAutomationRuleRequest) (*dto.AutomationRuleItem, error)
	UpdateRule(ctx context.Context, req *dto.UpdateAutomationRuleRequest) (*dto.AutomationRuleItem, error)
	ToggleRule(ctx context.Context, tenantID, ruleID uint) (*dto.AutomationRuleItem, error)
	DeleteRule(ctx context.Context, tenantID, ruleID uint) error
	GetRule(ctx context.Context, tenantID, ruleID uint) (*dto.AutomationRuleItem, error)
	ListRules(ctx context.Context, req *dto.ListAutomationRulesRequest) ([]dto.AutomationRuleItem, error)
}

// AutomationFlowImpl implements AutomationFlow
type AutomationFlowImpl struct {
	ruleRepo     repository.AutomationRuleRepository
	templateRepo repository.TemplateRepository
	recipients   RecipientResolver
	variables    VariableResolver
	renderer     services.TemplateRenderer
	outbox       *outbox
	logger       *slog.Logger
	now          func() time.Time
}

func NewAutomationFlow(
	ruleRepo repository.AutomationRuleRepository,
	templateRepo repository.TemplateRepository,
	messageRepo repository.MessageLogRepository,
	scheduledRepo repository.ScheduledMessageRepository,
	recipients RecipientResolver,
	variables VariableResolver,
	renderer services.TemplateRenderer,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
) AutomationFlow {
	return &AutomationFlowImpl{
		ruleRepo:     ruleRepo,
		templateRepo: templateRepo,
		recipients:   recipients,
		variables:    variables,
		renderer:     renderer,
		outbox: &outbox{
			messageRepo:   messageRepo,
			scheduledRepo: scheduledRepo,
			dispatcher:    dispatcher,
			logger:        logger,
		},
		logger: logger,
		now:    utils.UTCNow,
	}
}

// ruleOutcome is what evaluating one rule produced
// interviewDateVar is the resolver's flattened key for the interview time
const interviewDateVar = "interview.date"

type ruleOutcome int

const (
	ruleSkipped ruleOutcome = iota
	ruleDispatched
	ruleScheduled
)

// ProcessTrigger runs every active rule bound to the trigger. A failing rule is
// logged and skipped; it never aborts its siblings.
func (f *AutomationFlowImpl) ProcessTrigger(ctx context.Context, req *dto.ProcessTriggerRequest) (*dto.ProcessTriggerResponse, error) {
	trigger := models.AutomationTrigger(req.Trigger)
	if !trigger.Valid() {
		return nil, NewBusinessErrorf("INVALID_TRIGGER", "Unknown trigger %q", ErrInvalidTrigger, req.Trigger)
	}

	rules, err := f.ruleRepo.ListActive(ctx, req.TenantID, trigger)
	if err != nil {
		return nil, NewBusinessError("LIST_RULES_FAILED", "Failed to load automation rules", err)
	}

	resp := &dto.ProcessTriggerResponse{}
	if len(rules) == 0 {
		return resp, nil
	}

	eventCtx := req.Context
	if eventCtx == nil {
		eventCtx = map[string]any{}
	}
	interviewVars := f.interviewVariables(ctx, req.TenantID, trigger, eventCtx)

	for _, rule := range rules {
		resp.Processed++
		outcome, err := f.evaluateRule(ctx, req.TenantID, trigger, rule, eventCtx, interviewVars)
		if err != nil {
			f.logger.Warn("Automation rule failed",
				"tenant_id", req.TenantID, "trigger", trigger, "rule_id", rule.ID, "error", err)
			continue
		}
		if outcome != ruleSkipped {
			resp.Queued++
		}
	}

	f.logger.Info("Trigger processed",
		"tenant_id", req.TenantID, "trigger", trigger, "processed", resp.Processed, "queued", resp.Queued)
	return resp, nil
}

// interviewVariables resolves the interview referenced by an interview-scoped
// event. Resolution failures leave the event context unenriched.
func (f *AutomationFlowImpl) interviewVariables(ctx context.Context, tenantID uint, trigger models.AutomationTrigger, eventCtx map[string]any) map[string]any {
	if !trigger.IsInterviewScoped() {
		return nil
	}
	raw, ok := eventCtx[ContextKeyInterviewID]
	if !ok {
		return nil
	}
	id, err := parseUintValue(raw)
	if err != nil {
		f.logger.Warn("Ignoring malformed interview id", "tenant_id", tenantID, "value", raw)
		return nil
	}
	vars, err := f.variables.ResolveForInterview(ctx, tenantID, id)
	if err != nil {
		f.logger.Warn("Failed to resolve interview variables", "tenant_id", tenantID, "interview_id", id, "error", err)
		return nil
	}
	return vars.Flat
}

func (f *AutomationFlowImpl) evaluateRule(
	ctx context.Context,
	tenantID uint,
	trigger models.AutomationTrigger,
	rule *models.AutomationRule,
	eventCtx, interviewVars map[string]any,
) (ruleOutcome, error) {
	if len(rule.Conditions) > 0 && !MatchConditions(rule.Conditions, eventCtx) {
		f.logger.Debug("Rule conditions not met", "rule_id", rule.ID)
		return ruleSkipped, nil
	}

	recipientType, recipientID, ok := recipientFromContext(eventCtx)
	if !ok {
		f.logger.Warn("No recipient in trigger context, skipping rule", "tenant_id", tenantID, "rule_id", rule.ID, "trigger", trigger)
		return ruleSkipped, nil
	}

	sendAt := f.now().Add(time.Duration(rule.DelayMinutes) * time.Minute)
	if offset, isReminder := trigger.ReminderOffset(); isReminder {
		raw, present := services.LookupPath(eventCtx, ContextKeyInterviewDate)
		if !present {
			raw, present = interviewVars[interviewDateVar]
		}
		if !present {
			f.logger.Warn("Reminder trigger without interview date, skipping rule", "tenant_id", tenantID, "rule_id", rule.ID)
			return ruleSkipped, nil
		}
		at, err := utils.ParseTimeValue(raw)
		if err != nil {
			return ruleSkipped, fmt.Errorf("invalid %s: %w", ContextKeyInterviewDate, err)
		}
		sendAt = at.Add(-offset)
	}

	recipient, err := f.recipients.Resolve(ctx, tenantID, recipientType, recipientID)
	if err != nil {
		return ruleSkipped, err
	}
	if _, err := recipient.AddressFor(rule.Channel); err != nil {
		return ruleSkipped, err
	}

	tpl := rule.Template
	if tpl == nil {
		if tpl, err = f.templateRepo.ByTenantAndID(ctx, tenantID, rule.TemplateID); err != nil {
			return ruleSkipped, err
		}
	}
	if tpl == nil {
		return ruleSkipped, ErrTemplateNotFound
	}
	if !utils.IsTrue(tpl.IsActive) {
		return ruleSkipped, ErrTemplateInactive
	}

	vars := recipientContext(recipient, nil)
	maps.Copy(vars, interviewVars)
	maps.Copy(vars, eventCtx)
	content := renderContent(f.renderer, tpl.Subject, tpl.Body, vars)
	if content.RenderError != "" {
		f.logger.Warn("Rule template rendered with errors", "rule_id", rule.ID, "template_id", tpl.ID, "error", content.RenderError)
	}

	ruleID := rule.ID
	templateID := tpl.ID
	if sendAt.After(f.now()) {
		row := newScheduledMessage(tenantID, rule.Channel, recipient, &templateID, content, eventCtx, nil)
		row.ScheduledFor = sendAt.UTC()
		row.Payload.Trigger = utils.ToPtr(string(trigger))
		row.Payload.RuleID = &ruleID
		if err := f.outbox.schedule(ctx, row); err != nil {
			return ruleSkipped, err
		}
		f.logger.Info("Automation message scheduled",
			"tenant_id", tenantID, "rule_id", rule.ID, "scheduled_message_id", row.ID, "scheduled_for", row.ScheduledFor)
		return ruleScheduled, nil
	}

	meta := models.JSONMap{"trigger": string(trigger), "rule_id": ruleID, "context": eventCtx}
	msg := newQueuedMessage(tenantID, rule.Channel, recipient, &templateID, content, meta, nil)
	if err := f.outbox.enqueue(ctx, msg); err != nil {
		return ruleSkipped, err
	}
	f.logger.Info("Automation message queued", "tenant_id", tenantID, "rule_id", rule.ID, "message_id", msg.ID)
	return ruleDispatched, nil
}

// recipientFromContext prefers a candidate over a user
func recipientFromContext(eventCtx map[string]any) (models.RecipientType, string, bool) {
	if id := idString(eventCtx[ContextKeyCandidateID]); id != "" {
		return models.RecipientTypeCandidate, id, true
	}
	if id := idString(eventCtx[ContextKeyUserID]); id != "" {
		return models.RecipientTypeUser, id, true
	}
	return "", "", false
}

// idString renders JSON-decoded ids; whole floats lose their fraction
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func parseUintValue(v any) (uint, error) {
	s := idString(v)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

func (f *AutomationFlowImpl) loadRule(ctx context.Context, tenantID, ruleID uint) (*models.AutomationRule, error) {
	rule, err := f.ruleRepo.ByTenantAndID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, NewBusinessError("RULE_LOOKUP_FAILED", "Failed to load automation rule", err)
	}
	if rule == nil {
		return nil, NewBusinessError("RULE_NOT_FOUND", "Automation rule not found", ErrRuleNotFound)
	}
	return rule, nil
}

// validateRule checks trigger, channel, conditions and that the template is the
// tenant's and targets the rule's channel
func (f *AutomationFlowImpl) validateRule(ctx context.Context, rule *models.AutomationRule) error {
	if !rule.Trigger.Valid() {
		return NewBusinessErrorf("INVALID_TRIGGER", "Unknown trigger %q", ErrInvalidTrigger, rule.Trigger)
	}
	if !rule.Channel.Valid() {
		return NewBusinessErrorf("INVALID_CHANNEL", "Unsupported channel %q", ErrInvalidChannel, rule.Channel)
	}
	if err := ValidateConditions(rule.Conditions); err != nil {
		return NewBusinessError("INVALID_CONDITION", err.Error(), err)
	}
	tpl, err := f.templateRepo.ByTenantAndID(ctx, rule.TenantID, rule.TemplateID)
	if err != nil {
		return NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to load template", err)
	}
	if tpl == nil {
		return NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	if tpl.Channel != rule.Channel {
		return NewBusinessErrorf("TEMPLATE_CHANNEL_MISMATCH", "Template is for %s, not %s", ErrTemplateChannelMismatch, tpl.Channel, rule.Channel)
	}
	return nil
}

// ensureUniqueBinding rejects a second rule for the same (tenant, trigger, channel)
func (f *AutomationFlowImpl) ensureUniqueBinding(ctx context.Context, rule *models.AutomationRule) error {
	rows, err := f.ruleRepo.ByFilter(ctx, models.AutomationRuleFilter{
		TenantID: &rule.TenantID,
		Trigger:  &rule.Trigger,
		Channel:  &rule.Channel,
	}, "", 0, 0)
	if err != nil {
		return NewBusinessError("RULE_LOOKUP_FAILED", "Failed to check automation rules", err)
	}
	for _, r := range rows {
		if r.ID != rule.ID {
			return NewBusinessErrorf("RULE_ALREADY_EXISTS", "A rule for %s on %s already exists", ErrRuleAlreadyExists, rule.Trigger, rule.Channel)
		}
	}
	return nil
}

func (f *AutomationFlowImpl) CreateRule(ctx context.Context, req *dto.CreateAutomationRuleRequest) (*dto.AutomationRuleItem, error) {
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	rule := &models.AutomationRule{
		TenantID:     req.TenantID,
		Name:         strings.TrimSpace(req.Name),
		Trigger:      models.AutomationTrigger(req.Trigger),
		Channel:      models.MessageChannel(req.Channel),
		TemplateID:   req.TemplateID,
		DelayMinutes: req.DelayMinutes,
		Conditions:   models.JSONMap(req.Conditions),
		IsActive:     &isActive,
		CreatedBy:    req.UserID,
	}
	if err := f.validateRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := f.ensureUniqueBinding(ctx, rule); err != nil {
		return nil, err
	}
	if err := f.ruleRepo.Save(ctx, rule); err != nil {
		return nil, NewBusinessError("CREATE_RULE_FAILED", "Failed to create automation rule", err)
	}

	f.logger.Info("Automation rule created", "tenant_id", rule.TenantID, "rule_id", rule.ID, "trigger", rule.Trigger, "channel", rule.Channel)
	item := ToAutomationRuleItem(rule)
	return &item, nil
}

func (f *AutomationFlowImpl) UpdateRule(ctx context.Context, req *dto.UpdateAutomationRuleRequest) (*dto.AutomationRuleItem, error) {
	rule, err := f.loadRule(ctx, req.TenantID, req.RuleID)
	if err != nil {
		return nil, err
	}
	rule.Template = nil

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Trigger != nil {
		rule.Trigger = models.AutomationTrigger(*req.Trigger)
	}
	if req.Channel != nil {
		rule.Channel = models.MessageChannel(*req.Channel)
	}
	if req.TemplateID != nil {
		rule.TemplateID = *req.TemplateID
	}
	if req.DelayMinutes != nil {
		rule.DelayMinutes = *req.DelayMinutes
	}
	if req.Conditions != nil {
		rule.Conditions = models.JSONMap(*req.Conditions)
	}
	if req.IsActive != nil {
		rule.IsActive = utils.ToPtr(*req.IsActive)
	}

	if err := f.validateRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := f.ensureUniqueBinding(ctx, rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = utils.UTCNow()
	if err := f.ruleRepo.Update(ctx, rule); err != nil {
		return nil, NewBusinessError("UPDATE_RULE_FAILED", "Failed to update automation rule", err)
	}
	item := ToAutomationRuleItem(rule)
	return &item, nil
}

// ToggleRule flips a rule between active and inactive
func (f *AutomationFlowImpl) ToggleRule(ctx context.Context, tenantID, ruleID uint) (*dto.AutomationRuleItem, error) {
	rule, err := f.loadRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	rule.Template = nil
	rule.IsActive = utils.ToPtr(!utils.IsTrue(rule.IsActive))
	rule.UpdatedAt = utils.UTCNow()
	if err := f.ruleRepo.Update(ctx, rule); err != nil {
		return nil, NewBusinessError("UPDATE_RULE_FAILED", "Failed to toggle automation rule", err)
	}

	f.logger.Info("Automation rule toggled", "tenant_id", tenantID, "rule_id", ruleID, "is_active", *rule.IsActive)
	item := ToAutomationRuleItem(rule)
	return &item, nil
}

func (f *AutomationFlowImpl) DeleteRule(ctx context.Context, tenantID, ruleID uint) error {
	if _, err := f.loadRule(ctx, tenantID, ruleID); err != nil {
		return err
	}
	if err := f.ruleRepo.Delete(ctx, tenantID, ruleID); err != nil {
		return NewBusinessError("DELETE_RULE_FAILED", "Failed to delete automation rule", err)
	}
	return nil
}

func (f *AutomationFlowImpl) GetRule(ctx context.Context, tenantID, ruleID uint) (*dto.AutomationRuleItem, error) {
	rule, err := f.loadRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	item := ToAutomationRuleItem(rule)
	return &item, nil
}

func (f *AutomationFlowImpl) ListRules(ctx context.Context, req *dto.ListAutomationRulesRequest) ([]dto.AutomationRuleItem, error) {
	filter := models.AutomationRuleFilter{TenantID: &req.TenantID, IsActive: req.IsActive}
	if req.Trigger != nil {
		filter.Trigger = utils.ToPtr(models.AutomationTrigger(*req.Trigger))
	}
	if req.Channel != nil {
		filter.Channel = utils.ToPtr(models.MessageChannel(*req.Channel))
	}
	rows, err := f.ruleRepo.ByFilter(ctx, filter, "trigger ASC, channel ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_RULES_FAILED", "Failed to list automation rules", err)
	}
	items := make([]dto.AutomationRuleItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToAutomationRuleItem(r))
	}
	return items, nil
}
