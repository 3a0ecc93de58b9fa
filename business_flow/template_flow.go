package businessflow

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/lib/pq"
)

// TemplateFlow handles template administration
type TemplateFlow interface {
	Create(ctx context.Context, req *dto.CreateTemplateRequest) (*dto.TemplateItem, error)
	Update(ctx context.Context, req *dto.UpdateTemplateRequest) (*dto.TemplateItem, error)
	Deactivate(ctx context.Context, tenantID, templateID uint) (*dto.TemplateItem, error)
	Get(ctx context.Context, tenantID, templateID uint) (*dto.TemplateItem, error)
	List(ctx context.Context, req *dto.ListTemplatesRequest) ([]dto.TemplateItem, error)
	History(ctx context.Context, tenantID, templateID uint) ([]dto.TemplateHistoryItem, error)
	Preview(ctx context.Context, req *dto.PreviewTemplateRequest) (*dto.PreviewTemplateResponse, error)
}

// TemplateFlowImpl implements TemplateFlow
type TemplateFlowImpl struct {
	templateRepo repository.TemplateRepository
	historyRepo  repository.TemplateHistoryRepository
	ruleRepo     repository.AutomationRuleRepository
	tx           repository.Transactor
	renderer     services.TemplateRenderer
	variables    VariableResolver
	logger       *slog.Logger
}

func NewTemplateFlow(
	templateRepo repository.TemplateRepository,
	historyRepo repository.TemplateHistoryRepository,
	ruleRepo repository.AutomationRuleRepository,
	tx repository.Transactor,
	renderer services.TemplateRenderer,
	variables VariableResolver,
	logger *slog.Logger,
) TemplateFlow {
	return &TemplateFlowImpl{
		templateRepo: templateRepo,
		historyRepo:  historyRepo,
		ruleRepo:     ruleRepo,
		tx:           tx,
		renderer:     renderer,
		variables:    variables,
		logger:       logger,
	}
}

// templateVariables returns the sorted union of placeholders in subject and body
func templateVariables(renderer services.TemplateRenderer, subject *string, body string) []string {
	seen := map[string]struct{}{}
	for _, v := range renderer.ExtractVariables(body) {
		seen[v] = struct{}{}
	}
	if subject != nil {
		for _, v := range renderer.ExtractVariables(*subject) {
			seen[v] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (f *TemplateFlowImpl) load(ctx context.Context, tenantID, templateID uint) (*models.Template, error) {
	tpl, err := f.templateRepo.ByTenantAndID(ctx, tenantID, templateID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to load template", err)
	}
	if tpl == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	return tpl, nil
}

// Create stores a new template at version 1
func (f *TemplateFlowImpl) Create(ctx context.Context, req *dto.CreateTemplateRequest) (*dto.TemplateItem, error) {
	channel := models.MessageChannel(req.Channel)
	if !channel.Valid() {
		return nil, NewBusinessErrorf("INVALID_CHANNEL", "Unsupported channel %q", ErrInvalidChannel, req.Channel)
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, NewBusinessError("CONTENT_REQUIRED", "Template body is required", ErrContentRequired)
	}
	name := strings.TrimSpace(req.Name)

	existing, err := f.templateRepo.ByName(ctx, req.TenantID, name, channel)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to check template name", err)
	}
	if existing != nil {
		return nil, NewBusinessErrorf("TEMPLATE_ALREADY_EXISTS", "Template %q already exists for %s", ErrTemplateAlreadyExists, name, channel)
	}

	category := models.TemplateCategoryGeneral
	if req.Category != "" {
		category = models.TemplateCategory(req.Category)
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	tpl := &models.Template{
		TenantID:  req.TenantID,
		Name:      name,
		Channel:   channel,
		Category:  category,
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: pq.StringArray(templateVariables(f.renderer, req.Subject, req.Body)),
		Version:   1,
		IsSystem:  utils.ToPtr(false),
		IsActive:  &isActive,
		CreatedBy: req.UserID,
		UpdatedBy: req.UserID,
	}
	if err := f.templateRepo.Save(ctx, tpl); err != nil {
		return nil, NewBusinessError("CREATE_TEMPLATE_FAILED", "Failed to create template", err)
	}

	requestLogger(ctx, f.logger).Info("Template created", "tenant_id", req.TenantID, "template_id", tpl.ID, "channel", channel)
	item := ToTemplateItem(tpl)
	return &item, nil
}

// Update archives the current version into history and advances the live row.
// The live row keeps its id; only its content and version change.
func (f *TemplateFlowImpl) Update(ctx context.Context, req *dto.UpdateTemplateRequest) (*dto.TemplateItem, error) {
	var updated *models.Template
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		tpl, err := f.load(txCtx, req.TenantID, req.TemplateID)
		if err != nil {
			return err
		}
		if utils.IsTrue(tpl.IsSystem) {
			return NewBusinessError("SYSTEM_TEMPLATE_IMMUTABLE", "System templates cannot be modified", ErrSystemTemplateImmutable)
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name != tpl.Name {
				clash, err := f.templateRepo.ByName(txCtx, tpl.TenantID, name, tpl.Channel)
				if err != nil {
					return NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to check template name", err)
				}
				if clash != nil && clash.ID != tpl.ID {
					return NewBusinessErrorf("TEMPLATE_ALREADY_EXISTS", "Template %q already exists for %s", ErrTemplateAlreadyExists, name, tpl.Channel)
				}
			}
		}

		previous := tpl.Snapshot()
		if err := f.historyRepo.Save(txCtx, models.NewTemplateHistory(tpl.ID, tpl.TenantID, previous, req.UserID)); err != nil {
			return NewBusinessError("ARCHIVE_TEMPLATE_FAILED", "Failed to archive template version", err)
		}

		if req.Name != nil {
			tpl.Name = strings.TrimSpace(*req.Name)
		}
		if req.Category != nil {
			tpl.Category = models.TemplateCategory(*req.Category)
		}
		if req.Subject != nil {
			tpl.Subject = req.Subject
		}
		if req.Body != nil {
			tpl.Body = *req.Body
		}
		if req.IsActive != nil {
			tpl.IsActive = utils.ToPtr(*req.IsActive)
		}
		tpl.Variables = pq.StringArray(templateVariables(f.renderer, tpl.Subject, tpl.Body))
		tpl.Version = previous.Version + 1
		tpl.UpdatedBy = req.UserID
		tpl.UpdatedAt = utils.UTCNow()

		if err := f.templateRepo.Update(txCtx, tpl); err != nil {
			return NewBusinessError("UPDATE_TEMPLATE_FAILED", "Failed to update template", err)
		}
		updated = tpl
		return nil
	})
	if err != nil {
		return nil, err
	}

	requestLogger(ctx, f.logger).Info("Template updated", "tenant_id", req.TenantID, "template_id", updated.ID, "version", updated.Version)
	item := ToTemplateItem(updated)
	return &item, nil
}

// Deactivate hides a template from new sends. Templates still bound to an
// active automation rule cannot be deactivated.
func (f *TemplateFlowImpl) Deactivate(ctx context.Context, tenantID, templateID uint) (*dto.TemplateItem, error) {
	tpl, err := f.load(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if utils.IsTrue(tpl.IsSystem) {
		return nil, NewBusinessError("SYSTEM_TEMPLATE_IMMUTABLE", "System templates cannot be deleted", ErrSystemTemplateImmutable)
	}
	if !utils.IsTrue(tpl.IsActive) {
		item := ToTemplateItem(tpl)
		return &item, nil
	}

	inUse, err := f.ruleRepo.Exists(ctx, models.AutomationRuleFilter{
		TenantID:   &tenantID,
		TemplateID: &templateID,
		IsActive:   utils.ToPtr(true),
	})
	if err != nil {
		return nil, NewBusinessError("RULE_LOOKUP_FAILED", "Failed to check automation rules", err)
	}
	if inUse {
		return nil, NewBusinessError("TEMPLATE_IN_USE", "Template is used by an active automation rule", ErrTemplateInUse)
	}

	tpl.IsActive = utils.ToPtr(false)
	tpl.UpdatedAt = utils.UTCNow()
	if err := f.templateRepo.Update(ctx, tpl); err != nil {
		return nil, NewBusinessError("UPDATE_TEMPLATE_FAILED", "Failed to deactivate template", err)
	}
	item := ToTemplateItem(tpl)
	return &item, nil
}

func (f *TemplateFlowImpl) Get(ctx context.Context, tenantID, templateID uint) (*dto.TemplateItem, error) {
	tpl, err := f.load(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	item := ToTemplateItem(tpl)
	return &item, nil
}

func (f *TemplateFlowImpl) List(ctx context.Context, req *dto.ListTemplatesRequest) ([]dto.TemplateItem, error) {
	filter := models.TemplateFilter{TenantID: &req.TenantID, IsActive: req.IsActive}
	if req.Channel != nil {
		filter.Channel = utils.ToPtr(models.MessageChannel(*req.Channel))
	}
	if req.Category != nil {
		filter.Category = utils.ToPtr(models.TemplateCategory(*req.Category))
	}

	rows, err := f.templateRepo.ByFilter(ctx, filter, "name ASC, channel ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_TEMPLATES_FAILED", "Failed to list templates", err)
	}
	items := make([]dto.TemplateItem, 0, len(rows))
	for _, t := range rows {
		items = append(items, ToTemplateItem(t))
	}
	return items, nil
}

// History lists archived versions of a template, newest first
func (f *TemplateFlowImpl) History(ctx context.Context, tenantID, templateID uint) ([]dto.TemplateHistoryItem, error) {
	if _, err := f.load(ctx, tenantID, templateID); err != nil {
		return nil, err
	}
	rows, err := f.historyRepo.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, NewBusinessError("LIST_TEMPLATE_HISTORY_FAILED", "Failed to list template history", err)
	}
	items := make([]dto.TemplateHistoryItem, 0, len(rows))
	for _, h := range rows {
		items = append(items, ToTemplateHistoryItem(h))
	}
	return items, nil
}

// Preview renders a stored template or ad-hoc content. With an interview id the
// interview's variables are available, overlaid by the request context.
func (f *TemplateFlowImpl) Preview(ctx context.Context, req *dto.PreviewTemplateRequest) (*dto.PreviewTemplateResponse, error) {
	subject, body := req.Subject, utils.Deref(req.Body)
	if req.TemplateID != nil {
		tpl, err := f.load(ctx, req.TenantID, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		subject, body = tpl.Subject, tpl.Body
	}
	if strings.TrimSpace(body) == "" {
		return nil, NewBusinessError("CONTENT_REQUIRED", "Either template_id or body is required", ErrContentRequired)
	}

	vars := map[string]any{}
	if req.InterviewID != nil {
		resolved, err := f.variables.ResolveForInterview(ctx, req.TenantID, *req.InterviewID)
		if err != nil {
			return nil, err
		}
		vars = resolved.Merged()
	}
	maps.Copy(vars, req.Context)

	content := renderContent(f.renderer, subject, body, vars)
	return &dto.PreviewTemplateResponse{
		Subject:   content.Subject,
		Body:      content.Body,
		Variables: templateVariables(f.renderer, subject, body),
		HadError:  content.RenderError != "",
		Error:     content.RenderError,
	}, nil
}
