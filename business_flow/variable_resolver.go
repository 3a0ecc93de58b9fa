package businessflow

import (
	"context"
	"log/slog"
	"maps"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// PlaceholderInterviewerName stands in for an interview without an interviewer
const PlaceholderInterviewerName = "Interviewer"

// TemplateVariables holds the same values twice: nested by entity and flattened
// to dotted keys, so templates can address interview.date either way
type TemplateVariables struct {
	Nested map[string]any
	Flat   map[string]any
}

// Merged returns a single context carrying both shapes
func (v *TemplateVariables) Merged() map[string]any {
	out := make(map[string]any, len(v.Nested)+len(v.Flat))
	maps.Copy(out, v.Nested)
	maps.Copy(out, v.Flat)
	return out
}

// VariableResolver loads the template variables an interview makes available
type VariableResolver interface {
	ResolveForInterview(ctx context.Context, tenantID, interviewID uint) (*TemplateVariables, error)
}

// VariableResolverImpl implements VariableResolver
type VariableResolverImpl struct {
	interviewRepo repository.InterviewRepository
	tenantRepo    repository.TenantRepository
	logger        *slog.Logger
}

func NewVariableResolver(interviewRepo repository.InterviewRepository, tenantRepo repository.TenantRepository, logger *slog.Logger) VariableResolver {
	return &VariableResolverImpl{interviewRepo: interviewRepo, tenantRepo: tenantRepo, logger: logger}
}

// ResolveForInterview fails with ErrInterviewNotFound when the interview is not the tenant's.
// A missing interviewer becomes a placeholder rather than an error.
func (r *VariableResolverImpl) ResolveForInterview(ctx context.Context, tenantID, interviewID uint) (*TemplateVariables, error) {
	iv, err := r.interviewRepo.ByTenantAndID(ctx, tenantID, interviewID)
	if err != nil {
		return nil, NewBusinessError("INTERVIEW_LOOKUP_FAILED", "Failed to load interview", err)
	}
	if iv == nil {
		return nil, NewBusinessError("INTERVIEW_NOT_FOUND", "Interview not found", ErrInterviewNotFound)
	}

	tenant, err := r.tenantRepo.ByID(ctx, tenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to load tenant", err)
	}
	if tenant == nil {
		tenant = &models.Tenant{ID: tenantID}
	}
	loc := tenant.Location()

	candidate := map[string]any{}
	if iv.Candidate != nil {
		candidate = CandidateRecipient(iv.Candidate, "").Vars
	}

	interviewer := map[string]any{"name": PlaceholderInterviewerName, "email": "", "phone": ""}
	if iv.Interviewer != nil {
		interviewer = UserRecipient(iv.Interviewer, models.RecipientTypeInterviewer, "").Vars
	} else {
		r.logger.Warn("Interview has no interviewer, using placeholder", "tenant_id", tenantID, "interview_id", interviewID)
	}

	at := iv.ScheduledAt.In(loc)
	interview := map[string]any{
		"id":          iv.ID,
		"title":       iv.Title,
		"type":        string(iv.Type),
		"status":      string(iv.Status),
		"date":        at,
		"dateText":    at.Format(services.DefaultDateLayout),
		"time":        at.Format(services.DefaultTimeLayout),
		"duration":    iv.DurationMinutes,
		"location":    utils.Deref(iv.Location),
		"meetingLink": utils.Deref(iv.MeetingLink),
		"timezone":    loc.String(),
	}

	company := map[string]any{
		"name":        tenant.Name,
		"website":     utils.Deref(tenant.Website),
		"senderName":  utils.Deref(tenant.SenderName),
		"senderEmail": utils.Deref(tenant.SenderEmail),
	}

	nested := map[string]any{
		"candidate":   candidate,
		"interviewer": interviewer,
		"interview":   interview,
		"company":     company,
	}
	return &TemplateVariables{Nested: nested, Flat: Flatten(nested)}, nil
}

// Flatten turns nested maps into dotted keys; non-map values are kept as leaves
func Flatten(nested map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", nested)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(out, key, child)
			continue
		}
		out[key] = v
	}
}
