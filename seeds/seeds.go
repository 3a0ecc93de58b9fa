// Package seeds loads the built-in system templates and installs them per tenant
package seeds

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"gopkg.in/yaml.v3"
)

//go:embed system_templates.yaml
var systemTemplatesYAML []byte

// SystemTemplate is one entry of the embedded seed file
type SystemTemplate struct {
	Name     string `yaml:"name"`
	Channel  string `yaml:"channel"`
	Category string `yaml:"category"`
	Subject  string `yaml:"subject"`
	Body     string `yaml:"body"`
}

type seedFile struct {
	Templates []SystemTemplate `yaml:"templates"`
}

// LoadSystemTemplates parses the embedded seed file
func LoadSystemTemplates() ([]SystemTemplate, error) {
	return ParseSystemTemplates(systemTemplatesYAML)
}

// ParseSystemTemplates parses and validates a seed document
func ParseSystemTemplates(raw []byte) ([]SystemTemplate, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse system templates: %w", err)
	}
	seen := make(map[string]bool, len(f.Templates))
	for i, t := range f.Templates {
		if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Body) == "" {
			return nil, fmt.Errorf("system template #%d: name and body are required", i+1)
		}
		if !models.MessageChannel(t.Channel).Valid() {
			return nil, fmt.Errorf("system template %q: unsupported channel %q", t.Name, t.Channel)
		}
		key := t.Name + "/" + t.Channel
		if seen[key] {
			return nil, fmt.Errorf("system template %q is defined twice for %s", t.Name, t.Channel)
		}
		seen[key] = true
	}
	return f.Templates, nil
}

// Result counts what one tenant's seeding did
type Result struct {
	TenantID uint
	Created  int
	Existing int
}

// Seeder installs system templates into tenants
type Seeder struct {
	tenants   repository.TenantRepository
	templates repository.TemplateRepository
	renderer  services.TemplateRenderer
	logger    *slog.Logger
}

func NewSeeder(tenants repository.TenantRepository, templates repository.TemplateRepository, renderer services.TemplateRenderer, logger *slog.Logger) *Seeder {
	return &Seeder{tenants: tenants, templates: templates, renderer: renderer, logger: logger}
}

// SeedAll seeds every active tenant, or only the tenant with the given slug
func (s *Seeder) SeedAll(ctx context.Context, slug string, defs []SystemTemplate) ([]Result, error) {
	var tenants []*models.Tenant
	if slug != "" {
		t, err := s.tenants.BySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("tenant %q not found", slug)
		}
		tenants = append(tenants, t)
	} else {
		var err error
		tenants, err = s.tenants.ByFilter(ctx, models.TenantFilter{IsActive: utils.ToPtr(true)}, "id ASC", 0, 0)
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(tenants))
	for _, t := range tenants {
		res, err := s.SeedTenant(ctx, t.ID, defs)
		if err != nil {
			return results, fmt.Errorf("tenant %d: %w", t.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// SeedTenant creates the system templates a tenant is missing. Existing rows are
// left alone so reruns are safe.
func (s *Seeder) SeedTenant(ctx context.Context, tenantID uint, defs []SystemTemplate) (Result, error) {
	res := Result{TenantID: tenantID}
	for _, def := range defs {
		channel := models.MessageChannel(def.Channel)
		existing, err := s.templates.ByName(ctx, tenantID, def.Name, channel)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Existing++
			continue
		}

		category := models.TemplateCategory(strings.ToUpper(def.Category))
		if category == "" {
			category = models.TemplateCategoryGeneral
		}
		vars := s.renderer.ExtractVariables(def.Subject + "\n" + def.Body)
		slices.Sort(vars)

		tpl := &models.Template{
			TenantID:  tenantID,
			Name:      def.Name,
			Channel:   channel,
			Category:  category,
			Subject:   utils.NonEmptyPtr(def.Subject),
			Body:      def.Body,
			Variables: slices.Compact(vars),
			Version:   1,
			IsSystem:  utils.ToPtr(true),
			IsActive:  utils.ToPtr(true),
		}
		if err := s.templates.Save(ctx, tpl); err != nil {
			return res, fmt.Errorf("failed to save system template %q: %w", def.Name, err)
		}
		res.Created++
	}
	s.logger.Info("System templates seeded", "tenant_id", tenantID, "created", res.Created, "existing", res.Existing)
	return res, nil
}
