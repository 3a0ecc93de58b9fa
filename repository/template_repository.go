package repository

import (
	"context"
	"errors"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"gorm.io/gorm"
)

// TemplateRepositoryImpl implements TemplateRepository interface
type TemplateRepositoryImpl struct {
	*BaseRepository[models.Template, models.TemplateFilter]
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &TemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Template, models.TemplateFilter](db),
	}
}

// ByTenantAndID retrieves a template scoped to a tenant
func (r *TemplateRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.Template, error) {
	db := r.getDB(ctx)
	var row models.Template
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByName retrieves a template by its unique (tenant, name, channel) key
func (r *TemplateRepositoryImpl) ByName(ctx context.Context, tenantID uint, name string, channel models.MessageChannel) (*models.Template, error) {
	rows, err := r.ByFilter(ctx, models.TemplateFilter{TenantID: &tenantID, Name: &name, Channel: &channel}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *TemplateRepositoryImpl) applyFilter(query *gorm.DB, filter models.TemplateFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", *filter.Channel)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsSystem != nil {
		query = query.Where("is_system = ?", *filter.IsSystem)
	}
	return query
}

// ByFilter retrieves templates based on filter criteria
func (r *TemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.TemplateFilter, orderBy string, limit, offset int) ([]*models.Template, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Template{}), filter)
	query = paginate(query, orderBy, "name ASC, channel ASC", limit, offset)

	var rows []*models.Template
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of templates matching filter
func (r *TemplateRepositoryImpl) Count(ctx context.Context, filter models.TemplateFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Template{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any template matches the filter
func (r *TemplateRepositoryImpl) Exists(ctx context.Context, filter models.TemplateFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// TemplateHistoryRepositoryImpl implements TemplateHistoryRepository interface
type TemplateHistoryRepositoryImpl struct {
	*BaseRepository[models.TemplateHistory, struct{}]
}

// NewTemplateHistoryRepository creates a new template history repository
func NewTemplateHistoryRepository(db *gorm.DB) TemplateHistoryRepository {
	return &TemplateHistoryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.TemplateHistory, struct{}](db),
	}
}

// ListByTemplate returns archived versions of a template, newest first
func (r *TemplateHistoryRepositoryImpl) ListByTemplate(ctx context.Context, templateID uint) ([]*models.TemplateHistory, error) {
	db := r.getDB(ctx)
	var rows []*models.TemplateHistory
	if err := db.Where("template_id = ?", templateID).Order("version DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
