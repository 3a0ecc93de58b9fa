package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"gorm.io/gorm"
)

// AutomationRuleRepositoryImpl implements AutomationRuleRepository interface
type AutomationRuleRepositoryImpl struct {
	*BaseRepository[models.AutomationRule, models.AutomationRuleFilter]
}

// NewAutomationRuleRepository creates a new automation rule repository
func NewAutomationRuleRepository(db *gorm.DB) AutomationRuleRepository {
	return &AutomationRuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AutomationRule, models.AutomationRuleFilter](db),
	}
}

// ByTenantAndID retrieves a rule scoped to a tenant
func (r *AutomationRuleRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.AutomationRule, error) {
	db := r.getDB(ctx)
	var row models.AutomationRule
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListActive returns the active rules bound to a trigger, with their templates preloaded
func (r *AutomationRuleRepositoryImpl) ListActive(ctx context.Context, tenantID uint, trigger models.AutomationTrigger) ([]*models.AutomationRule, error) {
	db := r.getDB(ctx)
	var rows []*models.AutomationRule
	err := db.Preload("Template").
		Where("tenant_id = ? AND trigger = ? AND is_active = ?", tenantID, trigger, true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes a rule
func (r *AutomationRuleRepositoryImpl) Delete(ctx context.Context, tenantID, id uint) error {
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.AutomationRule{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete automation rule %d: %w", id, res.Error)
		}
		return nil
	})
}

// applyFilter applies filter criteria to a GORM query
func (r *AutomationRuleRepositoryImpl) applyFilter(query *gorm.DB, filter models.AutomationRuleFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Trigger != nil {
		query = query.Where("trigger = ?", *filter.Trigger)
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", *filter.Channel)
	}
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves rules based on filter criteria
func (r *AutomationRuleRepositoryImpl) ByFilter(ctx context.Context, filter models.AutomationRuleFilter, orderBy string, limit, offset int) ([]*models.AutomationRule, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AutomationRule{}), filter)
	query = paginate(query, orderBy, "id ASC", limit, offset)

	var rows []*models.AutomationRule
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of rules matching filter
func (r *AutomationRuleRepositoryImpl) Count(ctx context.Context, filter models.AutomationRuleFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AutomationRule{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any rule matches the filter
func (r *AutomationRuleRepositoryImpl) Exists(ctx context.Context, filter models.AutomationRuleFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
