package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"gorm.io/gorm"
)

// ScheduledMessageRepositoryImpl implements ScheduledMessageRepository interface
type ScheduledMessageRepositoryImpl struct {
	*BaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter]
}

// NewScheduledMessageRepository creates a new scheduled message repository
func NewScheduledMessageRepository(db *gorm.DB) ScheduledMessageRepository {
	return &ScheduledMessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ScheduledMessage, models.ScheduledMessageFilter](db),
	}
}

// ByTenantAndID retrieves a scheduled message scoped to a tenant
func (r *ScheduledMessageRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.ScheduledMessage, error) {
	db := r.getDB(ctx)
	var row models.ScheduledMessage
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListDue returns up to limit PENDING rows whose time has come, oldest first
func (r *ScheduledMessageRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	status := models.ScheduledMessageStatusPending
	return r.ByFilter(ctx, models.ScheduledMessageFilter{
		Status:          &status,
		ScheduledBefore: &now,
	}, "scheduled_for ASC, id ASC", limit, 0)
}

// transition flips a PENDING row to a terminal status; false means another actor got there first
func (r *ScheduledMessageRepositoryImpl) transition(ctx context.Context, scope func(*gorm.DB) *gorm.DB, updates map[string]any) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		query := db.Model(&models.ScheduledMessage{}).Where("status = ?", models.ScheduledMessageStatusPending)
		res := scope(query).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	return affected > 0, err
}

// MarkSent records promotion of a scheduled message into the given message log
func (r *ScheduledMessageRepositoryImpl) MarkSent(ctx context.Context, id, messageLogID uint, at time.Time) (bool, error) {
	ok, err := r.transition(ctx, func(q *gorm.DB) *gorm.DB { return q.Where("id = ?", id) }, map[string]any{
		"status":         models.ScheduledMessageStatusSent,
		"message_log_id": messageLogID,
		"processed_at":   at,
		"updated_at":     at,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark scheduled message %d sent: %w", id, err)
	}
	return ok, nil
}

// MarkFailed records a promotion failure
func (r *ScheduledMessageRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	ok, err := r.transition(ctx, func(q *gorm.DB) *gorm.DB { return q.Where("id = ?", id) }, map[string]any{
		"status":       models.ScheduledMessageStatusFailed,
		"error":        reason,
		"processed_at": at,
		"updated_at":   at,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark scheduled message %d failed: %w", id, err)
	}
	return ok, nil
}

// Cancel flips a tenant's PENDING scheduled message to CANCELLED
func (r *ScheduledMessageRepositoryImpl) Cancel(ctx context.Context, tenantID, id uint, at time.Time) (bool, error) {
	ok, err := r.transition(ctx, func(q *gorm.DB) *gorm.DB { return q.Where("tenant_id = ? AND id = ?", tenantID, id) }, map[string]any{
		"status":       models.ScheduledMessageStatusCancelled,
		"processed_at": at,
		"updated_at":   at,
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel scheduled message %d: %w", id, err)
	}
	return ok, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *ScheduledMessageRepositoryImpl) applyFilter(query *gorm.DB, filter models.ScheduledMessageFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", *filter.Channel)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledBefore != nil {
		query = query.Where("scheduled_for <= ?", *filter.ScheduledBefore)
	}
	if filter.ScheduledAfter != nil {
		query = query.Where("scheduled_for >= ?", *filter.ScheduledAfter)
	}
	return query
}

// ByFilter retrieves scheduled messages based on filter criteria
func (r *ScheduledMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.ScheduledMessageFilter, orderBy string, limit, offset int) ([]*models.ScheduledMessage, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ScheduledMessage{}), filter)
	query = paginate(query, orderBy, "scheduled_for ASC, id ASC", limit, offset)

	var rows []*models.ScheduledMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of scheduled messages matching filter
func (r *ScheduledMessageRepositoryImpl) Count(ctx context.Context, filter models.ScheduledMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ScheduledMessage{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any scheduled message matches the filter
func (r *ScheduledMessageRepositoryImpl) Exists(ctx context.Context, filter models.ScheduledMessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
