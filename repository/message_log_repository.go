package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"gorm.io/gorm"
)

// MessageLogRepositoryImpl implements MessageLogRepository interface
type MessageLogRepositoryImpl struct {
	*BaseRepository[models.MessageLog, models.MessageLogFilter]
}

// NewMessageLogRepository creates a new message log repository
func NewMessageLogRepository(db *gorm.DB) MessageLogRepository {
	return &MessageLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageLog, models.MessageLogFilter](db),
	}
}

// ByTenantAndID retrieves a message log scoped to a tenant
func (r *MessageLogRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.MessageLog, error) {
	db := r.getDB(ctx)
	var row models.MessageLog
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByExternalID retrieves the message a provider receipt refers to
func (r *MessageLogRepositoryImpl) ByExternalID(ctx context.Context, externalID string) (*models.MessageLog, error) {
	rows, err := r.ByFilter(ctx, models.MessageLogFilter{ExternalID: &externalID}, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// MarkSent records a successful provider hand-off
func (r *MessageLogRepositoryImpl) MarkSent(ctx context.Context, id uint, externalID string, sentAt time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		updates := map[string]any{
			"status":     models.MessageStatusSent,
			"sent_at":    sentAt,
			"updated_at": sentAt,
		}
		if externalID != "" {
			updates["external_id"] = externalID
		}
		res := db.Model(&models.MessageLog{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark message %d sent: %w", id, res.Error)
		}
		return nil
	})
}

// MarkFailed records a failed attempt, bumping the retry counter and keeping the error text in metadata
func (r *MessageLogRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string, failedAt time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).Where("id = ?", id).Updates(map[string]any{
			"status":      models.MessageStatusFailed,
			"failed_at":   failedAt,
			"updated_at":  failedAt,
			"retry_count": gorm.Expr("retry_count + 1"),
			"metadata": gorm.Expr(
				"COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('error', ?::text, 'failedAt', ?::text)",
				reason, failedAt.Format(time.RFC3339),
			),
		})
		if res.Error != nil {
			return fmt.Errorf("failed to mark message %d failed: %w", id, res.Error)
		}
		return nil
	})
}

// ResetForRetry moves a FAILED message back to QUEUED. It reports false when the
// message was no longer FAILED, so concurrent retries of one message re-enqueue once.
func (r *MessageLogRepositoryImpl) ResetForRetry(ctx context.Context, id uint) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.MessageLog{}).
			Where("id = ? AND status = ?", id, models.MessageStatusFailed).
			Updates(map[string]any{
				"status":      models.MessageStatusQueued,
				"retry_count": gorm.Expr("retry_count + 1"),
				"failed_at":   nil,
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reset message %d: %w", id, res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected > 0, err
}

// CountGrouped aggregates matching messages by status or channel
func (r *MessageLogRepositoryImpl) CountGrouped(ctx context.Context, filter models.MessageLogFilter, groupBy MessageGroupBy) ([]models.MessageCount, error) {
	switch groupBy {
	case MessageGroupByStatus, MessageGroupByChannel:
	default:
		return nil, fmt.Errorf("unsupported group by %q", groupBy)
	}

	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MessageLog{}), filter)

	var rows []models.MessageCount
	err := query.
		Select(fmt.Sprintf("%s AS key, COUNT(*) AS count", groupBy)).
		Group(string(groupBy)).
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MessageLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.MessageLogFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
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
	if filter.RecipientType != nil {
		query = query.Where("recipient_type = ?", *filter.RecipientType)
	}
	if filter.RecipientID != nil {
		query = query.Where("recipient_id = ?", *filter.RecipientID)
	}
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.ExternalID != nil {
		query = query.Where("external_id = ?", *filter.ExternalID)
	}
	if filter.Search != nil && *filter.Search != "" {
		like := "%" + *filter.Search + "%"
		query = query.Where(
			"(subject ILIKE ? OR body ILIKE ? OR recipient_email ILIKE ? OR recipient_phone ILIKE ? OR recipient_id ILIKE ?)",
			like, like, like, like, like,
		)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves message logs based on filter criteria
func (r *MessageLogRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageLogFilter, orderBy string, limit, offset int) ([]*models.MessageLog, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MessageLog{}), filter)
	query = paginate(query, orderBy, "created_at DESC, id DESC", limit, offset)

	var rows []*models.MessageLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of message logs matching filter
func (r *MessageLogRepositoryImpl) Count(ctx context.Context, filter models.MessageLogFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MessageLog{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any message log matches the filter
func (r *MessageLogRepositoryImpl) Exists(ctx context.Context, filter models.MessageLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
