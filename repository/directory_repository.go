package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// refColumn maps an external reference to the column it identifies: numeric ids or UUIDs
func refColumn(ref string) (string, any, bool) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return "id", uint(id), true
	}
	if parsed, err := uuid.Parse(ref); err == nil {
		return "uuid", parsed, true
	}
	return "", nil, false
}

// TenantRepositoryImpl implements TenantRepository interface
type TenantRepositoryImpl struct {
	*BaseRepository[models.Tenant, models.TenantFilter]
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &TenantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Tenant, models.TenantFilter](db),
	}
}

// BySlug retrieves a tenant by slug
func (r *TenantRepositoryImpl) BySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	rows, err := r.ByFilter(ctx, models.TenantFilter{Slug: &slug}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *TenantRepositoryImpl) applyFilter(query *gorm.DB, filter models.TenantFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Slug != nil {
		query = query.Where("slug = ?", *filter.Slug)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

// ByFilter retrieves tenants based on filter criteria
func (r *TenantRepositoryImpl) ByFilter(ctx context.Context, filter models.TenantFilter, orderBy string, limit, offset int) ([]*models.Tenant, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Tenant{}), filter)
	query = paginate(query, orderBy, "id ASC", limit, offset)
	var rows []*models.Tenant
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of tenants matching filter
func (r *TenantRepositoryImpl) Count(ctx context.Context, filter models.TenantFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.Tenant{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any tenant matches the filter
func (r *TenantRepositoryImpl) Exists(ctx context.Context, filter models.TenantFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

// CandidateRepositoryImpl implements CandidateRepository interface
type CandidateRepositoryImpl struct {
	*BaseRepository[models.Candidate, models.CandidateFilter]
}

// NewCandidateRepository creates a new candidate repository
func NewCandidateRepository(db *gorm.DB) CandidateRepository {
	return &CandidateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Candidate, models.CandidateFilter](db),
	}
}

// ByTenantAndRef retrieves a live candidate of a tenant by numeric id or UUID
func (r *CandidateRepositoryImpl) ByTenantAndRef(ctx context.Context, tenantID uint, ref string) (*models.Candidate, error) {
	column, value, ok := refColumn(ref)
	if !ok {
		return nil, nil
	}
	var row models.Candidate
	err := r.getDB(ctx).Where("tenant_id = ?", tenantID).Where(column+" = ?", value).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *CandidateRepositoryImpl) applyFilter(query *gorm.DB, filter models.CandidateFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.Stage != nil {
		query = query.Where("stage = ?", *filter.Stage)
	}
	return query
}

// ByFilter retrieves candidates based on filter criteria
func (r *CandidateRepositoryImpl) ByFilter(ctx context.Context, filter models.CandidateFilter, orderBy string, limit, offset int) ([]*models.Candidate, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Candidate{}), filter)
	query = paginate(query, orderBy, "id DESC", limit, offset)
	var rows []*models.Candidate
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of candidates matching filter
func (r *CandidateRepositoryImpl) Count(ctx context.Context, filter models.CandidateFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.Candidate{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any candidate matches the filter
func (r *CandidateRepositoryImpl) Exists(ctx context.Context, filter models.CandidateFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db),
	}
}

// ByTenantAndRef retrieves a tenant member by numeric id or UUID, regardless of status
func (r *UserRepositoryImpl) ByTenantAndRef(ctx context.Context, tenantID uint, ref string) (*models.User, error) {
	column, value, ok := refColumn(ref)
	if !ok {
		return nil, nil
	}
	var row models.User
	err := r.getDB(ctx).Where("tenant_id = ?", tenantID).Where(column+" = ?", value).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *UserRepositoryImpl) applyFilter(query *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// ByFilter retrieves users based on filter criteria
func (r *UserRepositoryImpl) ByFilter(ctx context.Context, filter models.UserFilter, orderBy string, limit, offset int) ([]*models.User, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.User{}), filter)
	query = paginate(query, orderBy, "id ASC", limit, offset)
	var rows []*models.User
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of users matching filter
func (r *UserRepositoryImpl) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.User{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any user matches the filter
func (r *UserRepositoryImpl) Exists(ctx context.Context, filter models.UserFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

// InterviewRepositoryImpl implements InterviewRepository interface
type InterviewRepositoryImpl struct {
	*BaseRepository[models.Interview, models.InterviewFilter]
}

// NewInterviewRepository creates a new interview repository
func NewInterviewRepository(db *gorm.DB) InterviewRepository {
	return &InterviewRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Interview, models.InterviewFilter](db),
	}
}

// ByTenantAndID retrieves an interview scoped to a tenant with its candidate and interviewer
func (r *InterviewRepositoryImpl) ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.Interview, error) {
	var row models.Interview
	err := r.getDB(ctx).
		Preload("Candidate").
		Preload("Interviewer").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *InterviewRepositoryImpl) applyFilter(query *gorm.DB, filter models.InterviewFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.CandidateID != nil {
		query = query.Where("candidate_id = ?", *filter.CandidateID)
	}
	if filter.InterviewerID != nil {
		query = query.Where("interviewer_id = ?", *filter.InterviewerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ScheduledAfter != nil {
		query = query.Where("scheduled_at >= ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		query = query.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	return query
}

// ByFilter retrieves interviews based on filter criteria
func (r *InterviewRepositoryImpl) ByFilter(ctx context.Context, filter models.InterviewFilter, orderBy string, limit, offset int) ([]*models.Interview, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Interview{}), filter)
	query = paginate(query, orderBy, "scheduled_at ASC", limit, offset)
	var rows []*models.Interview
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of interviews matching filter
func (r *InterviewRepositoryImpl) Count(ctx context.Context, filter models.InterviewFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.Interview{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any interview matches the filter
func (r *InterviewRepositoryImpl) Exists(ctx context.Context, filter models.InterviewFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}
