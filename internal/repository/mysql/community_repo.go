package mysql

import (
	"context"

	"geounity/internal/model"

	"gorm.io/gorm"
)

type CommunityRepository struct {
	DB *gorm.DB
}

type CommunityFilter struct {
	Level    string
	ParentID *uint64
	Search   string
}

func (r *CommunityRepository) Create(ctx context.Context, c *model.Community) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *CommunityRepository) FindByID(ctx context.Context, id uint64) (*model.Community, error) {
	var community model.Community
	err := r.DB.WithContext(ctx).First(&community, id).Error
	return &community, err
}

func (r *CommunityRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.Community, error) {
	var list []model.Community
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&list).Error
	return list, err
}

// FindRoot returns the GLOBAL community, the root of the tree.
func (r *CommunityRepository) FindRoot(ctx context.Context) (*model.Community, error) {
	var community model.Community
	err := r.DB.WithContext(ctx).
		Where("level = ? AND parent_id IS NULL", model.LevelGlobal).
		Order("id ASC").
		First(&community).Error
	return &community, err
}

func (r *CommunityRepository) List(ctx context.Context, f CommunityFilter, offset, limit int) ([]model.Community, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Community{})
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.ParentID != nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	}
	if f.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+f.Search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Community
	err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *CommunityRepository) Children(ctx context.Context, parentID uint64) ([]model.Community, error) {
	var list []model.Community
	err := r.DB.WithContext(ctx).Where("parent_id = ?", parentID).Order("name ASC").Find(&list).Error
	return list, err
}

type CommunityRequestRepository struct {
	DB *gorm.DB
}

func (r *CommunityRequestRepository) Create(ctx context.Context, req *model.CommunityRequest) error {
	return r.DB.WithContext(ctx).Create(req).Error
}

func (r *CommunityRequestRepository) FindByID(ctx context.Context, id uint64) (*model.CommunityRequest, error) {
	var req model.CommunityRequest
	err := r.DB.WithContext(ctx).First(&req, id).Error
	return &req, err
}

func (r *CommunityRequestRepository) List(ctx context.Context, status string, offset, limit int) ([]model.CommunityRequest, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.CommunityRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.CommunityRequest
	err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *CommunityRequestRepository) Save(ctx context.Context, req *model.CommunityRequest) error {
	return r.DB.WithContext(ctx).Save(req).Error
}
