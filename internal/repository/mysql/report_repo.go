package mysql

import (
	"context"
	"strings"

	"geounity/internal/model"

	"gorm.io/gorm"
)

type ReportRepository struct {
	DB *gorm.DB
}

func (r *ReportRepository) Create(ctx context.Context, rep *model.Report) error {
	return r.DB.WithContext(ctx).Create(rep).Error
}

func (r *ReportRepository) FindByID(ctx context.Context, id uint64) (*model.Report, error) {
	var rep model.Report
	err := r.DB.WithContext(ctx).First(&rep, id).Error
	return &rep, err
}

// HasOpen reports whether userID already has a pending or under-review report on the item.
func (r *ReportRepository) HasOpen(ctx context.Context, userID uint64, typ model.ReportType, itemID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Report{}).
		Where("reporter_id = ? AND type = ? AND item_id = ? AND status IN ?", userID, typ, itemID,
			[]model.ReportStatus{model.ReportPending, model.ReportUnderReview}).
		Count(&n).Error
	return n > 0, err
}

type ReportFilter struct {
	Status string
	Type   string
}

func (r *ReportRepository) List(ctx context.Context, f ReportFilter, offset, limit int) ([]model.Report, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Report{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Report
	err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *ReportRepository) Save(ctx context.Context, rep *model.Report) error {
	return r.DB.WithContext(ctx).Save(rep).Error
}

type OrganizationRepository struct {
	DB *gorm.DB
}

type OrganizationFilter struct {
	Level       string
	ParentID    *uint64
	CommunityID uint64
	RegionID    uint64
	SubregionID uint64
	LocalityID  uint64
	Search      string
}

func (r *OrganizationRepository) Create(ctx context.Context, o *model.Organization) error {
	return r.DB.WithContext(ctx).Create(o).Error
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id uint64) (*model.Organization, error) {
	var o model.Organization
	err := r.DB.WithContext(ctx).First(&o, id).Error
	return &o, err
}

func (r *OrganizationRepository) List(ctx context.Context, f OrganizationFilter, offset, limit int) ([]model.Organization, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Organization{})
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.ParentID != nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	}
	if f.CommunityID != 0 {
		q = q.Where("community_id = ?", f.CommunityID)
	}
	if f.RegionID != 0 {
		q = q.Where("region_id = ?", f.RegionID)
	}
	if f.SubregionID != 0 {
		q = q.Where("subregion_id = ?", f.SubregionID)
	}
	if f.LocalityID != 0 {
		q = q.Where("locality_id = ?", f.LocalityID)
	}
	if f.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Organization
	err := q.Order("name ASC, id ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *OrganizationRepository) Updates(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Organization{}).Where("id = ?", id).Updates(fields).Error
}

// Delete detaches children and issues before removing the organization.
func (r *OrganizationRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Organization{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Issue{}).Where("organization_id = ?", id).Update("organization_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Organization{}, id).Error
	})
}
