package mysql

import (
	"context"
	"errors"
	"strconv"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IssueRepository struct {
	DB *gorm.DB
}

func (r *IssueRepository) Create(ctx context.Context, is *model.Issue) error {
	return r.DB.WithContext(ctx).Create(is).Error
}

func (r *IssueRepository) FindByIDOrSlug(ctx context.Context, key string) (*model.Issue, error) {
	var is model.Issue
	db := r.DB.WithContext(ctx)
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		db = db.Where("id = ?", id)
	} else {
		db = db.Where("slug = ?", key)
	}
	err := db.First(&is).Error
	return &is, err
}

func (r *IssueRepository) FindByID(ctx context.Context, id uint64) (*model.Issue, error) {
	var is model.Issue
	err := r.DB.WithContext(ctx).First(&is, id).Error
	return &is, err
}

type IssueFilter struct {
	ContentFilter
	CategoryID     uint64
	OrganizationID uint64
}

func (r *IssueRepository) List(ctx context.Context, f IssueFilter, offset, limit int) ([]model.Issue, int64, error) {
	q := applyContentFilter(r.DB.WithContext(ctx).Model(&model.Issue{}), model.KindIssue, "scope", f.ContentFilter)
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.OrganizationID != 0 {
		q = q.Where("organization_id = ?", f.OrganizationID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Issue
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *IssueRepository) Updates(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Issue{}).Where("id = ?", id).Updates(fields).Error
}

func (r *IssueRepository) Delete(ctx context.Context, id uint64) error {
	db := r.DB.WithContext(ctx)
	for _, m := range []any{&model.IssueSupport{}, &model.IssueUpdate{}} {
		if err := db.Where("issue_id = ?", id).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := (&ContentRepository{DB: r.DB}).DeleteLinks(ctx, model.KindIssue, id); err != nil {
		return err
	}
	return db.Delete(&model.Issue{}, id).Error
}

// ToggleSupport flips the user's support and moves support_count with it.
// supported is the state after the call. Run inside a transaction.
func (r *IssueRepository) ToggleSupport(ctx context.Context, issueID, userID uint64) (supported bool, err error) {
	db := r.DB.WithContext(ctx)
	var s model.IssueSupport
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("issue_id = ? AND user_id = ?", issueID, userID).First(&s).Error
	switch {
	case err == nil:
		if err = db.Delete(&s).Error; err != nil {
			return false, err
		}
		err = db.Model(&model.Issue{}).Where("id = ?", issueID).
			UpdateColumn("support_count", floorZero("support_count", -1)).Error
		return false, err
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err = db.Create(&model.IssueSupport{IssueID: issueID, UserID: userID}).Error; err != nil {
			return false, err
		}
		err = db.Model(&model.Issue{}).Where("id = ?", issueID).
			UpdateColumn("support_count", gorm.Expr("support_count + ?", 1)).Error
		return err == nil, err
	default:
		return false, err
	}
}

func (r *IssueRepository) HasSupported(ctx context.Context, issueID, userID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.IssueSupport{}).
		Where("issue_id = ? AND user_id = ?", issueID, userID).Count(&n).Error
	return n > 0, err
}

func (r *IssueRepository) AddUpdate(ctx context.Context, u *model.IssueUpdate) error {
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *IssueRepository) ListUpdates(ctx context.Context, issueID uint64) ([]model.IssueUpdate, error) {
	var list []model.IssueUpdate
	err := r.DB.WithContext(ctx).Where("issue_id = ?", issueID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *IssueRepository) Categories(ctx context.Context) ([]model.IssueCategory, error) {
	var list []model.IssueCategory
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&list).Error
	return list, err
}

func (r *IssueRepository) FindCategory(ctx context.Context, id uint64) (*model.IssueCategory, error) {
	var c model.IssueCategory
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *IssueRepository) CreateCategory(ctx context.Context, c *model.IssueCategory) error {
	return r.DB.WithContext(ctx).Create(c).Error
}
