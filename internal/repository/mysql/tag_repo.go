package mysql

import (
	"context"
	"strings"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TagRepository struct {
	DB *gorm.DB
}

// GetOrCreate returns the ids of the named tags, creating missing ones.
// Names are trimmed and lowercased; blanks and duplicates are dropped.
func (r *TagRepository) GetOrCreate(ctx context.Context, names []string) ([]uint64, error) {
	seen := make(map[string]struct{}, len(names))
	var clean []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		clean = append(clean, n)
	}
	if len(clean) == 0 {
		return nil, nil
	}
	tags := make([]model.Tag, 0, len(clean))
	for _, n := range clean {
		tags = append(tags, model.Tag{Name: n})
	}
	db := r.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tags).Error; err != nil {
		return nil, err
	}
	var ids []uint64
	err := db.Model(&model.Tag{}).Where("name IN ?", clean).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *TagRepository) List(ctx context.Context, q string, offset, limit int) ([]model.Tag, error) {
	db := r.DB.WithContext(ctx).Model(&model.Tag{})
	if q != "" {
		db = db.Where("name LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	var list []model.Tag
	err := db.Order("name ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}

type CommentRepository struct {
	DB *gorm.DB
}

func (r *CommentRepository) Create(ctx context.Context, c *model.Comment) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *CommentRepository) FindByID(ctx context.Context, id uint64) (*model.Comment, error) {
	var c model.Comment
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *CommentRepository) List(ctx context.Context, kind model.ContentKind, contentID uint64, offset, limit int) ([]model.Comment, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.Comment{}).Where("content_kind = ? AND content_id = ?", kind, contentID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Comment
	err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

// Counts maps content ids to their comment totals.
func (r *CommentRepository) Counts(ctx context.Context, kind model.ContentKind, contentIDs []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(contentIDs))
	if len(contentIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ContentID uint64
		N         int64
	}
	if err := r.DB.WithContext(ctx).Model(&model.Comment{}).
		Select("content_id, COUNT(*) AS n").
		Where("content_kind = ? AND content_id IN ?", kind, contentIDs).
		Group("content_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ContentID] = row.N
	}
	return out, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Delete(&model.Comment{}, id).Error
}
