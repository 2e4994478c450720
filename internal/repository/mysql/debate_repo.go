package mysql

import (
	"context"
	"errors"
	"strconv"
	"time"

	"geounity/internal/model"

	"gorm.io/gorm"
)

type DebateRepository struct {
	DB *gorm.DB
}

// live excludes soft-deleted debates.
func (r *DebateRepository) live(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&model.Debate{}).Where("deleted_at IS NULL")
}

func (r *DebateRepository) Create(ctx context.Context, d *model.Debate) error {
	return r.DB.WithContext(ctx).Create(d).Error
}

func (r *DebateRepository) FindByIDOrSlug(ctx context.Context, key string) (*model.Debate, error) {
	var d model.Debate
	q := r.live(ctx)
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("slug = ?", key)
	}
	err := q.First(&d).Error
	return &d, err
}

func (r *DebateRepository) FindByID(ctx context.Context, id uint64) (*model.Debate, error) {
	var d model.Debate
	err := r.live(ctx).Where("id = ?", id).First(&d).Error
	return &d, err
}

func (r *DebateRepository) List(ctx context.Context, f ContentFilter, offset, limit int) ([]model.Debate, int64, error) {
	q := applyContentFilter(r.live(ctx), model.KindDebate, "type", f)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Debate
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *DebateRepository) Updates(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Debate{}).Where("id = ?", id).Updates(fields).Error
}

func (r *DebateRepository) SoftDelete(ctx context.Context, id uint64, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.Debate{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("deleted_at", at).Error
}

func (r *DebateRepository) AddChangeLogs(ctx context.Context, logs []model.DebateChangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&logs).Error
}

func (r *DebateRepository) CreatePointsOfView(ctx context.Context, povs []model.PointOfView) error {
	if len(povs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&povs).Error
}

// FindOrCreatePointOfView returns the (debate, community) point of view, creating it with name.
func (r *DebateRepository) FindOrCreatePointOfView(ctx context.Context, debateID, communityID, userID uint64, name string) (*model.PointOfView, error) {
	db := r.DB.WithContext(ctx)
	var pov model.PointOfView
	err := db.Where("debate_id = ? AND community_id = ?", debateID, communityID).First(&pov).Error
	if err == nil {
		return &pov, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	pov = model.PointOfView{Name: name, DebateID: debateID, CommunityID: communityID, CreatedByID: userID}
	if err := db.Create(&pov).Error; err != nil {
		return nil, err
	}
	return &pov, nil
}

func (r *DebateRepository) PointsOfView(ctx context.Context, debateID uint64) ([]model.PointOfView, error) {
	var povs []model.PointOfView
	err := r.DB.WithContext(ctx).Where("debate_id = ?", debateID).Order("id ASC").Find(&povs).Error
	return povs, err
}

func (r *DebateRepository) CreateOpinion(ctx context.Context, o *model.Opinion) error {
	return r.DB.WithContext(ctx).Create(o).Error
}

func (r *DebateRepository) FindOpinion(ctx context.Context, id uint64) (*model.Opinion, error) {
	var o model.Opinion
	err := r.DB.WithContext(ctx).First(&o, id).Error
	return &o, err
}

func (r *DebateRepository) FindPointOfView(ctx context.Context, id uint64) (*model.PointOfView, error) {
	var pov model.PointOfView
	err := r.DB.WithContext(ctx).First(&pov, id).Error
	return &pov, err
}

func (r *DebateRepository) Opinions(ctx context.Context, povIDs []uint64) ([]model.Opinion, error) {
	var list []model.Opinion
	if len(povIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("point_of_view_id IN ?", povIDs).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *DebateRepository) OpinionVotes(ctx context.Context, opinionIDs []uint64) ([]model.OpinionVote, error) {
	var list []model.OpinionVote
	if len(opinionIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("opinion_id IN ?", opinionIDs).Find(&list).Error
	return list, err
}

// SetOpinionVote upserts the user's vote; value 0 removes it.
func (r *DebateRepository) SetOpinionVote(ctx context.Context, opinionID, userID uint64, value int) error {
	db := r.DB.WithContext(ctx)
	if value == 0 {
		return db.Where("opinion_id = ? AND user_id = ?", opinionID, userID).Delete(&model.OpinionVote{}).Error
	}
	var v model.OpinionVote
	err := db.Where("opinion_id = ? AND user_id = ?", opinionID, userID).First(&v).Error
	switch {
	case err == nil:
		return db.Model(&v).Update("value", value).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(&model.OpinionVote{OpinionID: opinionID, UserID: userID, Value: value}).Error
	default:
		return err
	}
}
