package mysql

import (
	"context"
	"strconv"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PollRepository struct {
	DB *gorm.DB
}

func (r *PollRepository) Create(ctx context.Context, p *model.Poll, options []model.PollOption) error {
	db := r.DB.WithContext(ctx)
	if err := db.Create(p).Error; err != nil {
		return err
	}
	for i := range options {
		options[i].PollID = p.ID
	}
	return db.Create(&options).Error
}

// FindByIDOrSlug treats an all-digit key as an id.
func (r *PollRepository) FindByIDOrSlug(ctx context.Context, key string) (*model.Poll, error) {
	var p model.Poll
	db := r.DB.WithContext(ctx)
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		db = db.Where("id = ?", id)
	} else {
		db = db.Where("slug = ?", key)
	}
	err := db.First(&p).Error
	return &p, err
}

func (r *PollRepository) FindByID(ctx context.Context, id uint64) (*model.Poll, error) {
	var p model.Poll
	err := r.DB.WithContext(ctx).First(&p, id).Error
	return &p, err
}

// LockByID reads the poll with a row lock; call inside a transaction.
func (r *PollRepository) LockByID(ctx context.Context, id uint64) (*model.Poll, error) {
	var p model.Poll
	err := r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	return &p, err
}

func (r *PollRepository) List(ctx context.Context, f ContentFilter, offset, limit int) ([]model.Poll, int64, error) {
	q := applyContentFilter(r.DB.WithContext(ctx).Model(&model.Poll{}), model.KindPoll, "scope", f)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Poll
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *PollRepository) Options(ctx context.Context, pollIDs []uint64) (map[uint64][]model.PollOption, error) {
	out := make(map[uint64][]model.PollOption, len(pollIDs))
	if len(pollIDs) == 0 {
		return out, nil
	}
	var opts []model.PollOption
	if err := r.DB.WithContext(ctx).Where("poll_id IN ?", pollIDs).Order("id ASC").Find(&opts).Error; err != nil {
		return nil, err
	}
	for _, o := range opts {
		out[o.PollID] = append(out[o.PollID], o)
	}
	return out, nil
}

func (r *PollRepository) UserVotes(ctx context.Context, pollID, userID uint64) ([]model.PollVote, error) {
	var votes []model.PollVote
	err := r.DB.WithContext(ctx).Where("poll_id = ? AND user_id = ?", pollID, userID).Order("option_id ASC").Find(&votes).Error
	return votes, err
}

// ReplaceVotes swaps the user's vote set and moves the option counters with it.
// Must run inside a transaction that holds the poll row lock.
func (r *PollRepository) ReplaceVotes(ctx context.Context, pollID, userID uint64, optionIDs []uint64) error {
	db := r.DB.WithContext(ctx)
	var old []uint64
	if err := db.Model(&model.PollVote{}).Where("poll_id = ? AND user_id = ?", pollID, userID).Pluck("option_id", &old).Error; err != nil {
		return err
	}
	if len(old) > 0 {
		if err := db.Model(&model.PollOption{}).Where("id IN ?", old).
			UpdateColumn("votes", floorZero("votes", -1)).Error; err != nil {
			return err
		}
		if err := db.Where("poll_id = ? AND user_id = ?", pollID, userID).Delete(&model.PollVote{}).Error; err != nil {
			return err
		}
	}
	if len(optionIDs) == 0 {
		return nil
	}
	votes := make([]model.PollVote, 0, len(optionIDs))
	for _, oid := range optionIDs {
		votes = append(votes, model.PollVote{PollID: pollID, UserID: userID, OptionID: oid})
	}
	if err := db.Create(&votes).Error; err != nil {
		return err
	}
	return db.Model(&model.PollOption{}).Where("id IN ?", optionIDs).
		UpdateColumn("votes", gorm.Expr("votes + ?", 1)).Error
}

func (r *PollRepository) Reaction(ctx context.Context, pollID, userID uint64) (*model.PollReaction, error) {
	var re model.PollReaction
	err := r.DB.WithContext(ctx).Where("poll_id = ? AND user_id = ?", pollID, userID).First(&re).Error
	return &re, err
}

func (r *PollRepository) SaveReaction(ctx context.Context, re *model.PollReaction) error {
	return r.DB.WithContext(ctx).Save(re).Error
}

func (r *PollRepository) DeleteReaction(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Delete(&model.PollReaction{}, id).Error
}

// ReactionCounts returns likes and dislikes of a poll.
func (r *PollRepository) ReactionCounts(ctx context.Context, pollID uint64) (likes, dislikes int64, err error) {
	var rows []struct {
		Reaction model.ReactionType
		N        int64
	}
	if err = r.DB.WithContext(ctx).Model(&model.PollReaction{}).
		Select("reaction, COUNT(*) AS n").
		Where("poll_id = ?", pollID).
		Group("reaction").
		Scan(&rows).Error; err != nil {
		return
	}
	for _, row := range rows {
		switch row.Reaction {
		case model.ReactionLike:
			likes = row.N
		case model.ReactionDislike:
			dislikes = row.N
		}
	}
	return
}

func (r *PollRepository) Updates(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Poll{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes the poll and every child row.
func (r *PollRepository) Delete(ctx context.Context, id uint64) error {
	db := r.DB.WithContext(ctx)
	for _, m := range []any{&model.PollVote{}, &model.PollReaction{}, &model.PollOption{}} {
		if err := db.Where("poll_id = ?", id).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := (&ContentRepository{DB: r.DB}).DeleteLinks(ctx, model.KindPoll, id); err != nil {
		return err
	}
	return db.Delete(&model.Poll{}, id).Error
}
