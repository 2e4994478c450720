package mysql

import (
	"context"
	"errors"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FollowRepository struct {
	DB *gorm.DB
}

type OutboxRepository struct {
	DB *gorm.DB
}

type FollowCountReconcilerRepo struct {
	DB *gorm.DB
}

// Pair is a user's stored follow counters.
type Pair struct {
	ID             uint64
	FollowingCount int64
	FollowerCount  int64
}

// FollowRow is a follow list entry joined with the other user.
type FollowRow struct {
	FollowID uint64 `json:"-"`
	UserID   uint64 `json:"id"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

// Follow sets the relation to followed. changed is true only on a real transition.
func (r *FollowRepository) Follow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rel model.Follow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("follower_id=? AND followee_id=?", followerID, followeeID).First(&rel).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rel = model.Follow{
				FollowerID: followerID,
				FolloweeID: followeeID,
				Status:     1,
			}
			if err = tx.Create(&rel).Error; err != nil {
				return err
			}
		} else {
			if rel.Status == 1 {
				return nil
			}
			if err := tx.Model(&model.Follow{}).
				Where("id=? AND status=0", rel.ID).
				Update("status", 1).Error; err != nil {
				return err
			}
		}
		changed = true
		if err := adjustFollowCounts(tx, followerID, followeeID, +1); err != nil {
			return err
		}
		return InsertOutbox(tx, "user.follow", "user", followeeID, followerID, nil)
	})
	return changed, err
}

func (r *FollowRepository) Unfollow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	var changed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rel model.Follow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("follower_id=? AND followee_id=?", followerID, followeeID).First(&rel).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if rel.Status == 0 {
			return nil
		}
		if err := tx.Model(&model.Follow{}).
			Where("id=? AND status=1", rel.ID).
			Update("status", 0).Error; err != nil {
			return err
		}
		changed = true
		if err := adjustFollowCounts(tx, followerID, followeeID, -1); err != nil {
			return err
		}
		return InsertOutbox(tx, "user.unfollow", "user", followeeID, followerID, nil)
	})
	return changed, err
}

func (r *FollowRepository) IsFollowing(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id=? AND followee_id=? AND status=1", followerID, followeeID).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFollowings pages the users userID follows, newest first. next is 0 on the last page.
func (r *FollowRepository) ListFollowings(ctx context.Context, userID uint64, cursor uint64, limit int) ([]FollowRow, uint64, error) {
	return r.list(ctx, "f.follower_id", "f.followee_id", userID, cursor, limit)
}

func (r *FollowRepository) ListFollowers(ctx context.Context, userID uint64, cursor uint64, limit int) ([]FollowRow, uint64, error) {
	return r.list(ctx, "f.followee_id", "f.follower_id", userID, cursor, limit)
}

func (r *FollowRepository) list(ctx context.Context, ownCol, otherCol string, userID, cursor uint64, limit int) ([]FollowRow, uint64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.DB.WithContext(ctx).Table("follow AS f").
		Select("f.id AS follow_id, u.id AS user_id, u.username, u.image").
		Joins("JOIN users u ON u.id = "+otherCol).
		Where(ownCol+" = ? AND f.status = 1", userID)
	if cursor > 0 {
		q = q.Where("f.id < ?", cursor)
	}
	var rows []FollowRow
	// one extra row tells whether another page exists
	if err := q.Order("f.id DESC").Limit(limit + 1).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	var next uint64
	if len(rows) > limit {
		next = rows[limit-1].FollowID
		rows = rows[:limit]
	}
	return rows, next, nil
}

func adjustFollowCounts(tx *gorm.DB, followerID, followeeID uint64, delta int64) error {
	if err := tx.Model(&model.User{}).
		Where("id=?", followerID).
		UpdateColumn("following_count", floorZero("following_count", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&model.User{}).
		Where("id=?", followeeID).
		UpdateColumn("follower_count", floorZero("follower_count", delta)).Error
}

// floorZero is col + delta clamped at zero, evaluated by the database.
func floorZero(col string, delta any) clause.Expr {
	return gorm.Expr("CASE WHEN "+col+" + ? < 0 THEN 0 ELSE "+col+" + ? END", delta, delta)
}

// List returns pending and failed events below the retry ceiling, oldest first.
func (r *OutboxRepository) List(ctx context.Context, batchSize, maxRetry int) ([]model.EventOutbox, error) {
	var list []model.EventOutbox
	if err := r.DB.WithContext(ctx).
		Where("status IN ? AND retry < ?", []int8{model.OutboxPending, model.OutboxFailed}, maxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *OutboxRepository) RetryUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.EventOutbox{}).Where("id=?", id).
		Updates(map[string]any{"status": model.OutboxFailed, "retry": gorm.Expr("retry + 1")}).Error
}

func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.EventOutbox{}).Where("id=?", id).
		Update("status", model.OutboxSent).Error
}

// ReconcileList pages users by id after lastID.
func (r *FollowCountReconcilerRepo) ReconcileList(ctx context.Context, batchSize int, lastID uint64) ([]Pair, uint64, error) {
	var list []Pair
	if err := r.DB.WithContext(ctx).Model(&model.User{}).
		Select("id", "following_count", "follower_count").
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

func (r *FollowCountReconcilerRepo) RealFollowers(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Follow{}).
		Where("followee_id=? AND status=1", userID).
		Count(&n).Error
	return n, err
}

func (r *FollowCountReconcilerRepo) RealFollowings(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Follow{}).
		Where("follower_id=? AND status=1", userID).
		Count(&n).Error
	return n, err
}

func (r *FollowCountReconcilerRepo) SetCounts(ctx context.Context, userID uint64, followings, followers int64) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id=?", userID).
		UpdateColumns(map[string]any{"following_count": followings, "follower_count": followers}).Error
}
