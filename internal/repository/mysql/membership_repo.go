package mysql

import (
	"context"
	"time"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MembershipRepository struct {
	DB *gorm.DB
}

// MemberRow is a member list entry.
type MemberRow struct {
	UserID   uint64
	Username string
	Image    string
	IsPublic bool
	JoinedAt time.Time
}

// Join inserts the membership if absent. created is false when it already existed.
func (r *MembershipRepository) Join(ctx context.Context, link *model.UserCommunityLink) (bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "community_id"}},
		DoNothing: true,
	}).Create(link)
	return res.RowsAffected > 0, res.Error
}

// Leave deletes the membership; removed is false when there was none.
func (r *MembershipRepository) Leave(ctx context.Context, communityID, userID uint64) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&model.UserCommunityLink{})
	return res.RowsAffected > 0, res.Error
}

func (r *MembershipRepository) Get(ctx context.Context, communityID, userID uint64) (*model.UserCommunityLink, error) {
	var link model.UserCommunityLink
	err := r.DB.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		First(&link).Error
	return &link, err
}

func (r *MembershipRepository) SetVisibility(ctx context.Context, communityID, userID uint64, isPublic bool) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.UserCommunityLink{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Update("is_public", isPublic)
	return res.RowsAffected > 0, res.Error
}

// Counts returns the member total and how many of them are public.
func (r *MembershipRepository) Counts(ctx context.Context, communityID uint64) (total, public int64, err error) {
	db := r.DB.WithContext(ctx).Model(&model.UserCommunityLink{})
	if err = db.Where("community_id = ?", communityID).Count(&total).Error; err != nil {
		return
	}
	err = r.DB.WithContext(ctx).Model(&model.UserCommunityLink{}).
		Where("community_id = ? AND is_public = ?", communityID, true).
		Count(&public).Error
	return
}

// VisibleMembers lists public members plus viewerID's own row, whatever its flag.
func (r *MembershipRepository) VisibleMembers(ctx context.Context, communityID, viewerID uint64, offset, limit int) ([]MemberRow, int64, error) {
	q := r.DB.WithContext(ctx).Table("user_community_links AS l").
		Joins("JOIN users u ON u.id = l.user_id").
		Where("l.community_id = ?", communityID)
	if viewerID != 0 {
		q = q.Where("(l.is_public = ? OR l.user_id = ?)", true, viewerID)
	} else {
		q = q.Where("l.is_public = ?", true)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []MemberRow
	err := q.Select("l.user_id, u.username, u.image, l.is_public, l.created_at AS joined_at").
		Order("l.created_at ASC, l.user_id ASC").
		Offset(offset).Limit(limit).
		Scan(&rows).Error
	return rows, total, err
}

func (r *MembershipRepository) ListByUser(ctx context.Context, userID uint64) ([]model.UserCommunityLink, error) {
	var links []model.UserCommunityLink
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("community_id ASC").Find(&links).Error
	return links, err
}

func (r *MembershipRepository) IsMember(ctx context.Context, communityID, userID uint64) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserCommunityLink{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *MembershipRepository) IsMemberOfAny(ctx context.Context, communityIDs []uint64, userID uint64) (bool, error) {
	if len(communityIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserCommunityLink{}).
		Where("community_id IN ? AND user_id = ?", communityIDs, userID).
		Count(&count).Error
	return count > 0, err
}
