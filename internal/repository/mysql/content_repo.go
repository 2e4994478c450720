package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"geounity/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContentRepository holds the link tables and counters shared by polls,
// debates, issues and projects.
type ContentRepository struct {
	DB *gorm.DB
}

// ContentFilter is the list filter shared by every content aggregate.
// CommunityIDs is already resolved from the geographic query parameters; an
// aggregate must be linked to every one of them.
type ContentFilter struct {
	CommunityIDs []uint64
	Scope        string
	Status       string
	Tag          string
	Search       string
	CreatorID    uint64
}

// applyContentFilter narrows q (a query over the aggregate table) by f.
func applyContentFilter(q *gorm.DB, kind model.ContentKind, scopeCol string, f ContentFilter) *gorm.DB {
	for _, cid := range f.CommunityIDs {
		q = q.Where("id IN (SELECT content_id FROM content_communities WHERE content_kind = ? AND community_id = ?)", kind, cid)
	}
	if f.Scope != "" {
		q = q.Where(scopeCol+" = ?", f.Scope)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Tag != "" {
		q = q.Where("id IN (SELECT ct.content_id FROM content_tags ct JOIN tags t ON t.id = ct.tag_id WHERE ct.content_kind = ? AND t.name = ?)",
			kind, strings.ToLower(strings.TrimSpace(f.Tag)))
	}
	if f.Search != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(f.Search))+"%")
	}
	if f.CreatorID != 0 {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	return q
}

const maxSlugAttempts = 5

// uniqueSlug returns base, or base-N with the smallest N >= 2 that is neither
// stored nor in tried.
func uniqueSlug(tx *gorm.DB, table any, base string, tried map[string]struct{}) (string, error) {
	var taken []string
	if err := tx.Model(table).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &taken).Error; err != nil {
		return "", err
	}
	set := make(map[string]struct{}, len(taken)+len(tried))
	for _, s := range taken {
		set[s] = struct{}{}
	}
	for s := range tried {
		set[s] = struct{}{}
	}
	if _, ok := set[base]; !ok {
		return base, nil
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s-%d", base, n)
		if _, ok := set[cand]; !ok {
			return cand, nil
		}
	}
}

// CreateWithSlug runs create with a free slug derived from base. A concurrent
// insert that takes the slug first surfaces as a duplicate key; the insert is
// rolled back to a savepoint and retried with the next candidate. tx must be a
// transaction opened with TranslateError.
func CreateWithSlug(tx *gorm.DB, table any, base string, create func(slug string) error) (string, error) {
	tried := make(map[string]struct{})
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug, err := uniqueSlug(tx, table, base, tried)
		if err != nil {
			return "", err
		}
		sp := fmt.Sprintf("slug_%d", attempt)
		if err := tx.SavePoint(sp).Error; err != nil {
			return "", err
		}
		err = create(slug)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return slug, err
		}
		if err := tx.RollbackTo(sp).Error; err != nil {
			return "", err
		}
		tried[slug] = struct{}{}
	}
	return "", fmt.Errorf("slug %q still taken after %d attempts", base, maxSlugAttempts)
}

// IncrementViews bumps views_count in a single UPDATE.
func IncrementViews(ctx context.Context, db *gorm.DB, table any, id uint64) error {
	return db.WithContext(ctx).Model(table).Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error
}

func (r *ContentRepository) LinkCommunities(ctx context.Context, kind model.ContentKind, contentID uint64, communityIDs []uint64) error {
	if len(communityIDs) == 0 {
		return nil
	}
	links := make([]model.ContentCommunity, 0, len(communityIDs))
	for _, cid := range communityIDs {
		links = append(links, model.ContentCommunity{ContentKind: kind, ContentID: contentID, CommunityID: cid})
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

func (r *ContentRepository) CommunityIDs(ctx context.Context, kind model.ContentKind, contentID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.ContentCommunity{}).
		Where("content_kind = ? AND content_id = ?", kind, contentID).
		Order("community_id ASC").
		Pluck("community_id", &ids).Error
	return ids, err
}

// CommunitiesFor loads the linked communities of many aggregates at once.
func (r *ContentRepository) CommunitiesFor(ctx context.Context, kind model.ContentKind, contentIDs []uint64) (map[uint64][]model.Community, error) {
	out := make(map[uint64][]model.Community, len(contentIDs))
	if len(contentIDs) == 0 {
		return out, nil
	}
	var links []model.ContentCommunity
	if err := r.DB.WithContext(ctx).
		Where("content_kind = ? AND content_id IN ?", kind, contentIDs).
		Order("community_id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return out, nil
	}
	ids := make([]uint64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.CommunityID)
	}
	var communities []model.Community
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&communities).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.Community, len(communities))
	for _, c := range communities {
		byID[c.ID] = c
	}
	for _, l := range links {
		if c, ok := byID[l.CommunityID]; ok {
			out[l.ContentID] = append(out[l.ContentID], c)
		}
	}
	return out, nil
}

// CountryCodes maps national community ids to their country's cca2.
func (r *ContentRepository) CountryCodes(ctx context.Context, communityIDs []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string)
	if len(communityIDs) == 0 {
		return out, nil
	}
	var rows []model.Country
	if err := r.DB.WithContext(ctx).Select("community_id", "cca2").
		Where("community_id IN ?", communityIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.CommunityID] = c.Cca2
	}
	return out, nil
}

func (r *ContentRepository) LinkTags(ctx context.Context, kind model.ContentKind, contentID uint64, tagIDs []uint64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]model.ContentTag, 0, len(tagIDs))
	for _, tid := range tagIDs {
		links = append(links, model.ContentTag{ContentKind: kind, ContentID: contentID, TagID: tid})
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

// ReplaceTags drops the current tag links and writes tagIDs.
func (r *ContentRepository) ReplaceTags(ctx context.Context, kind model.ContentKind, contentID uint64, tagIDs []uint64) error {
	if err := r.DB.WithContext(ctx).
		Where("content_kind = ? AND content_id = ?", kind, contentID).
		Delete(&model.ContentTag{}).Error; err != nil {
		return err
	}
	return r.LinkTags(ctx, kind, contentID, tagIDs)
}

func (r *ContentRepository) TagsFor(ctx context.Context, kind model.ContentKind, contentIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(contentIDs))
	if len(contentIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ContentID uint64
		Name      string
	}
	if err := r.DB.WithContext(ctx).Table("content_tags AS ct").
		Select("ct.content_id, t.name").
		Joins("JOIN tags t ON t.id = ct.tag_id").
		Where("ct.content_kind = ? AND ct.content_id IN ?", kind, contentIDs).
		Order("t.name ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ContentID] = append(out[row.ContentID], row.Name)
	}
	return out, nil
}

// IsMemberOfLinked reports whether userID belongs to any community linked to the content.
func (r *ContentRepository) IsMemberOfLinked(ctx context.Context, kind model.ContentKind, contentID, userID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Table("content_communities AS cc").
		Joins("JOIN user_community_links l ON l.community_id = cc.community_id").
		Where("cc.content_kind = ? AND cc.content_id = ? AND l.user_id = ?", kind, contentID, userID).
		Count(&n).Error
	return n > 0, err
}

// DeleteLinks removes community, tag and comment rows of one aggregate.
func (r *ContentRepository) DeleteLinks(ctx context.Context, kind model.ContentKind, contentID uint64) error {
	db := r.DB.WithContext(ctx)
	for _, m := range []any{&model.ContentCommunity{}, &model.ContentTag{}, &model.Comment{}} {
		if err := db.Where("content_kind = ? AND content_id = ?", kind, contentID).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

// InsertOutbox writes a pending domain event in the caller's transaction.
func InsertOutbox(tx *gorm.DB, event string, aggType string, aggID, actorID uint64, extra map[string]any) error {
	body := map[string]any{
		"event_time":     time.Now().UTC().Format(time.RFC3339Nano),
		"event":          event,
		"aggregate_type": aggType,
		"aggregate_id":   aggID,
		"actor_id":       actorID,
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tx.Create(&model.EventOutbox{
		EventType:     event,
		AggregateType: aggType,
		AggregateID:   aggID,
		ActorID:       actorID,
		Payload:       string(payload),
		Status:        model.OutboxPending,
	}).Error
}
