package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"geounity/internal/model"

	"gorm.io/gorm"
)

// Database is the title search used when Meilisearch cannot answer.
type Database struct {
	DB *gorm.DB
}

var _ Fallback = (*Database)(nil)

type titleRow struct {
	ID        uint64
	Title     string
	Slug      string
	Scope     model.Scope
	Status    string
	CreatedAt time.Time
}

var kindTables = []struct {
	kind     model.ContentKind
	table    any
	scopeCol string
}{
	{model.KindPoll, &model.Poll{}, "scope"},
	{model.KindDebate, &model.Debate{}, "type AS scope"},
	{model.KindIssue, &model.Issue{}, "scope"},
	{model.KindProject, &model.Project{}, "scope"},
}

// SearchTitles matches a case-insensitive substring of the title, newest first.
func (d *Database) SearchTitles(ctx context.Context, q Query) ([]Result, int64, error) {
	type hit struct {
		Result
		at time.Time
	}
	var (
		hits  []hit
		total int64
	)
	// each table contributes at most offset+limit rows; the merged list is cut afterwards
	window := q.Offset + q.Limit
	for _, kt := range kindTables {
		if q.Kind != "" && q.Kind != kt.kind {
			continue
		}
		db := d.DB.WithContext(ctx).Model(kt.table)
		if kt.kind == model.KindDebate {
			db = db.Where("deleted_at IS NULL")
		}
		if q.Text != "" {
			db = db.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q.Text)+"%")
		}
		var n int64
		if err := db.Count(&n).Error; err != nil {
			return nil, 0, err
		}
		total += n
		if n == 0 {
			continue
		}
		var rows []titleRow
		if err := db.Select("id", "title", "slug", kt.scopeCol, "status", "created_at").
			Order("created_at DESC, id DESC").Limit(window).Scan(&rows).Error; err != nil {
			return nil, 0, err
		}
		for _, r := range rows {
			hits = append(hits, hit{
				Result: Result{Kind: kt.kind, ID: r.ID, Title: r.Title, Slug: r.Slug, Scope: r.Scope, Status: r.Status},
				at:     r.CreatedAt,
			})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at.After(hits[j].at) })
	if q.Offset >= len(hits) {
		return []Result{}, total, nil
	}
	hits = hits[q.Offset:]
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Result)
	}
	return out, total, nil
}

type docRow struct {
	ID          uint64
	Title       string
	Description string
	Slug        string
	Scope       model.Scope
	Status      string
	CreatedAt   time.Time
}

// Documents loads every live aggregate with its communities and tags, for a
// full reindex.
func (d *Database) Documents(ctx context.Context) ([]Document, error) {
	db := d.DB.WithContext(ctx)
	var docs []Document
	for _, kt := range kindTables {
		q := db.Model(kt.table)
		if kt.kind == model.KindDebate {
			q = q.Where("deleted_at IS NULL")
		}
		var rows []docRow
		if err := q.Select("id", "title", "description", "slug", kt.scopeCol, "status", "created_at").
			Order("id").Scan(&rows).Error; err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}

		var links []model.ContentCommunity
		if err := db.Where("content_kind = ?", kt.kind).Order("community_id").Find(&links).Error; err != nil {
			return nil, err
		}
		communities := make(map[uint64][]uint64)
		for _, l := range links {
			communities[l.ContentID] = append(communities[l.ContentID], l.CommunityID)
		}

		var tagRows []struct {
			ContentID uint64
			Name      string
		}
		if err := db.Table("content_tags").
			Select("content_tags.content_id, tags.name").
			Joins("JOIN tags ON tags.id = content_tags.tag_id").
			Where("content_tags.content_kind = ?", kt.kind).
			Order("tags.name").Scan(&tagRows).Error; err != nil {
			return nil, err
		}
		tags := make(map[uint64][]string)
		for _, t := range tagRows {
			tags[t.ContentID] = append(tags[t.ContentID], t.Name)
		}

		for _, r := range rows {
			docs = append(docs, Document{
				ID:           DocID(kt.kind, r.ID),
				Kind:         kt.kind,
				ContentID:    r.ID,
				Title:        r.Title,
				Description:  r.Description,
				Slug:         r.Slug,
				Scope:        r.Scope,
				Status:       r.Status,
				CommunityIDs: communities[r.ID],
				Tags:         tags[r.ID],
				CreatedAt:    r.CreatedAt.Unix(),
			})
		}
	}
	return docs, nil
}
