package service

import (
	"context"
	"errors"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/search"

	"gorm.io/gorm"
)

const maxTagLen = 50

// contentBase carries what every content service needs.
type contentBase struct {
	db    *gorm.DB
	enf   *authz.Enforcer
	index search.Indexer
}

func newContentBase(db *gorm.DB, enf *authz.Enforcer, index search.Indexer) contentBase {
	if index == nil {
		index = search.Noop{}
	}
	return contentBase{db: db, enf: enf, index: index}
}

// ContentQuery is the list query shared by the four aggregates.
type ContentQuery struct {
	Geo       GeoFilter
	Scope     model.Scope
	Status    string
	Tag       string
	Search    string
	CreatorID uint64
	Page      pkg.Page
}

// filter resolves the geographic part. ok is false when nothing can match.
func (q ContentQuery) filter(ctx context.Context, db *gorm.DB) (mysql.ContentFilter, bool, error) {
	if q.Scope != "" && !q.Scope.Valid() {
		return mysql.ContentFilter{}, false, pkg.Validation("invalid scope %q", q.Scope)
	}
	ids, err := resolveGeoFilter(ctx, db, q.Geo)
	if errors.Is(err, errNoMatch) {
		return mysql.ContentFilter{}, false, nil
	}
	if err != nil {
		return mysql.ContentFilter{}, false, err
	}
	return mysql.ContentFilter{
		CommunityIDs: ids,
		Scope:        string(q.Scope),
		Status:       q.Status,
		Tag:          q.Tag,
		Search:       q.Search,
		CreatorID:    q.CreatorID,
	}, true, nil
}

func cleanTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if len([]rune(t)) > maxTagLen {
			return nil, pkg.Validation("tag %q is longer than %d characters", t, maxTagLen)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// linkContent attaches communities and tags to a freshly created aggregate.
func linkContent(ctx context.Context, tx *gorm.DB, kind model.ContentKind, id uint64, communityIDs []uint64, tags []string) error {
	content := &mysql.ContentRepository{DB: tx}
	if err := content.LinkCommunities(ctx, kind, id, communityIDs); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	tagIDs, err := (&mysql.TagRepository{DB: tx}).GetOrCreate(ctx, tags)
	if err != nil {
		return err
	}
	return content.LinkTags(ctx, kind, id, tagIDs)
}

func replaceTags(ctx context.Context, tx *gorm.DB, kind model.ContentKind, id uint64, tags []string) error {
	var tagIDs []uint64
	if len(tags) > 0 {
		var err error
		if tagIDs, err = (&mysql.TagRepository{DB: tx}).GetOrCreate(ctx, tags); err != nil {
			return err
		}
	}
	return (&mysql.ContentRepository{DB: tx}).ReplaceTags(ctx, kind, id, tagIDs)
}

// createWithSlug inserts a new aggregate under a free slug for title.
func createWithSlug(tx *gorm.DB, table any, title string, create func(slug string) error) error {
	_, err := mysql.CreateWithSlug(tx, table, pkg.Slugify(title), create)
	return err
}

// requireLinkedMember enforces community membership for writes on content.
func requireLinkedMember(ctx context.Context, db *gorm.DB, kind model.ContentKind, id uint64, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	ok, err := (&mysql.ContentRepository{DB: db}).IsMemberOfLinked(ctx, kind, id, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.Forbidden("you must be a member of a community linked to this %s", kind)
	}
	return nil
}

// enrichment holds the lookups shared by every content read projection.
type enrichment struct {
	creators    map[uint64]model.User
	communities map[uint64][]model.Community
	codes       map[uint64]string
	tags        map[uint64][]string
	comments    map[uint64]int64
}

func loadEnrichment(ctx context.Context, db *gorm.DB, kind model.ContentKind, ids, creatorIDs []uint64) (*enrichment, error) {
	content := &mysql.ContentRepository{DB: db}
	e := &enrichment{}
	var err error
	if e.creators, err = (&mysql.UserRepository{DB: db}).FindByIDs(ctx, dedupe(creatorIDs)); err != nil {
		return nil, err
	}
	if e.communities, err = content.CommunitiesFor(ctx, kind, ids); err != nil {
		return nil, err
	}
	var communityIDs []uint64
	for _, list := range e.communities {
		for _, c := range list {
			if c.Level == model.LevelNational {
				communityIDs = append(communityIDs, c.ID)
			}
		}
	}
	if e.codes, err = content.CountryCodes(ctx, dedupe(communityIDs)); err != nil {
		return nil, err
	}
	if e.tags, err = content.TagsFor(ctx, kind, ids); err != nil {
		return nil, err
	}
	if e.comments, err = (&mysql.CommentRepository{DB: db}).Counts(ctx, kind, ids); err != nil {
		return nil, err
	}
	return e, nil
}

// creator hides anonymous authors from everyone but themselves and admins.
func (e *enrichment) creator(creatorID uint64, anonymous bool, viewer *model.User) *model.UserMinimal {
	if anonymous && !(viewer != nil && (viewer.ID == creatorID || viewer.IsAdmin())) {
		return nil
	}
	u, ok := e.creators[creatorID]
	if !ok {
		return nil
	}
	return u.Minimal()
}

func (e *enrichment) communityList(id uint64, scope model.Scope) []model.CommunityMinimal {
	list := e.communities[id]
	out := make([]model.CommunityMinimal, 0, len(list))
	for _, c := range list {
		m := model.CommunityMinimal{ID: c.ID, Name: c.Name, Level: c.Level}
		if scope.CountryScoped() {
			m.Cca2 = e.codes[c.ID]
		}
		out = append(out, m)
	}
	return out
}

func (e *enrichment) tagList(id uint64) []string {
	if t := e.tags[id]; t != nil {
		return t
	}
	return []string{}
}

func searchDoc(kind model.ContentKind, id uint64, title, description, slug string, scope model.Scope, status string, communityIDs []uint64, tags []string, createdAt int64) search.Document {
	return search.Document{
		ID:           search.DocID(kind, id),
		Kind:         kind,
		ContentID:    id,
		Title:        title,
		Description:  description,
		Slug:         slug,
		Scope:        scope,
		Status:       status,
		CommunityIDs: communityIDs,
		Tags:         tags,
		CreatedAt:    createdAt,
	}
}
