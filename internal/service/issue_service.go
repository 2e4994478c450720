package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/search"

	"gorm.io/gorm"
)

type IssueService struct {
	contentBase
}

func NewIssueService(db *gorm.DB, enf *authz.Enforcer, index search.Indexer) *IssueService {
	return &IssueService{contentBase: newContentBase(db, enf, index)}
}

type IssueCreate struct {
	Title               string
	Description         string
	Scope               ScopeInput
	LocationDescription string
	Latitude            *float64
	Longitude           *float64
	CategoryID          *uint64
	OrganizationID      *uint64
	IsAnonymous         bool
	Images              []string
	CommunityIDs        []uint64
	Tags                []string
}

type IssueUpdate struct {
	Title               *string
	Description         *string
	Status              *model.IssueStatus
	LocationDescription *string
	Latitude            *float64
	Longitude           *float64
	CategoryID          *uint64
	OrganizationID      *uint64
	IsAnonymous         *bool
	Images              *[]string
	Tags                *[]string
}

// IssueProgress is a progress post; NewStatus moves the issue along.
type IssueProgress struct {
	Content        string
	NewStatus      *model.IssueStatus
	OrganizationID *uint64
}

type IssueView struct {
	model.Issue
	Creator       *model.UserMinimal       `json:"creator"`
	Communities   []model.CommunityMinimal `json:"communities"`
	Tags          []string                 `json:"tags"`
	Category      *model.IssueCategory     `json:"category"`
	Updates       []model.IssueUpdate      `json:"updates,omitempty"`
	UserSupported bool                     `json:"user_supported"`
	CommentsCount int64                    `json:"comments_count"`
}

type SupportResult struct {
	Supported    bool  `json:"supported"`
	SupportCount int64 `json:"support_count"`
}

func checkIssueText(title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > 200 {
		return "", pkg.Validation("title must be 1-200 characters")
	}
	if len([]rune(description)) > 5000 {
		return "", pkg.Validation("description must be at most 5000 characters")
	}
	return title, nil
}

func checkCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return pkg.Validation("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return pkg.Validation("longitude must be between -180 and 180")
	}
	return nil
}

// checkIssueRefs makes sure the optional category and organization exist.
func checkIssueRefs(ctx context.Context, db *gorm.DB, categoryID, organizationID *uint64) error {
	if categoryID != nil {
		if _, err := (&mysql.IssueRepository{DB: db}).FindCategory(ctx, *categoryID); err != nil {
			return notFound(err, "category")
		}
	}
	if organizationID != nil {
		if _, err := (&mysql.OrganizationRepository{DB: db}).FindByID(ctx, *organizationID); err != nil {
			return notFound(err, "organization")
		}
	}
	return nil
}

func (s *IssueService) Create(ctx context.Context, actor *model.User, in IssueCreate) (*IssueView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	title, err := checkIssueText(in.Title, in.Description)
	if err != nil {
		return nil, err
	}
	if err := checkCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	sel, err := NewScopeSelector(in.Scope)
	if err != nil {
		return nil, err
	}
	tags, err := cleanTags(in.Tags)
	if err != nil {
		return nil, err
	}
	images, err := encodeImages(in.Images)
	if err != nil {
		return nil, err
	}
	is := &model.Issue{
		Title:               title,
		Description:         in.Description,
		Status:              model.IssueOpen,
		Scope:               sel.Scope(),
		LocationDescription: strings.TrimSpace(in.LocationDescription),
		Latitude:            in.Latitude,
		Longitude:           in.Longitude,
		Images:              images,
		IsAnonymous:         in.IsAnonymous,
		CategoryID:          in.CategoryID,
		OrganizationID:      in.OrganizationID,
		CreatorID:           actor.ID,
	}
	var communityIDs []uint64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkIssueRefs(ctx, tx, in.CategoryID, in.OrganizationID); err != nil {
			return err
		}
		resolved, err := resolveScope(ctx, tx, sel, in.CommunityIDs)
		if err != nil {
			return err
		}
		communityIDs = resolved.CommunityIDs
		if err := createWithSlug(tx, &model.Issue{}, is.Title, func(slug string) error {
			is.Slug = slug
			return (&mysql.IssueRepository{DB: tx}).Create(ctx, is)
		}); err != nil {
			return err
		}
		if err := linkContent(ctx, tx, model.KindIssue, is.ID, communityIDs, tags); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "issue.created", string(model.KindIssue), is.ID, actor.ID, map[string]any{"scope": is.Scope})
	})
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindIssue, is.ID, is.Title, is.Description, is.Slug, is.Scope, string(is.Status), communityIDs, tags, is.CreatedAt.Unix()))
	logging.Ctx(ctx).Info().Uint64("issue_id", is.ID).Uint64("creator_id", actor.ID).Msg("issue created")
	return s.detail(ctx, is, actor)
}

func (s *IssueService) find(ctx context.Context, key string) (*model.Issue, error) {
	is, err := (&mysql.IssueRepository{DB: s.db}).FindByIDOrSlug(ctx, key)
	if err != nil {
		return nil, notFound(err, "issue")
	}
	return is, nil
}

func (s *IssueService) Get(ctx context.Context, key string, viewer *model.User) (*IssueView, error) {
	is, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mysql.IncrementViews(ctx, s.db, &model.Issue{}, is.ID); err != nil {
		return nil, err
	}
	is.ViewsCount++
	return s.detail(ctx, is, viewer)
}

type IssueQuery struct {
	ContentQuery
	CategoryID     uint64
	OrganizationID uint64
}

func (s *IssueService) List(ctx context.Context, q IssueQuery, viewer *model.User) (pkg.Paginated[IssueView], error) {
	f, ok, err := q.filter(ctx, s.db)
	if err != nil || !ok {
		return pkg.NewPaginated[IssueView](nil, 0, q.Page), err
	}
	list, total, err := (&mysql.IssueRepository{DB: s.db}).List(ctx, mysql.IssueFilter{
		ContentFilter:  f,
		CategoryID:     q.CategoryID,
		OrganizationID: q.OrganizationID,
	}, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[IssueView]{}, err
	}
	views, err := s.views(ctx, list, viewer)
	if err != nil {
		return pkg.Paginated[IssueView]{}, err
	}
	return pkg.NewPaginated(views, total, q.Page), nil
}

// Update edits the issue; a status change is also recorded as a progress post.
func (s *IssueService) Update(ctx context.Context, key string, actor *model.User, in IssueUpdate) (*IssueView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	is, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !canManage(s.enf, actor, is.CreatorID) {
		return nil, pkg.Forbidden("only the creator can edit this issue")
	}
	fields := map[string]any{}
	if in.Title != nil || in.Description != nil {
		title, desc := is.Title, is.Description
		if in.Title != nil {
			title = *in.Title
		}
		if in.Description != nil {
			desc = *in.Description
		}
		if title, err = checkIssueText(title, desc); err != nil {
			return nil, err
		}
		fields["title"] = title
		fields["description"] = desc
	}
	var progress *model.IssueUpdate
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, pkg.Validation("invalid issue status %q", *in.Status)
		}
		if *in.Status != is.Status {
			fields["status"] = *in.Status
			st := *in.Status
			progress = &model.IssueUpdate{
				IssueID:   is.ID,
				UserID:    actor.ID,
				Content:   fmt.Sprintf("Status changed from %s to %s", is.Status, st),
				NewStatus: &st,
			}
		}
	}
	if in.LocationDescription != nil {
		fields["location_description"] = strings.TrimSpace(*in.LocationDescription)
	}
	if err := checkCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if in.Latitude != nil {
		fields["latitude"] = *in.Latitude
	}
	if in.Longitude != nil {
		fields["longitude"] = *in.Longitude
	}
	if in.CategoryID != nil {
		fields["category_id"] = *in.CategoryID
	}
	if in.OrganizationID != nil {
		fields["organization_id"] = *in.OrganizationID
	}
	if in.IsAnonymous != nil {
		fields["is_anonymous"] = *in.IsAnonymous
	}
	if in.Images != nil {
		images, err := encodeImages(*in.Images)
		if err != nil {
			return nil, err
		}
		fields["images"] = images
	}
	var tags []string
	if in.Tags != nil {
		if tags, err = cleanTags(*in.Tags); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkIssueRefs(ctx, tx, in.CategoryID, in.OrganizationID); err != nil {
			return err
		}
		repo := &mysql.IssueRepository{DB: tx}
		if err := repo.Updates(ctx, is.ID, fields); err != nil {
			return err
		}
		if progress != nil {
			if err := repo.AddUpdate(ctx, progress); err != nil {
				return err
			}
		}
		if in.Tags != nil {
			return replaceTags(ctx, tx, model.KindIssue, is.ID, tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, is.ID, actor)
}

func (s *IssueService) reload(ctx context.Context, id uint64, viewer *model.User) (*IssueView, error) {
	is, err := (&mysql.IssueRepository{DB: s.db}).FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "issue")
	}
	v, err := s.detail(ctx, is, viewer)
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindIssue, v.ID, v.Title, v.Description, v.Slug, v.Scope, string(v.Status), communityIDsOf(v.Communities), v.Tags, v.CreatedAt.Unix()))
	return v, nil
}

func (s *IssueService) Delete(ctx context.Context, key string, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	is, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if !canManage(s.enf, actor, is.CreatorID) {
		return pkg.Forbidden("only the creator can delete this issue")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.IssueRepository{DB: tx}).Delete(ctx, is.ID); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "issue.deleted", string(model.KindIssue), is.ID, actor.ID, nil)
	})
	if err != nil {
		return err
	}
	s.index.Remove(model.KindIssue, is.ID)
	return nil
}

// ToggleSupport flips the actor's support. Members of a linked community only.
func (s *IssueService) ToggleSupport(ctx context.Context, key string, actor *model.User) (*SupportResult, error) {
	is, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := requireLinkedMember(ctx, s.db, model.KindIssue, is.ID, actor); err != nil {
		return nil, err
	}
	var res SupportResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.IssueRepository{DB: tx}
		supported, err := repo.ToggleSupport(ctx, is.ID, actor.ID)
		if err != nil {
			return err
		}
		res.Supported = supported
		cur, err := repo.FindByID(ctx, is.ID)
		if err != nil {
			return err
		}
		res.SupportCount = cur.SupportCount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AddUpdate posts progress on an issue. Creator or admin only.
func (s *IssueService) AddUpdate(ctx context.Context, key string, actor *model.User, in IssueProgress) (*model.IssueUpdate, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" || len([]rune(content)) > 2000 {
		return nil, pkg.Validation("content must be 1-2000 characters")
	}
	if in.NewStatus != nil && !in.NewStatus.Valid() {
		return nil, pkg.Validation("invalid issue status %q", *in.NewStatus)
	}
	is, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !canManage(s.enf, actor, is.CreatorID) {
		return nil, pkg.Forbidden("only the creator can post updates on this issue")
	}
	u := &model.IssueUpdate{
		IssueID:        is.ID,
		UserID:         actor.ID,
		Content:        content,
		NewStatus:      in.NewStatus,
		OrganizationID: in.OrganizationID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkIssueRefs(ctx, tx, nil, in.OrganizationID); err != nil {
			return err
		}
		repo := &mysql.IssueRepository{DB: tx}
		if err := repo.AddUpdate(ctx, u); err != nil {
			return err
		}
		if in.NewStatus != nil && *in.NewStatus != is.Status {
			if err := repo.Updates(ctx, is.ID, map[string]any{"status": *in.NewStatus}); err != nil {
				return err
			}
		}
		return mysql.InsertOutbox(tx, "issue.updated", string(model.KindIssue), is.ID, actor.ID, map[string]any{"update_id": u.ID})
	})
	if err != nil {
		return nil, err
	}
	if in.NewStatus != nil {
		if _, err := s.reload(ctx, is.ID, actor); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint64("issue_id", is.ID).Msg("reindex after status change failed")
		}
	}
	return u, nil
}

func (s *IssueService) Categories(ctx context.Context) ([]model.IssueCategory, error) {
	return (&mysql.IssueRepository{DB: s.db}).Categories(ctx)
}

func (s *IssueService) CreateCategory(ctx context.Context, actor *model.User, name, description string) (*model.IssueCategory, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.enf.Allowed(actor, authz.ObjCategories, authz.ActWrite) {
		return nil, pkg.Forbidden("admin role required")
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 100 {
		return nil, pkg.Validation("name must be 1-100 characters")
	}
	if len([]rune(description)) > 500 {
		return nil, pkg.Validation("description must be at most 500 characters")
	}
	repo := &mysql.IssueRepository{DB: s.db}
	list, err := repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if strings.EqualFold(c.Name, name) {
			return nil, pkg.Conflict("category %q already exists", c.Name)
		}
	}
	c := &model.IssueCategory{Name: name, Description: description}
	if err := repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *IssueService) views(ctx context.Context, issues []model.Issue, viewer *model.User) ([]IssueView, error) {
	if len(issues) == 0 {
		return []IssueView{}, nil
	}
	repo := &mysql.IssueRepository{DB: s.db}
	ids := make([]uint64, 0, len(issues))
	creators := make([]uint64, 0, len(issues))
	for _, is := range issues {
		ids = append(ids, is.ID)
		creators = append(creators, is.CreatorID)
	}
	e, err := loadEnrichment(ctx, s.db, model.KindIssue, ids, creators)
	if err != nil {
		return nil, err
	}
	categories, err := repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.IssueCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	out := make([]IssueView, 0, len(issues))
	for _, is := range issues {
		v := IssueView{
			Issue:         is,
			Creator:       e.creator(is.CreatorID, is.IsAnonymous, viewer),
			Communities:   e.communityList(is.ID, is.Scope),
			Tags:          e.tagList(is.ID),
			CommentsCount: e.comments[is.ID],
		}
		if v.Creator == nil {
			v.CreatorID = 0
		}
		if is.CategoryID != nil {
			if c, ok := byID[*is.CategoryID]; ok {
				v.Category = &c
			}
		}
		if viewer != nil {
			if v.UserSupported, err = repo.HasSupported(ctx, is.ID, viewer.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *IssueService) detail(ctx context.Context, is *model.Issue, viewer *model.User) (*IssueView, error) {
	views, err := s.views(ctx, []model.Issue{*is}, viewer)
	if err != nil {
		return nil, err
	}
	v := &views[0]
	updates, err := (&mysql.IssueRepository{DB: s.db}).ListUpdates(ctx, is.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if updates == nil {
		updates = []model.IssueUpdate{}
	}
	v.Updates = updates
	return v, nil
}
