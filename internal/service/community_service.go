package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

// maxTreeDepth bounds ancestor walks; the geographic tree is six levels deep.
const maxTreeDepth = 32

var communityNameRe = regexp.MustCompile(`^[a-zA-Z0-9_ ]+$`)

// ValidCommunityName allows 1-100 letters, digits, spaces and underscores.
func ValidCommunityName(name string) bool {
	return name != "" && len(name) <= 100 && communityNameRe.MatchString(name)
}

type CommunityService struct {
	db       *gorm.DB
	repo     *mysql.CommunityRepository
	members  *mysql.MembershipRepository
	requests *mysql.CommunityRequestRepository
	geo      *mysql.GeographyRepository
	enf      *authz.Enforcer
}

func NewCommunityService(db *gorm.DB, enf *authz.Enforcer) *CommunityService {
	return &CommunityService{
		db:       db,
		repo:     &mysql.CommunityRepository{DB: db},
		members:  &mysql.MembershipRepository{DB: db},
		requests: &mysql.CommunityRequestRepository{DB: db},
		geo:      &mysql.GeographyRepository{DB: db},
		enf:      enf,
	}
}

// CommunitySearch holds the name filters of SearchCommunity.
type CommunitySearch struct {
	Level     model.CommunityLevel
	Country   string
	Region    string
	Subregion string
	Local     string
}

// SearchCommunity resolves geographic names to exactly one community.
func (s *CommunityService) SearchCommunity(ctx context.Context, q CommunitySearch) (*model.Community, error) {
	required := map[model.CommunityLevel][]string{
		model.LevelNational:    {"country"},
		model.LevelRegional:    {"country", "region"},
		model.LevelSubregional: {"country", "region", "subregion"},
		model.LevelLocal:       {"country", "local"},
	}
	if q.Level == model.LevelGlobal {
		root, err := s.repo.FindRoot(ctx)
		if err != nil {
			return nil, notFound(err, "community")
		}
		return root, nil
	}
	fields, ok := required[q.Level]
	if !ok {
		return nil, pkg.Validation("unsupported level %q", q.Level)
	}
	values := map[string]string{"country": q.Country, "region": q.Region, "subregion": q.Subregion, "local": q.Local}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(values[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, pkg.Validation("%s required for %s level", strings.Join(missing, ", "), q.Level)
	}

	country, err := NewGeographyService(s.db).GetCountry(ctx, q.Country)
	if err != nil {
		return nil, err
	}
	communityID := country.CommunityID

	switch q.Level {
	case model.LevelRegional, model.LevelSubregional:
		regions, err := s.geo.RegionsByCountry(ctx, country.ID)
		if err != nil {
			return nil, err
		}
		region, ok := matchName(regions, func(r model.Region) string { return r.Name }, q.Region)
		if !ok {
			return nil, pkg.NotFound("region not found")
		}
		communityID = region.CommunityID
		if q.Level == model.LevelSubregional {
			subs, err := s.geo.SubregionsByRegion(ctx, region.ID, "")
			if err != nil {
				return nil, err
			}
			sub, ok := matchName(subs, func(r model.Subregion) string { return r.Name }, q.Subregion)
			if !ok {
				return nil, pkg.NotFound("subregion not found")
			}
			communityID = sub.CommunityID
		}
	case model.LevelLocal:
		locs, err := s.geo.LocalitiesByCountry(ctx, country.ID)
		if err != nil {
			return nil, err
		}
		loc, ok := matchName(locs, func(l model.Locality) string { return l.Name }, q.Local)
		if !ok {
			return nil, pkg.NotFound("locality not found")
		}
		communityID = loc.CommunityID
	}
	return s.Get(ctx, communityID)
}

func (s *CommunityService) Get(ctx context.Context, id uint64) (*model.Community, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "community")
	}
	return c, nil
}

type CommunityListQuery struct {
	Level    model.CommunityLevel
	ParentID *uint64
	Search   string
	Page     pkg.Page
}

func (s *CommunityService) List(ctx context.Context, q CommunityListQuery) (pkg.Paginated[model.Community], error) {
	if q.Level != "" && !q.Level.Valid() {
		return pkg.Paginated[model.Community]{}, pkg.Validation("invalid level %q", q.Level)
	}
	list, total, err := s.repo.List(ctx, mysql.CommunityFilter{
		Level:    string(q.Level),
		ParentID: q.ParentID,
		Search:   strings.ToLower(strings.TrimSpace(q.Search)),
	}, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[model.Community]{}, err
	}
	return pkg.NewPaginated(list, total, q.Page), nil
}

func (s *CommunityService) Children(ctx context.Context, id uint64) ([]model.Community, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Children(ctx, id)
}

// Ancestors returns the chain from the direct parent up to the root.
func (s *CommunityService) Ancestors(ctx context.Context, id uint64) ([]model.Community, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Community, 0, 6)
	seen := map[uint64]bool{c.ID: true}
	for parent := c.ParentID; parent != nil && len(out) < maxTreeDepth; {
		if seen[*parent] {
			break
		}
		p, err := s.repo.FindByID(ctx, *parent)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		seen[p.ID] = true
		out = append(out, *p)
		parent = p.ParentID
	}
	return out, nil
}

// Join is idempotent; created is false when the actor already was a member.
func (s *CommunityService) Join(ctx context.Context, communityID uint64, actor *model.User) (created bool, err error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	if _, err := s.Get(ctx, communityID); err != nil {
		return false, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err = (&mysql.MembershipRepository{DB: tx}).Join(ctx, &model.UserCommunityLink{
			UserID:      actor.ID,
			CommunityID: communityID,
			IsPublic:    false,
		})
		if err != nil || !created {
			return err
		}
		return mysql.InsertOutbox(tx, "community.join", "community", communityID, actor.ID, nil)
	})
	return created, err
}

func (s *CommunityService) Leave(ctx context.Context, communityID uint64, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, err := (&mysql.MembershipRepository{DB: tx}).Leave(ctx, communityID, actor.ID)
		if err != nil {
			return err
		}
		if !removed {
			return pkg.NotFound("not a member of this community")
		}
		return mysql.InsertOutbox(tx, "community.leave", "community", communityID, actor.ID, nil)
	})
}

func (s *CommunityService) UpdateVisibility(ctx context.Context, communityID uint64, actor *model.User, isPublic bool) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if _, err := s.members.Get(ctx, communityID, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkg.NotFound("not a member of this community")
		}
		return err
	}
	_, err := s.members.SetVisibility(ctx, communityID, actor.ID, isPublic)
	return err
}

type MemberView struct {
	ID       uint64    `json:"id"`
	Username string    `json:"username"`
	Image    string    `json:"image"`
	IsPublic bool      `json:"is_public"`
	JoinedAt time.Time `json:"joined_at"`
}

type MembersPage struct {
	Items               []MemberView `json:"items"`
	Total               int64        `json:"total"`
	TotalPublic         int64        `json:"total_public"`
	TotalAnonymous      int64        `json:"total_anonymous"`
	Page                int          `json:"page"`
	Size                int          `json:"size"`
	Pages               int          `json:"pages"`
	HasMore             bool         `json:"has_more"`
	IsPublicCurrentUser *bool        `json:"is_public_current_user"`
	CurrentUser         *MemberView  `json:"current_user"`
}

// Members lists public members plus the viewer's own row.
func (s *CommunityService) Members(ctx context.Context, communityID uint64, viewer *model.User, page pkg.Page) (*MembersPage, error) {
	if _, err := s.Get(ctx, communityID); err != nil {
		return nil, err
	}
	total, public, err := s.members.Counts(ctx, communityID)
	if err != nil {
		return nil, err
	}
	rows, visible, err := s.members.VisibleMembers(ctx, communityID, actorID(viewer), page.Offset(), page.Size)
	if err != nil {
		return nil, err
	}
	out := &MembersPage{
		Items:          make([]MemberView, 0, len(rows)),
		Total:          total,
		TotalPublic:    public,
		TotalAnonymous: total - public,
		Page:           page.Page,
		Size:           page.Size,
		Pages:          page.Pages(visible),
		HasMore:        int64(page.Offset()+len(rows)) < visible,
	}
	for _, r := range rows {
		out.Items = append(out.Items, MemberView{ID: r.UserID, Username: r.Username, Image: r.Image, IsPublic: r.IsPublic, JoinedAt: r.JoinedAt})
	}
	if viewer != nil {
		link, err := s.members.Get(ctx, communityID, viewer.ID)
		switch {
		case err == nil:
			isPublic := link.IsPublic
			out.IsPublicCurrentUser = &isPublic
			out.CurrentUser = &MemberView{ID: viewer.ID, Username: viewer.Username, Image: viewer.Image, IsPublic: link.IsPublic, JoinedAt: link.CreatedAt}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	return out, nil
}

type MyCommunity struct {
	model.Community
	IsPublic bool      `json:"is_public"`
	JoinedAt time.Time `json:"joined_at"`
}

func (s *CommunityService) MyCommunities(ctx context.Context, actor *model.User) ([]MyCommunity, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	links, err := s.members.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.CommunityID)
	}
	communities, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.Community, len(communities))
	for _, c := range communities {
		byID[c.ID] = c
	}
	out := make([]MyCommunity, 0, len(links))
	for _, l := range links {
		if c, ok := byID[l.CommunityID]; ok {
			out = append(out, MyCommunity{Community: c, IsPublic: l.IsPublic, JoinedAt: l.CreatedAt})
		}
	}
	return out, nil
}

type CommunityRequestInput struct {
	Name        string
	Description string
	ParentID    *uint64
}

// RequestCommunity stores a pending proposal for a CUSTOM community.
func (s *CommunityService) RequestCommunity(ctx context.Context, actor *model.User, in CommunityRequestInput) (*model.CommunityRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if !ValidCommunityName(name) {
		return nil, pkg.Validation("name must be 1-100 letters, digits, spaces or underscores")
	}
	if len(in.Description) > 500 {
		return nil, pkg.Validation("description must be at most 500 characters")
	}
	if in.ParentID != nil {
		if _, err := s.Get(ctx, *in.ParentID); err != nil {
			return nil, err
		}
	}
	req := &model.CommunityRequest{
		UserID:      actor.ID,
		Name:        name,
		Description: in.Description,
		ParentID:    in.ParentID,
		Status:      model.RequestPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *CommunityService) ListRequests(ctx context.Context, actor *model.User, status model.RequestStatus, page pkg.Page) (pkg.Paginated[model.CommunityRequest], error) {
	var empty pkg.Paginated[model.CommunityRequest]
	if err := s.requireReviewer(actor); err != nil {
		return empty, err
	}
	list, total, err := s.requests.List(ctx, string(status), page.Offset(), page.Size)
	if err != nil {
		return empty, err
	}
	return pkg.NewPaginated(list, total, page), nil
}

// ReviewRequest approves or rejects a pending request. Approval creates the
// CUSTOM community and makes the requester its first member.
func (s *CommunityService) ReviewRequest(ctx context.Context, actor *model.User, id uint64, approve bool, notes string) (*model.CommunityRequest, error) {
	if err := s.requireReviewer(actor); err != nil {
		return nil, err
	}
	var out *model.CommunityRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reqRepo := &mysql.CommunityRequestRepository{DB: tx}
		req, err := reqRepo.FindByID(ctx, id)
		if err != nil {
			return notFound(err, "community request")
		}
		if req.Status != model.RequestPending {
			return pkg.Conflict("request already reviewed")
		}
		now := time.Now().UTC()
		reviewer := actor.ID
		req.ReviewedByID = &reviewer
		req.ReviewedAt = &now
		req.Notes = notes
		if !approve {
			req.Status = model.RequestRejected
			out = req
			return reqRepo.Save(ctx, req)
		}

		communities := &mysql.CommunityRepository{DB: tx}
		parentID := req.ParentID
		if parentID == nil {
			root, err := communities.FindRoot(ctx)
			if err != nil {
				return notFound(err, "global community")
			}
			parentID = &root.ID
		}
		c := &model.Community{Name: req.Name, Description: req.Description, Level: model.LevelCustom, ParentID: parentID}
		if err := communities.Create(ctx, c); err != nil {
			return err
		}
		if _, err := (&mysql.MembershipRepository{DB: tx}).Join(ctx, &model.UserCommunityLink{UserID: req.UserID, CommunityID: c.ID}); err != nil {
			return err
		}
		req.Status = model.RequestApproved
		req.CommunityID = &c.ID
		out = req
		return reqRepo.Save(ctx, req)
	})
	return out, err
}

func (s *CommunityService) requireReviewer(actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !s.enf.Allowed(actor, authz.ObjCommunityRequests, authz.ActReview) {
		return pkg.Forbidden("moderator role required")
	}
	return nil
}
