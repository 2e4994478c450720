package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geounity/internal/authz"
	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/search"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var debateLanguages = map[string]bool{"en": true, "es": true, "fr": true}

type DebateService struct {
	contentBase
	now func() time.Time
}

func NewDebateService(db *gorm.DB, enf *authz.Enforcer, index search.Indexer) *DebateService {
	return &DebateService{contentBase: newContentBase(db, enf, index), now: time.Now}
}

type PointOfViewInput struct {
	Name        string
	CommunityID uint64
}

type DebateCreate struct {
	Title        string
	Description  string
	Status       model.DebateStatus
	Language     string
	Public       *bool
	IsAnonymous  bool
	Images       []string
	Scope        ScopeInput
	CommunityIDs []uint64
	Tags         []string
	PointsOfView []PointOfViewInput
}

type DebateUpdate struct {
	Title       *string
	Description *string
	Status      *model.DebateStatus
	Language    *string
	Public      *bool
	IsAnonymous *bool
	Images      *[]string
	Tags        *[]string
}

type OpinionView struct {
	model.Opinion
	Author    *model.UserMinimal `json:"author"`
	Upvotes   int64              `json:"upvotes"`
	Downvotes int64              `json:"downvotes"`
	Score     int64              `json:"score"`
	UserVote  int                `json:"user_vote"`
}

type PointOfViewView struct {
	model.PointOfView
	Opinions []OpinionView `json:"opinions"`
}

type DebateView struct {
	model.Debate
	Creator       *model.UserMinimal       `json:"creator"`
	Communities   []model.CommunityMinimal `json:"communities"`
	Tags          []string                 `json:"tags"`
	PointsOfView  []PointOfViewView        `json:"points_of_view,omitempty"`
	CommentsCount int64                    `json:"comments_count"`
}

func validDebateStatus(s model.DebateStatus) bool {
	switch s {
	case model.DebateOpen, model.DebatePending, model.DebateClosed, model.DebateRejected, model.DebateArchived, model.DebateResolved:
		return true
	}
	return false
}

func checkDebateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if n := len([]rune(title)); n < 5 || n > 100 {
		return "", pkg.Validation("title must be 5-100 characters")
	}
	return title, nil
}

func encodeImages(images []string) (datatypes.JSON, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func (in *DebateCreate) validate() error {
	var err error
	if in.Title, err = checkDebateTitle(in.Title); err != nil {
		return err
	}
	if len([]rune(in.Description)) > 10000 {
		return pkg.Validation("description must be at most 10000 characters")
	}
	if in.Status == "" {
		in.Status = model.DebateOpen
	}
	if in.Status != model.DebateOpen && in.Status != model.DebatePending {
		return pkg.Validation("new debates are OPEN or PENDING")
	}
	if in.Language == "" {
		in.Language = "es"
	}
	in.Language = strings.ToLower(in.Language)
	if !debateLanguages[in.Language] {
		return pkg.Validation("language must be en, es or fr")
	}
	for _, pov := range in.PointsOfView {
		if strings.TrimSpace(pov.Name) == "" || pov.CommunityID == 0 {
			return pkg.Validation("points of view need a name and a community_id")
		}
	}
	return nil
}

func (s *DebateService) Create(ctx context.Context, actor *model.User, in DebateCreate) (*DebateView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
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
	public := true
	if in.Public != nil {
		public = *in.Public
	}

	d := &model.Debate{
		Title:       in.Title,
		Description: in.Description,
		Type:        sel.Scope(),
		Status:      in.Status,
		Language:    in.Language,
		Public:      public,
		IsAnonymous: in.IsAnonymous,
		Images:      images,
		CreatorID:   actor.ID,
	}
	var communityIDs []uint64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveScope(ctx, tx, sel, in.CommunityIDs)
		if err != nil {
			return err
		}
		communityIDs = resolved.CommunityIDs
		repo := &mysql.DebateRepository{DB: tx}
		if err := createWithSlug(tx, &model.Debate{}, d.Title, func(slug string) error {
			d.Slug = slug
			return repo.Create(ctx, d)
		}); err != nil {
			return err
		}
		if err := linkContent(ctx, tx, model.KindDebate, d.ID, communityIDs, tags); err != nil {
			return err
		}
		povs, err := s.initialPointsOfView(ctx, tx, d, actor.ID, resolved, in.PointsOfView)
		if err != nil {
			return err
		}
		if err := repo.CreatePointsOfView(ctx, povs); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "debate.created", string(model.KindDebate), d.ID, actor.ID, map[string]any{"type": d.Type})
	})
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindDebate, d.ID, d.Title, d.Description, d.Slug, d.Type, string(d.Status), communityIDs, tags, d.CreatedAt.Unix()))
	logging.Ctx(ctx).Info().Uint64("debate_id", d.ID).Uint64("creator_id", actor.ID).Str("type", string(d.Type)).Msg("debate created")
	return s.detail(ctx, d, actor)
}

// initialPointsOfView gives each country of an INTERNATIONAL debate its own
// point of view, then adds the requested ones. One per community.
func (s *DebateService) initialPointsOfView(ctx context.Context, tx *gorm.DB, d *model.Debate, userID uint64, resolved *ResolvedScope, requested []PointOfViewInput) ([]model.PointOfView, error) {
	seen := map[uint64]bool{}
	var povs []model.PointOfView
	for _, c := range resolved.Countries {
		if seen[c.CommunityID] {
			continue
		}
		seen[c.CommunityID] = true
		povs = append(povs, model.PointOfView{Name: c.Name, DebateID: d.ID, CommunityID: c.CommunityID, CreatedByID: userID})
	}
	var ids []uint64
	for _, p := range requested {
		ids = append(ids, p.CommunityID)
	}
	ids = dedupe(ids)
	if len(ids) > 0 {
		found, err := (&mysql.CommunityRepository{DB: tx}).FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(found) != len(ids) {
			return nil, pkg.NotFound("community not found")
		}
	}
	for _, p := range requested {
		if seen[p.CommunityID] {
			continue
		}
		seen[p.CommunityID] = true
		povs = append(povs, model.PointOfView{Name: strings.TrimSpace(p.Name), DebateID: d.ID, CommunityID: p.CommunityID, CreatedByID: userID})
	}
	return povs, nil
}

func (s *DebateService) find(ctx context.Context, key string) (*model.Debate, error) {
	d, err := (&mysql.DebateRepository{DB: s.db}).FindByIDOrSlug(ctx, key)
	if err != nil {
		return nil, notFound(err, "debate")
	}
	return d, nil
}

func (s *DebateService) Get(ctx context.Context, key string, viewer *model.User) (*DebateView, error) {
	d, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mysql.IncrementViews(ctx, s.db, &model.Debate{}, d.ID); err != nil {
		return nil, err
	}
	d.ViewsCount++
	return s.detail(ctx, d, viewer)
}

func (s *DebateService) List(ctx context.Context, q ContentQuery, viewer *model.User) (pkg.Paginated[DebateView], error) {
	f, ok, err := q.filter(ctx, s.db)
	if err != nil || !ok {
		return pkg.NewPaginated[DebateView](nil, 0, q.Page), err
	}
	list, total, err := (&mysql.DebateRepository{DB: s.db}).List(ctx, f, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[DebateView]{}, err
	}
	views, err := s.views(ctx, list, viewer)
	if err != nil {
		return pkg.Paginated[DebateView]{}, err
	}
	return pkg.NewPaginated(views, total, q.Page), nil
}

// Update applies in and records one change log row per modified field.
func (s *DebateService) Update(ctx context.Context, key string, actor *model.User, in DebateUpdate) (*DebateView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	d, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !canManage(s.enf, actor, d.CreatorID) {
		return nil, pkg.Forbidden("only the creator can edit this debate")
	}

	fields := map[string]any{}
	var logs []model.DebateChangeLog
	change := func(field string, old, next any) {
		fields[field] = next
		oldS, newS := fmt.Sprint(old), fmt.Sprint(next)
		if oldS != newS {
			logs = append(logs, model.DebateChangeLog{DebateID: d.ID, UserID: actor.ID, Field: field, OldValue: oldS, NewValue: newS})
		}
	}
	if in.Title != nil {
		t, err := checkDebateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		change("title", d.Title, t)
	}
	if in.Description != nil {
		if len([]rune(*in.Description)) > 10000 {
			return nil, pkg.Validation("description must be at most 10000 characters")
		}
		change("description", d.Description, *in.Description)
	}
	if in.Status != nil {
		if !validDebateStatus(*in.Status) {
			return nil, pkg.Validation("invalid debate status %q", *in.Status)
		}
		change("status", d.Status, *in.Status)
	}
	if in.Language != nil {
		lang := strings.ToLower(*in.Language)
		if !debateLanguages[lang] {
			return nil, pkg.Validation("language must be en, es or fr")
		}
		change("language", d.Language, lang)
	}
	if in.Public != nil {
		change("public", d.Public, *in.Public)
	}
	if in.IsAnonymous != nil {
		change("is_anonymous", d.IsAnonymous, *in.IsAnonymous)
	}
	if in.Images != nil {
		images, err := encodeImages(*in.Images)
		if err != nil {
			return nil, err
		}
		change("images", string(d.Images), images)
	}
	var tags []string
	if in.Tags != nil {
		if tags, err = cleanTags(*in.Tags); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.DebateRepository{DB: tx}
		if err := repo.Updates(ctx, d.ID, fields); err != nil {
			return err
		}
		if err := repo.AddChangeLogs(ctx, logs); err != nil {
			return err
		}
		if in.Tags != nil {
			return replaceTags(ctx, tx, model.KindDebate, d.ID, tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated, err := (&mysql.DebateRepository{DB: s.db}).FindByID(ctx, d.ID)
	if err != nil {
		return nil, notFound(err, "debate")
	}
	v, err := s.detail(ctx, updated, actor)
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindDebate, v.ID, v.Title, v.Description, v.Slug, v.Type, string(v.Status), communityIDsOf(v.Communities), v.Tags, v.CreatedAt.Unix()))
	return v, nil
}

// Delete marks the debate deleted; it disappears from every read.
func (s *DebateService) Delete(ctx context.Context, key string, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	d, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if !canManage(s.enf, actor, d.CreatorID) {
		return pkg.Forbidden("only the creator can delete this debate")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.DebateRepository{DB: tx}).SoftDelete(ctx, d.ID, s.now()); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "debate.deleted", string(model.KindDebate), d.ID, actor.ID, nil)
	})
	if err != nil {
		return err
	}
	s.index.Remove(model.KindDebate, d.ID)
	return nil
}

// Moderate approves (OPEN) or rejects (REJECTED) a debate.
func (s *DebateService) Moderate(ctx context.Context, key string, actor *model.User, approve bool, notes string) (*DebateView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.enf.Allowed(actor, authz.ObjDebates, authz.ActModerate) {
		return nil, pkg.Forbidden("moderator role required")
	}
	if len([]rune(notes)) > 1000 {
		return nil, pkg.Validation("notes must be at most 1000 characters")
	}
	d, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	now := s.now()
	fields := map[string]any{"moderation_notes": notes}
	if approve {
		fields["status"] = model.DebateOpen
		fields["approved_by_id"] = actor.ID
		fields["approved_at"] = now
	} else {
		fields["status"] = model.DebateRejected
		fields["rejected_by_id"] = actor.ID
		fields["rejected_at"] = now
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.DebateRepository{DB: tx}
		if err := repo.Updates(ctx, d.ID, fields); err != nil {
			return err
		}
		return repo.AddChangeLogs(ctx, []model.DebateChangeLog{{
			DebateID: d.ID, UserID: actor.ID, Field: "status",
			OldValue: string(d.Status), NewValue: fmt.Sprint(fields["status"]),
		}})
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint64("debate_id", d.ID).Uint64("moderator_id", actor.ID).Bool("approved", approve).Msg("debate moderated")
	updated, err := (&mysql.DebateRepository{DB: s.db}).FindByID(ctx, d.ID)
	if err != nil {
		return nil, notFound(err, "debate")
	}
	return s.detail(ctx, updated, actor)
}

type OpinionInput struct {
	CommunityID uint64
	Content     string
}

// AddOpinion posts under the point of view of the given community, creating
// it on first use. The actor must belong to that community.
func (s *DebateService) AddOpinion(ctx context.Context, key string, actor *model.User, in OpinionInput) (*OpinionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" || len([]rune(content)) > 1000 {
		return nil, pkg.Validation("content must be 1-1000 characters")
	}
	if in.CommunityID == 0 {
		return nil, pkg.Validation("community_id is required")
	}
	d, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !d.Status.AcceptsOpinions() {
		return nil, pkg.Validation("debate is %s and no longer accepts opinions", d.Status)
	}
	community, err := (&mysql.CommunityRepository{DB: s.db}).FindByID(ctx, in.CommunityID)
	if err != nil {
		return nil, notFound(err, "community")
	}
	member, err := (&mysql.MembershipRepository{DB: s.db}).IsMember(ctx, community.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, pkg.Forbidden("you must be a member of %s to give its point of view", community.Name)
	}

	o := &model.Opinion{UserID: actor.ID, Content: content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.DebateRepository{DB: tx}
		pov, err := repo.FindOrCreatePointOfView(ctx, d.ID, community.ID, actor.ID, community.Name)
		if err != nil {
			return err
		}
		o.PointOfViewID = pov.ID
		if err := repo.CreateOpinion(ctx, o); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "debate.opinion", string(model.KindDebate), d.ID, actor.ID, map[string]any{"opinion_id": o.ID})
	})
	if err != nil {
		return nil, err
	}
	return &OpinionView{Opinion: *o, Author: actor.Minimal()}, nil
}

// VoteOpinion sets the actor's vote: 1 up, -1 down, 0 retracts.
func (s *DebateService) VoteOpinion(ctx context.Context, opinionID uint64, actor *model.User, value int) (*OpinionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if value < -1 || value > 1 {
		return nil, pkg.Validation("value must be -1, 0 or 1")
	}
	repo := &mysql.DebateRepository{DB: s.db}
	o, err := repo.FindOpinion(ctx, opinionID)
	if err != nil {
		return nil, notFound(err, "opinion")
	}
	pov, err := repo.FindPointOfView(ctx, o.PointOfViewID)
	if err != nil {
		return nil, notFound(err, "point of view")
	}
	if _, err := repo.FindByID(ctx, pov.DebateID); err != nil {
		return nil, notFound(err, "debate")
	}
	if err := s.requireDebateMember(ctx, pov, actor); err != nil {
		return nil, err
	}
	if err := repo.SetOpinionVote(ctx, o.ID, actor.ID, value); err != nil {
		return nil, err
	}
	views, err := s.opinionViews(ctx, []model.Opinion{*o}, actor)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// requireDebateMember accepts members of any linked community or of the
// point of view's own community.
func (s *DebateService) requireDebateMember(ctx context.Context, pov *model.PointOfView, actor *model.User) error {
	ok, err := (&mysql.MembershipRepository{DB: s.db}).IsMember(ctx, pov.CommunityID, actor.ID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return requireLinkedMember(ctx, s.db, model.KindDebate, pov.DebateID, actor)
}

func (s *DebateService) views(ctx context.Context, debates []model.Debate, viewer *model.User) ([]DebateView, error) {
	if len(debates) == 0 {
		return []DebateView{}, nil
	}
	ids := make([]uint64, 0, len(debates))
	creators := make([]uint64, 0, len(debates))
	for _, d := range debates {
		ids = append(ids, d.ID)
		creators = append(creators, d.CreatorID)
	}
	e, err := loadEnrichment(ctx, s.db, model.KindDebate, ids, creators)
	if err != nil {
		return nil, err
	}
	out := make([]DebateView, 0, len(debates))
	for _, d := range debates {
		v := DebateView{
			Debate:        d,
			Creator:       e.creator(d.CreatorID, d.IsAnonymous, viewer),
			Communities:   e.communityList(d.ID, d.Type),
			Tags:          e.tagList(d.ID),
			CommentsCount: e.comments[d.ID],
		}
		if v.Creator == nil {
			v.CreatorID = 0
		}
		out = append(out, v)
	}
	return out, nil
}

// detail is the single-debate projection with points of view and opinions.
func (s *DebateService) detail(ctx context.Context, d *model.Debate, viewer *model.User) (*DebateView, error) {
	views, err := s.views(ctx, []model.Debate{*d}, viewer)
	if err != nil {
		return nil, err
	}
	v := &views[0]
	repo := &mysql.DebateRepository{DB: s.db}
	povs, err := repo.PointsOfView(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	povIDs := make([]uint64, 0, len(povs))
	for _, p := range povs {
		povIDs = append(povIDs, p.ID)
	}
	opinions, err := repo.Opinions(ctx, povIDs)
	if err != nil {
		return nil, err
	}
	ov, err := s.opinionViews(ctx, opinions, viewer)
	if err != nil {
		return nil, err
	}
	byPov := make(map[uint64][]OpinionView, len(povs))
	for _, o := range ov {
		byPov[o.PointOfViewID] = append(byPov[o.PointOfViewID], o)
	}
	v.PointsOfView = make([]PointOfViewView, 0, len(povs))
	for _, p := range povs {
		list := byPov[p.ID]
		if list == nil {
			list = []OpinionView{}
		}
		v.PointsOfView = append(v.PointsOfView, PointOfViewView{PointOfView: p, Opinions: list})
	}
	return v, nil
}

func (s *DebateService) opinionViews(ctx context.Context, opinions []model.Opinion, viewer *model.User) ([]OpinionView, error) {
	if len(opinions) == 0 {
		return []OpinionView{}, nil
	}
	ids := make([]uint64, 0, len(opinions))
	authors := make([]uint64, 0, len(opinions))
	for _, o := range opinions {
		ids = append(ids, o.ID)
		authors = append(authors, o.UserID)
	}
	votes, err := (&mysql.DebateRepository{DB: s.db}).OpinionVotes(ctx, ids)
	if err != nil {
		return nil, err
	}
	users, err := (&mysql.UserRepository{DB: s.db}).FindByIDs(ctx, dedupe(authors))
	if err != nil {
		return nil, err
	}
	out := make([]OpinionView, len(opinions))
	index := make(map[uint64]int, len(opinions))
	for i, o := range opinions {
		out[i] = OpinionView{Opinion: o}
		if u, ok := users[o.UserID]; ok {
			out[i].Author = u.Minimal()
		}
		index[o.ID] = i
	}
	viewerID := actorID(viewer)
	for _, v := range votes {
		ov := &out[index[v.OpinionID]]
		switch {
		case v.Value > 0:
			ov.Upvotes++
		case v.Value < 0:
			ov.Downvotes++
		}
		if viewerID != 0 && v.UserID == viewerID {
			ov.UserVote = v.Value
		}
	}
	for i := range out {
		out[i].Score = out[i].Upvotes - out[i].Downvotes
	}
	return out, nil
}
