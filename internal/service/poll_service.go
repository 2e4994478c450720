package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"geounity/internal/authz"
	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/search"

	"gorm.io/gorm"
)

// ReactionTally caches like/dislike counts per poll.
type ReactionTally interface {
	Get(ctx context.Context, pollID uint64) (likes, dislikes int64, ok bool, err error)
	Set(ctx context.Context, pollID uint64, likes, dislikes int64) error
	Invalidate(ctx context.Context, pollID uint64, delay time.Duration) error
}

type PollService struct {
	contentBase
	cache           ReactionTally
	invalidateDelay time.Duration
	votesNeedMember bool
	now             func() time.Time
}

type PollOptions struct {
	Cache ReactionTally
	// InvalidateDelay schedules a second cache delete after a reaction write.
	InvalidateDelay time.Duration
	// RequireMembership gates voting on membership of a linked community.
	RequireMembership bool
}

func NewPollService(db *gorm.DB, enf *authz.Enforcer, index search.Indexer, opts PollOptions) *PollService {
	return &PollService{
		contentBase:     newContentBase(db, enf, index),
		cache:           opts.Cache,
		invalidateDelay: opts.InvalidateDelay,
		votesNeedMember: opts.RequireMembership,
		now:             time.Now,
	}
}

type PollCreate struct {
	Title        string
	Description  string
	Type         model.PollType
	IsAnonymous  *bool
	EndsAt       *time.Time
	Status       model.PollStatus
	Scope        ScopeInput
	CommunityIDs []uint64
	Tags         []string
	Options      []string
}

type PollUpdate struct {
	Title       *string
	Description *string
	Status      *model.PollStatus
	EndsAt      *time.Time
	IsAnonymous *bool
	Tags        *[]string
}

type OptionView struct {
	ID         uint64  `json:"id"`
	Text       string  `json:"text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type Reactions struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

type PollView struct {
	model.Poll
	Creator          *model.UserMinimal       `json:"creator"`
	Communities      []model.CommunityMinimal `json:"communities"`
	Tags             []string                 `json:"tags"`
	Options          []OptionView             `json:"options"`
	TotalVotes       int64                    `json:"total_votes"`
	UserVotedOptions []uint64                 `json:"user_voted_options"`
	Reactions        Reactions                `json:"reactions"`
	UserReaction     *model.ReactionType      `json:"user_reaction"`
	CommentsCount    int64                    `json:"comments_count"`
}

func validPollType(t model.PollType) bool {
	switch t {
	case model.PollBinary, model.PollSingleChoice, model.PollMultipleChoice:
		return true
	}
	return false
}

func validPollStatus(s model.PollStatus) bool {
	switch s {
	case model.PollDraft, model.PollPublished, model.PollClosed:
		return true
	}
	return false
}

func (in *PollCreate) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len([]rune(in.Title)) > 100 {
		return pkg.Validation("title must be 1-100 characters")
	}
	if len([]rune(in.Description)) > 500 {
		return pkg.Validation("description must be at most 500 characters")
	}
	if !validPollType(in.Type) {
		return pkg.Validation("invalid poll type %q", in.Type)
	}
	if in.Status == "" {
		in.Status = model.PollPublished
	}
	if !validPollStatus(in.Status) {
		return pkg.Validation("invalid poll status %q", in.Status)
	}
	opts := make([]string, 0, len(in.Options))
	for _, o := range in.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return pkg.Validation("option text is required")
		}
		if len([]rune(o)) > 150 {
			return pkg.Validation("option text must be at most 150 characters")
		}
		opts = append(opts, o)
	}
	in.Options = opts
	if in.Type == model.PollBinary && len(opts) != 2 {
		return pkg.Validation("BINARY polls need exactly 2 options")
	}
	if len(opts) < 2 {
		return pkg.Validation("polls need at least 2 options")
	}
	return nil
}

func (s *PollService) Create(ctx context.Context, actor *model.User, in PollCreate) (*PollView, error) {
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
	anonymous := true
	if in.IsAnonymous != nil {
		anonymous = *in.IsAnonymous
	}

	p := &model.Poll{
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		IsAnonymous: anonymous,
		EndsAt:      in.EndsAt,
		Scope:       sel.Scope(),
		Status:      in.Status,
		CreatorID:   actor.ID,
	}
	var communityIDs []uint64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveScope(ctx, tx, sel, in.CommunityIDs)
		if err != nil {
			return err
		}
		communityIDs = resolved.CommunityIDs
		options := make([]model.PollOption, 0, len(in.Options))
		for _, text := range in.Options {
			options = append(options, model.PollOption{Text: text})
		}
		if err := createWithSlug(tx, &model.Poll{}, p.Title, func(slug string) error {
			p.Slug = slug
			return (&mysql.PollRepository{DB: tx}).Create(ctx, p, options)
		}); err != nil {
			return err
		}
		if err := linkContent(ctx, tx, model.KindPoll, p.ID, communityIDs, tags); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "poll.created", string(model.KindPoll), p.ID, actor.ID, map[string]any{"scope": p.Scope})
	})
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindPoll, p.ID, p.Title, p.Description, p.Slug, p.Scope, string(p.Status), communityIDs, tags, p.CreatedAt.Unix()))
	logging.Ctx(ctx).Info().Uint64("poll_id", p.ID).Uint64("creator_id", actor.ID).Str("scope", string(p.Scope)).Msg("poll created")
	return s.view(ctx, p, actor)
}

func (s *PollService) find(ctx context.Context, key string) (*model.Poll, error) {
	p, err := (&mysql.PollRepository{DB: s.db}).FindByIDOrSlug(ctx, key)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	return p, nil
}

// Get loads a poll by id or slug and counts the view.
func (s *PollService) Get(ctx context.Context, key string, viewer *model.User) (*PollView, error) {
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mysql.IncrementViews(ctx, s.db, &model.Poll{}, p.ID); err != nil {
		return nil, err
	}
	p.ViewsCount++
	return s.view(ctx, p, viewer)
}

func (s *PollService) List(ctx context.Context, q ContentQuery, viewer *model.User) (pkg.Paginated[PollView], error) {
	f, ok, err := q.filter(ctx, s.db)
	if err != nil || !ok {
		return pkg.NewPaginated[PollView](nil, 0, q.Page), err
	}
	list, total, err := (&mysql.PollRepository{DB: s.db}).List(ctx, f, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[PollView]{}, err
	}
	views, err := s.views(ctx, list, viewer)
	if err != nil {
		return pkg.Paginated[PollView]{}, err
	}
	return pkg.NewPaginated(views, total, q.Page), nil
}

func (s *PollService) Update(ctx context.Context, key string, actor *model.User, in PollUpdate) (*PollView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !canManage(s.enf, actor, p.CreatorID) {
		return nil, pkg.Forbidden("only the creator can edit this poll")
	}
	fields := map[string]any{}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" || len([]rune(t)) > 100 {
			return nil, pkg.Validation("title must be 1-100 characters")
		}
		fields["title"] = t
	}
	if in.Description != nil {
		if len([]rune(*in.Description)) > 500 {
			return nil, pkg.Validation("description must be at most 500 characters")
		}
		fields["description"] = *in.Description
	}
	if in.Status != nil {
		if !validPollStatus(*in.Status) {
			return nil, pkg.Validation("invalid poll status %q", *in.Status)
		}
		fields["status"] = *in.Status
	}
	if in.EndsAt != nil {
		fields["ends_at"] = *in.EndsAt
	}
	if in.IsAnonymous != nil {
		fields["is_anonymous"] = *in.IsAnonymous
	}
	var tags []string
	if in.Tags != nil {
		if tags, err = cleanTags(*in.Tags); err != nil {
			return nil, err
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.PollRepository{DB: tx}).Updates(ctx, p.ID, fields); err != nil {
			return err
		}
		if in.Tags != nil {
			return replaceTags(ctx, tx, model.KindPoll, p.ID, tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated, err := (&mysql.PollRepository{DB: s.db}).FindByID(ctx, p.ID)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	v, err := s.view(ctx, updated, actor)
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindPoll, v.ID, v.Title, v.Description, v.Slug, v.Scope, string(v.Status), communityIDsOf(v.Communities), v.Tags, v.CreatedAt.Unix()))
	return v, nil
}

func (s *PollService) Delete(ctx context.Context, key string, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if !canManage(s.enf, actor, p.CreatorID) {
		return pkg.Forbidden("only the creator can delete this poll")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.PollRepository{DB: tx}).Delete(ctx, p.ID); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "poll.deleted", string(model.KindPoll), p.ID, actor.ID, nil)
	})
	if err != nil {
		return err
	}
	s.index.Remove(model.KindPoll, p.ID)
	return nil
}

// checkVoteShape validates option ids against the poll type and options.
func checkVoteShape(p *model.Poll, options []model.PollOption, optionIDs []uint64) ([]uint64, error) {
	ids := dedupe(optionIDs)
	if len(ids) != len(optionIDs) {
		return nil, pkg.Validation("option_ids must be distinct")
	}
	switch p.Type {
	case model.PollBinary, model.PollSingleChoice:
		if len(ids) != 1 {
			return nil, pkg.Validation("%s polls take exactly one option", p.Type)
		}
	default:
		if len(ids) == 0 {
			return nil, pkg.Validation("at least one option is required")
		}
	}
	valid := make(map[uint64]struct{}, len(options))
	for _, o := range options {
		valid[o.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := valid[id]; !ok {
			return nil, pkg.Validation("option %d does not belong to this poll", id)
		}
	}
	return ids, nil
}

// Vote replaces the actor's vote set. Re-submitting the same set is a no-op.
func (s *PollService) Vote(ctx context.Context, key string, actor *model.User, optionIDs []uint64) (*PollView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	target, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	var p *model.Poll
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.PollRepository{DB: tx}
		var err error
		if p, err = repo.LockByID(ctx, target.ID); err != nil {
			return notFound(err, "poll")
		}
		if p.Status != model.PollPublished {
			return pkg.Validation("poll is not open for voting")
		}
		if p.Expired(s.now()) {
			return pkg.Validation("poll has ended")
		}
		if s.votesNeedMember {
			if err := requireLinkedMember(ctx, tx, model.KindPoll, p.ID, actor); err != nil {
				return err
			}
		}
		options, err := repo.Options(ctx, []uint64{p.ID})
		if err != nil {
			return err
		}
		ids, err := checkVoteShape(p, options[p.ID], optionIDs)
		if err != nil {
			return err
		}
		prev, err := repo.UserVotes(ctx, p.ID, actor.ID)
		if err != nil {
			return err
		}
		if sameVoteSet(prev, ids) {
			return nil
		}
		if err := repo.ReplaceVotes(ctx, p.ID, actor.ID, ids); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "poll.voted", string(model.KindPoll), p.ID, actor.ID, map[string]any{"option_ids": ids})
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, actor)
}

func sameVoteSet(prev []model.PollVote, ids []uint64) bool {
	if len(prev) != len(ids) {
		return false
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, v := range prev {
		if _, ok := set[v.OptionID]; !ok {
			return false
		}
	}
	return true
}

func (s *PollService) Unvote(ctx context.Context, key string, actor *model.User) (*PollView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	target, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	var p *model.Poll
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.PollRepository{DB: tx}
		var err error
		if p, err = repo.LockByID(ctx, target.ID); err != nil {
			return notFound(err, "poll")
		}
		prev, err := repo.UserVotes(ctx, p.ID, actor.ID)
		if err != nil {
			return err
		}
		if len(prev) == 0 {
			return pkg.NotFound("no vote to remove")
		}
		return repo.ReplaceVotes(ctx, p.ID, actor.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, actor)
}

type ReactionResult struct {
	Reaction *model.ReactionType `json:"reaction"`
	Reactions
}

// React toggles a LIKE/DISLIKE: the same reaction removes it, another one switches.
func (s *PollService) React(ctx context.Context, key string, actor *model.User, reaction model.ReactionType) (*ReactionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if reaction != model.ReactionLike && reaction != model.ReactionDislike {
		return nil, pkg.Validation("reaction must be LIKE or DISLIKE")
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	var current *model.ReactionType
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.PollRepository{DB: tx}
		// serializes toggles of the same user on this poll
		if _, err := repo.LockByID(ctx, p.ID); err != nil {
			return notFound(err, "poll")
		}
		existing, err := repo.Reaction(ctx, p.ID, actor.ID)
		switch {
		case err == nil && existing.Reaction == reaction:
			return repo.DeleteReaction(ctx, existing.ID)
		case err == nil:
			existing.Reaction = reaction
			existing.ReactedAt = s.now()
			current = &reaction
			return repo.SaveReaction(ctx, existing)
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = &reaction
			return repo.SaveReaction(ctx, &model.PollReaction{PollID: p.ID, UserID: actor.ID, Reaction: reaction, ReactedAt: s.now()})
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, p.ID, s.invalidateDelay); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint64("poll_id", p.ID).Msg("reaction cache invalidate failed")
		}
	}
	counts, err := s.reactions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &ReactionResult{Reaction: current, Reactions: counts}, nil
}

// reactions reads through the cache; cache failures fall back to the database.
func (s *PollService) reactions(ctx context.Context, pollID uint64) (Reactions, error) {
	if s.cache != nil {
		likes, dislikes, ok, err := s.cache.Get(ctx, pollID)
		if err == nil && ok {
			return Reactions{Likes: likes, Dislikes: dislikes}, nil
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Uint64("poll_id", pollID).Msg("reaction cache read failed")
		}
	}
	likes, dislikes, err := (&mysql.PollRepository{DB: s.db}).ReactionCounts(ctx, pollID)
	if err != nil {
		return Reactions{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, pollID, likes, dislikes)
	}
	return Reactions{Likes: likes, Dislikes: dislikes}, nil
}

func (s *PollService) view(ctx context.Context, p *model.Poll, viewer *model.User) (*PollView, error) {
	views, err := s.views(ctx, []model.Poll{*p}, viewer)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *PollService) views(ctx context.Context, polls []model.Poll, viewer *model.User) ([]PollView, error) {
	if len(polls) == 0 {
		return []PollView{}, nil
	}
	repo := &mysql.PollRepository{DB: s.db}
	ids := make([]uint64, 0, len(polls))
	creators := make([]uint64, 0, len(polls))
	for _, p := range polls {
		ids = append(ids, p.ID)
		creators = append(creators, p.CreatorID)
	}
	e, err := loadEnrichment(ctx, s.db, model.KindPoll, ids, creators)
	if err != nil {
		return nil, err
	}
	options, err := repo.Options(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]PollView, 0, len(polls))
	for _, p := range polls {
		v := PollView{
			Poll:             p,
			Creator:          e.creator(p.CreatorID, p.IsAnonymous, viewer),
			Communities:      e.communityList(p.ID, p.Scope),
			Tags:             e.tagList(p.ID),
			UserVotedOptions: []uint64{},
			CommentsCount:    e.comments[p.ID],
		}
		if v.Creator == nil {
			v.CreatorID = 0
		}
		for _, o := range options[p.ID] {
			v.TotalVotes += o.Votes
		}
		for _, o := range options[p.ID] {
			v.Options = append(v.Options, OptionView{ID: o.ID, Text: o.Text, Votes: o.Votes, Percentage: percentage(o.Votes, v.TotalVotes)})
		}
		if v.Reactions, err = s.reactions(ctx, p.ID); err != nil {
			return nil, err
		}
		if viewer != nil {
			votes, err := repo.UserVotes(ctx, p.ID, viewer.ID)
			if err != nil {
				return nil, err
			}
			for _, vote := range votes {
				v.UserVotedOptions = append(v.UserVotedOptions, vote.OptionID)
			}
			if re, err := repo.Reaction(ctx, p.ID, viewer.ID); err == nil {
				r := re.Reaction
				v.UserReaction = &r
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*10000/float64(total)) / 100
}

func communityIDsOf(list []model.CommunityMinimal) []uint64 {
	ids := make([]uint64, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}
