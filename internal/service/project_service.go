package service

import (
	"context"
	"math"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/search"

	"gorm.io/gorm"
)

type ProjectService struct {
	contentBase
}

func NewProjectService(db *gorm.DB, enf *authz.Enforcer, index search.Indexer) *ProjectService {
	return &ProjectService{contentBase: newContentBase(db, enf, index)}
}

type ResourceCreate struct {
	Type        model.ResourceType
	Description string
	Quantity    *float64
	Unit        string
}

type StepCreate struct {
	Title       string
	Description string
	Order       int
	Status      model.StepStatus
	Resources   []ResourceCreate
}

type ProjectCreate struct {
	Title        string
	Description  string
	Status       model.ProjectStatus
	GoalAmount   *float64
	IsAnonymous  bool
	Scope        ScopeInput
	CommunityIDs []uint64
	Tags         []string
	Steps        []StepCreate
}

type ProjectUpdate struct {
	Title       *string
	Description *string
	Status      *model.ProjectStatus
	GoalAmount  *float64
	IsAnonymous *bool
	Tags        *[]string
}

type CommitmentInput struct {
	Type        model.CommitmentType
	Description string
	Quantity    *float64
	Unit        string
	StepID      *uint64
}

type StepView struct {
	model.ProjectStep
	Resources []model.ProjectResource `json:"resources"`
}

type ProjectView struct {
	model.Project
	Creator          *model.UserMinimal       `json:"creator"`
	Communities      []model.CommunityMinimal `json:"communities"`
	Tags             []string                 `json:"tags"`
	Steps            []StepView               `json:"steps,omitempty"`
	CommitmentsCount int64                    `json:"commitments_count"`
	DonationsCount   int64                    `json:"donations_count"`
	Progress         float64                  `json:"progress"`
	CommentsCount    int64                    `json:"comments_count"`
}

func validStepStatus(s model.StepStatus) bool {
	switch s {
	case model.StepPending, model.StepInProgress, model.StepCompleted:
		return true
	}
	return false
}

func validResourceType(t model.ResourceType) bool {
	switch t {
	case model.ResourceLabor, model.ResourceMaterial, model.ResourceEconomic:
		return true
	}
	return false
}

func validCommitmentType(t model.CommitmentType) bool {
	switch t {
	case model.CommitmentTime, model.CommitmentMaterial, model.CommitmentEconomic:
		return true
	}
	return false
}

func checkProjectText(title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len([]rune(title)) > 100 {
		return "", pkg.Validation("title must be 1-100 characters")
	}
	if len([]rune(description)) > 5000 {
		return "", pkg.Validation("description must be at most 5000 characters")
	}
	return title, nil
}

func (in *ProjectCreate) steps() ([]mysql.StepInput, error) {
	out := make([]mysql.StepInput, 0, len(in.Steps))
	for i, st := range in.Steps {
		title := strings.TrimSpace(st.Title)
		if title == "" || len([]rune(title)) > 100 {
			return nil, pkg.Validation("step %d: title must be 1-100 characters", i+1)
		}
		if st.Status == "" {
			st.Status = model.StepPending
		}
		if !validStepStatus(st.Status) {
			return nil, pkg.Validation("step %d: invalid status %q", i+1, st.Status)
		}
		order := st.Order
		if order == 0 {
			order = i + 1
		}
		step := mysql.StepInput{Step: model.ProjectStep{Title: title, Description: st.Description, Order: order, Status: st.Status}}
		for _, r := range st.Resources {
			if !validResourceType(r.Type) {
				return nil, pkg.Validation("step %d: invalid resource type %q", i+1, r.Type)
			}
			if r.Quantity != nil && *r.Quantity < 0 {
				return nil, pkg.Validation("step %d: resource quantity must not be negative", i+1)
			}
			step.Resources = append(step.Resources, model.ProjectResource{Type: r.Type, Description: r.Description, Quantity: r.Quantity, Unit: r.Unit})
		}
		out = append(out, step)
	}
	return out, nil
}

func (s *ProjectService) Create(ctx context.Context, actor *model.User, in ProjectCreate) (*ProjectView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	title, err := checkProjectText(in.Title, in.Description)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = model.ProjectOpen
	}
	if !in.Status.Valid() {
		return nil, pkg.Validation("invalid project status %q", in.Status)
	}
	if in.GoalAmount != nil && *in.GoalAmount <= 0 {
		return nil, pkg.Validation("goal_amount must be positive")
	}
	steps, err := in.steps()
	if err != nil {
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
	p := &model.Project{
		Title:       title,
		Description: in.Description,
		Status:      in.Status,
		Scope:       sel.Scope(),
		GoalAmount:  in.GoalAmount,
		IsAnonymous: in.IsAnonymous,
		CreatorID:   actor.ID,
	}
	var communityIDs []uint64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveScope(ctx, tx, sel, in.CommunityIDs)
		if err != nil {
			return err
		}
		communityIDs = resolved.CommunityIDs
		if err := createWithSlug(tx, &model.Project{}, p.Title, func(slug string) error {
			p.Slug = slug
			return (&mysql.ProjectRepository{DB: tx}).Create(ctx, p, steps)
		}); err != nil {
			return err
		}
		if err := linkContent(ctx, tx, model.KindProject, p.ID, communityIDs, tags); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "project.created", string(model.KindProject), p.ID, actor.ID, map[string]any{"scope": p.Scope})
	})
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindProject, p.ID, p.Title, p.Description, p.Slug, p.Scope, string(p.Status), communityIDs, tags, p.CreatedAt.Unix()))
	logging.Ctx(ctx).Info().Uint64("project_id", p.ID).Uint64("creator_id", actor.ID).Int("steps", len(steps)).Msg("project created")
	return s.detail(ctx, p, actor)
}

func (s *ProjectService) find(ctx context.Context, key string) (*model.Project, error) {
	p, err := (&mysql.ProjectRepository{DB: s.db}).FindByIDOrSlug(ctx, key)
	if err != nil {
		return nil, notFound(err, "project")
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, key string, viewer *model.User) (*ProjectView, error) {
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := mysql.IncrementViews(ctx, s.db, &model.Project{}, p.ID); err != nil {
		return nil, err
	}
	p.ViewsCount++
	return s.detail(ctx, p, viewer)
}

func (s *ProjectService) List(ctx context.Context, q ContentQuery, viewer *model.User) (pkg.Paginated[ProjectView], error) {
	f, ok, err := q.filter(ctx, s.db)
	if err != nil || !ok {
		return pkg.NewPaginated[ProjectView](nil, 0, q.Page), err
	}
	list, total, err := (&mysql.ProjectRepository{DB: s.db}).List(ctx, f, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[ProjectView]{}, err
	}
	views, err := s.views(ctx, list, viewer)
	if err != nil {
		return pkg.Paginated[ProjectView]{}, err
	}
	return pkg.NewPaginated(views, total, q.Page), nil
}

func (s *ProjectService) Update(ctx context.Context, key string, actor *model.User, in ProjectUpdate) (*ProjectView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !canManage(s.enf, actor, p.CreatorID) {
		return nil, pkg.Forbidden("only the creator can edit this project")
	}
	fields := map[string]any{}
	if in.Title != nil || in.Description != nil {
		title, desc := p.Title, p.Description
		if in.Title != nil {
			title = *in.Title
		}
		if in.Description != nil {
			desc = *in.Description
		}
		if title, err = checkProjectText(title, desc); err != nil {
			return nil, err
		}
		fields["title"] = title
		fields["description"] = desc
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, pkg.Validation("invalid project status %q", *in.Status)
		}
		fields["status"] = *in.Status
	}
	if in.GoalAmount != nil {
		if *in.GoalAmount <= 0 {
			return nil, pkg.Validation("goal_amount must be positive")
		}
		fields["goal_amount"] = *in.GoalAmount
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
		if err := (&mysql.ProjectRepository{DB: tx}).Updates(ctx, p.ID, fields); err != nil {
			return err
		}
		if in.Tags != nil {
			return replaceTags(ctx, tx, model.KindProject, p.ID, tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated, err := (&mysql.ProjectRepository{DB: s.db}).FindByID(ctx, p.ID)
	if err != nil {
		return nil, notFound(err, "project")
	}
	v, err := s.detail(ctx, updated, actor)
	if err != nil {
		return nil, err
	}
	s.index.Index(searchDoc(model.KindProject, v.ID, v.Title, v.Description, v.Slug, v.Scope, string(v.Status), communityIDsOf(v.Communities), v.Tags, v.CreatedAt.Unix()))
	return v, nil
}

func (s *ProjectService) Delete(ctx context.Context, key string, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if !canManage(s.enf, actor, p.CreatorID) {
		return pkg.Forbidden("only the creator can delete this project")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.ProjectRepository{DB: tx}).Delete(ctx, p.ID); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "project.deleted", string(model.KindProject), p.ID, actor.ID, nil)
	})
	if err != nil {
		return err
	}
	s.index.Remove(model.KindProject, p.ID)
	return nil
}

func acceptsContributions(st model.ProjectStatus) bool {
	return st == model.ProjectOpen || st == model.ProjectInProgress
}

// Commit records a pledge of time, material or money. Members only.
func (s *ProjectService) Commit(ctx context.Context, key string, actor *model.User, in CommitmentInput) (*model.ProjectCommitment, error) {
	if !validCommitmentType(in.Type) {
		return nil, pkg.Validation("type must be TIME, MATERIAL or ECONOMIC")
	}
	if len([]rune(in.Description)) > 500 {
		return nil, pkg.Validation("description must be at most 500 characters")
	}
	if in.Quantity != nil && *in.Quantity <= 0 {
		return nil, pkg.Validation("quantity must be positive")
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := requireLinkedMember(ctx, s.db, model.KindProject, p.ID, actor); err != nil {
		return nil, err
	}
	if !acceptsContributions(p.Status) {
		return nil, pkg.Validation("project is %s and does not take commitments", p.Status)
	}
	c := &model.ProjectCommitment{
		ProjectID:   p.ID,
		StepID:      in.StepID,
		UserID:      actor.ID,
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		Unit:        in.Unit,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &mysql.ProjectRepository{DB: tx}
		if in.StepID != nil {
			steps, err := repo.Steps(ctx, p.ID)
			if err != nil {
				return err
			}
			if !hasStep(steps, *in.StepID) {
				return pkg.Validation("step %d does not belong to this project", *in.StepID)
			}
		}
		if err := repo.AddCommitment(ctx, c); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "project.commitment", string(model.KindProject), p.ID, actor.ID, map[string]any{"commitment_id": c.ID, "type": c.Type})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func hasStep(steps []model.ProjectStep, id uint64) bool {
	for _, st := range steps {
		if st.ID == id {
			return true
		}
	}
	return false
}

// Donate adds amount to current_amount atomically.
func (s *ProjectService) Donate(ctx context.Context, key string, actor *model.User, amount float64, message string) (*ProjectView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, pkg.Validation("amount must be greater than zero")
	}
	if len([]rune(message)) > 500 {
		return nil, pkg.Validation("message must be at most 500 characters")
	}
	p, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acceptsContributions(p.Status) {
		return nil, pkg.Validation("project is %s and does not take donations", p.Status)
	}
	d := &model.ProjectDonation{ProjectID: p.ID, UserID: actor.ID, Amount: amount, Message: strings.TrimSpace(message)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.ProjectRepository{DB: tx}).AddDonation(ctx, d); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "project.donation", string(model.KindProject), p.ID, actor.ID, map[string]any{"amount": amount})
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint64("project_id", p.ID).Float64("amount", amount).Msg("donation recorded")
	updated, err := (&mysql.ProjectRepository{DB: s.db}).FindByID(ctx, p.ID)
	if err != nil {
		return nil, notFound(err, "project")
	}
	return s.detail(ctx, updated, actor)
}

func (s *ProjectService) views(ctx context.Context, projects []model.Project, viewer *model.User) ([]ProjectView, error) {
	if len(projects) == 0 {
		return []ProjectView{}, nil
	}
	repo := &mysql.ProjectRepository{DB: s.db}
	ids := make([]uint64, 0, len(projects))
	creators := make([]uint64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
		creators = append(creators, p.CreatorID)
	}
	e, err := loadEnrichment(ctx, s.db, model.KindProject, ids, creators)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		v := ProjectView{
			Project:       p,
			Creator:       e.creator(p.CreatorID, p.IsAnonymous, viewer),
			Communities:   e.communityList(p.ID, p.Scope),
			Tags:          e.tagList(p.ID),
			CommentsCount: e.comments[p.ID],
		}
		if v.Creator == nil {
			v.CreatorID = 0
		}
		if v.CommitmentsCount, err = repo.CountCommitments(ctx, p.ID); err != nil {
			return nil, err
		}
		if v.DonationsCount, err = repo.DonationStats(ctx, p.ID); err != nil {
			return nil, err
		}
		if p.GoalAmount != nil && *p.GoalAmount > 0 {
			pct := p.CurrentAmount / *p.GoalAmount * 100
			v.Progress = math.Min(100, math.Round(pct*100)/100)
		}
		out = append(out, v)
	}
	return out, nil
}

// detail adds steps with resources. Without a goal amount, progress is the
// share of completed steps.
func (s *ProjectService) detail(ctx context.Context, p *model.Project, viewer *model.User) (*ProjectView, error) {
	views, err := s.views(ctx, []model.Project{*p}, viewer)
	if err != nil {
		return nil, err
	}
	v := &views[0]
	repo := &mysql.ProjectRepository{DB: s.db}
	steps, err := repo.Steps(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	stepIDs := make([]uint64, 0, len(steps))
	for _, st := range steps {
		stepIDs = append(stepIDs, st.ID)
	}
	resources, err := repo.Resources(ctx, stepIDs)
	if err != nil {
		return nil, err
	}
	v.Steps = make([]StepView, 0, len(steps))
	completed := 0
	for _, st := range steps {
		res := resources[st.ID]
		if res == nil {
			res = []model.ProjectResource{}
		}
		if st.Status == model.StepCompleted {
			completed++
		}
		v.Steps = append(v.Steps, StepView{ProjectStep: st, Resources: res})
	}
	if (p.GoalAmount == nil || *p.GoalAmount <= 0) && len(steps) > 0 {
		v.Progress = math.Round(float64(completed)*10000/float64(len(steps))) / 100
	}
	return v, nil
}
