package service

import (
	"context"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

type OrganizationService struct {
	db  *gorm.DB
	enf *authz.Enforcer
}

func NewOrganizationService(db *gorm.DB, enf *authz.Enforcer) *OrganizationService {
	return &OrganizationService{db: db, enf: enf}
}

type OrganizationInput struct {
	Name         string
	Description  string
	Level        model.OrganizationLevel
	ParentID     *uint64
	CommunityID  *uint64
	RegionID     *uint64
	SubregionID  *uint64
	LocalityID   *uint64
	ContactEmail string
	ContactPhone string
	Website      string
}

// OrganizationUpdate changes only the non-nil fields.
type OrganizationUpdate struct {
	Name         *string
	Description  *string
	Level        *model.OrganizationLevel
	ParentID     *uint64
	CommunityID  *uint64
	RegionID     *uint64
	SubregionID  *uint64
	LocalityID   *uint64
	ContactEmail *string
	ContactPhone *string
	Website      *string
}

type OrganizationQuery struct {
	Level       model.OrganizationLevel
	ParentID    *uint64
	CommunityID uint64
	RegionID    uint64
	SubregionID uint64
	LocalityID  uint64
	Search      string
	Page        pkg.Page
}

func validOrgLevel(l model.OrganizationLevel) bool {
	switch l {
	case model.OrgMunicipal, model.OrgProvincial, model.OrgRegional, model.OrgNational:
		return true
	}
	return false
}

func checkOrgName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 200 {
		return "", pkg.Validation("name must be 1-200 characters")
	}
	return name, nil
}

func checkContact(email, website string) error {
	if email != "" {
		if err := validate.Var(email, "email,max=128"); err != nil {
			return pkg.Validation("invalid contact_email")
		}
	}
	if website != "" {
		if err := validate.Var(website, "url,max=255"); err != nil {
			return pkg.Validation("invalid website")
		}
	}
	return nil
}

// checkOrgRefs verifies that every referenced row exists.
func checkOrgRefs(ctx context.Context, db *gorm.DB, refs map[string]*uint64) error {
	tables := map[string]any{
		"parent":    &model.Organization{},
		"community": &model.Community{},
		"region":    &model.Region{},
		"subregion": &model.Subregion{},
		"locality":  &model.Locality{},
	}
	for what, id := range refs {
		if id == nil {
			continue
		}
		var n int64
		if err := db.WithContext(ctx).Model(tables[what]).Where("id = ?", *id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return pkg.NotFound("%s %d not found", what, *id)
		}
	}
	return nil
}

func (s *OrganizationService) requireWriter(actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !s.enf.Allowed(actor, authz.ObjOrganizations, authz.ActWrite) {
		return pkg.Forbidden("admin role required")
	}
	return nil
}

func (s *OrganizationService) List(ctx context.Context, q OrganizationQuery) (pkg.Paginated[model.Organization], error) {
	list, total, err := (&mysql.OrganizationRepository{DB: s.db}).List(ctx, mysql.OrganizationFilter{
		Level:       string(q.Level),
		ParentID:    q.ParentID,
		CommunityID: q.CommunityID,
		RegionID:    q.RegionID,
		SubregionID: q.SubregionID,
		LocalityID:  q.LocalityID,
		Search:      strings.TrimSpace(q.Search),
	}, q.Page.Offset(), q.Page.Size)
	if err != nil {
		return pkg.Paginated[model.Organization]{}, err
	}
	return pkg.NewPaginated(list, total, q.Page), nil
}

func (s *OrganizationService) Get(ctx context.Context, id uint64) (*model.Organization, error) {
	o, err := (&mysql.OrganizationRepository{DB: s.db}).FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "organization")
	}
	return o, nil
}

func (s *OrganizationService) Create(ctx context.Context, actor *model.User, in OrganizationInput) (*model.Organization, error) {
	if err := s.requireWriter(actor); err != nil {
		return nil, err
	}
	name, err := checkOrgName(in.Name)
	if err != nil {
		return nil, err
	}
	if !validOrgLevel(in.Level) {
		return nil, pkg.Validation("invalid level %q", in.Level)
	}
	if err := checkContact(in.ContactEmail, in.Website); err != nil {
		return nil, err
	}
	if err := checkOrgRefs(ctx, s.db, map[string]*uint64{
		"parent": in.ParentID, "community": in.CommunityID, "region": in.RegionID,
		"subregion": in.SubregionID, "locality": in.LocalityID,
	}); err != nil {
		return nil, err
	}
	o := &model.Organization{
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Level:        in.Level,
		ParentID:     in.ParentID,
		CommunityID:  in.CommunityID,
		RegionID:     in.RegionID,
		SubregionID:  in.SubregionID,
		LocalityID:   in.LocalityID,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
		Website:      in.Website,
	}
	if err := (&mysql.OrganizationRepository{DB: s.db}).Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrganizationService) Update(ctx context.Context, actor *model.User, id uint64, in OrganizationUpdate) (*model.Organization, error) {
	if err := s.requireWriter(actor); err != nil {
		return nil, err
	}
	repo := &mysql.OrganizationRepository{DB: s.db}
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "organization")
	}
	fields := map[string]any{}
	if in.Name != nil {
		name, err := checkOrgName(*in.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if in.Level != nil {
		if !validOrgLevel(*in.Level) {
			return nil, pkg.Validation("invalid level %q", *in.Level)
		}
		fields["level"] = *in.Level
	}
	if in.ParentID != nil && *in.ParentID == current.ID {
		return nil, pkg.Validation("an organization cannot be its own parent")
	}
	if err := checkOrgRefs(ctx, s.db, map[string]*uint64{
		"parent": in.ParentID, "community": in.CommunityID, "region": in.RegionID,
		"subregion": in.SubregionID, "locality": in.LocalityID,
	}); err != nil {
		return nil, err
	}
	for col, v := range map[string]*uint64{
		"parent_id": in.ParentID, "community_id": in.CommunityID, "region_id": in.RegionID,
		"subregion_id": in.SubregionID, "locality_id": in.LocalityID,
	} {
		if v != nil {
			fields[col] = *v
		}
	}
	email, website := current.ContactEmail, current.Website
	if in.ContactEmail != nil {
		email = strings.TrimSpace(*in.ContactEmail)
		fields["contact_email"] = email
	}
	if in.Website != nil {
		website = strings.TrimSpace(*in.Website)
		fields["website"] = website
	}
	if err := checkContact(email, website); err != nil {
		return nil, err
	}
	if in.ContactPhone != nil {
		fields["contact_phone"] = strings.TrimSpace(*in.ContactPhone)
	}
	if err := repo.Updates(ctx, id, fields); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *OrganizationService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	if err := s.requireWriter(actor); err != nil {
		return err
	}
	repo := &mysql.OrganizationRepository{DB: s.db}
	if _, err := repo.FindByID(ctx, id); err != nil {
		return notFound(err, "organization")
	}
	return repo.Delete(ctx, id)
}
