package service

import (
	"context"
	"testing"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newIssueFixture(t *testing.T) (*IssueService, *gorm.DB, *fixtures.Geo) {
	t.Helper()
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	return NewIssueService(db, authz.MustNew(), nil), db, g
}

func localIssue(t *testing.T, svc *IssueService, g *fixtures.Geo, actor *model.User) *IssueView {
	t.Helper()
	lat, lng := -34.87, -58.04
	is, err := svc.Create(context.Background(), actor, IssueCreate{
		Title:               "Luminaria rota en calle 13",
		Scope:               ScopeInput{Scope: model.ScopeLocal, LocalityID: g.CityBell.ID},
		LocationDescription: "13 y 473",
		Latitude:            &lat,
		Longitude:           &lng,
	})
	require.NoError(t, err)
	return is
}

func TestCreateIssue(t *testing.T) {
	svc, db, g := newIssueFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, admin, "Alumbrado", "")
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, admin, "alumbrado", "")
	assert.True(t, pkg.IsKind(err, pkg.KindConflict))
	_, err = svc.CreateCategory(ctx, alice, "Baches", "")
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	is, err := svc.Create(ctx, alice, IssueCreate{
		Title:      "Poste caído",
		Scope:      ScopeInput{Scope: model.ScopeSubregional, SubregionID: g.LaPlata.ID},
		CategoryID: &cat.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.IssueOpen, is.Status)
	require.NotNil(t, is.Category)
	assert.Equal(t, "Alumbrado", is.Category.Name)
	require.Len(t, is.Communities, 1)
	assert.Equal(t, g.LaPlataComm.ID, is.Communities[0].ID)
	assert.Empty(t, is.Communities[0].Cca2)
	assert.NotNil(t, is.Updates)

	missing := uint64(777)
	_, err = svc.Create(ctx, alice, IssueCreate{Title: "x", Scope: ScopeInput{Scope: model.ScopeGlobal}, CategoryID: &missing})
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))

	bad := 120.0
	_, err = svc.Create(ctx, alice, IssueCreate{Title: "x", Scope: ScopeInput{Scope: model.ScopeGlobal}, Latitude: &bad})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestToggleSupportRequiresMembership(t *testing.T) {
	svc, db, g := newIssueFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	is := localIssue(t, svc, g, alice)

	_, err := svc.ToggleSupport(ctx, is.Slug, bob)
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))
	_, err = svc.ToggleSupport(ctx, is.Slug, nil)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	fixtures.Join(t, db, bob.ID, g.CityBellComm.ID, false)
	res, err := svc.ToggleSupport(ctx, is.Slug, bob)
	require.NoError(t, err)
	assert.Equal(t, SupportResult{Supported: true, SupportCount: 1}, *res)

	v, err := svc.Get(ctx, is.Slug, bob)
	require.NoError(t, err)
	assert.True(t, v.UserSupported)

	res, err = svc.ToggleSupport(ctx, is.Slug, bob)
	require.NoError(t, err)
	assert.Equal(t, SupportResult{Supported: false, SupportCount: 0}, *res)
}

func TestIssueStatusChangesAreRecorded(t *testing.T) {
	svc, db, g := newIssueFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	is := localIssue(t, svc, g, alice)

	inProgress := model.IssueInProgress
	v, err := svc.Update(ctx, is.Slug, alice, IssueUpdate{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, model.IssueInProgress, v.Status)
	require.Len(t, v.Updates, 1)
	assert.Equal(t, "Status changed from OPEN to IN_PROGRESS", v.Updates[0].Content)

	// same status again is not a change
	v, err = svc.Update(ctx, is.Slug, alice, IssueUpdate{Status: &inProgress})
	require.NoError(t, err)
	assert.Len(t, v.Updates, 1)

	resolved := model.IssueResolved
	_, err = svc.AddUpdate(ctx, is.Slug, bob, IssueProgress{Content: "listo", NewStatus: &resolved})
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	org := model.Organization{Name: "Municipalidad de La Plata", Level: model.OrgMunicipal}
	require.NoError(t, db.Create(&org).Error)
	u, err := svc.AddUpdate(ctx, is.Slug, alice, IssueProgress{Content: "Reparada por el municipio", NewStatus: &resolved, OrganizationID: &org.ID})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	v, err = svc.Get(ctx, is.Slug, nil)
	require.NoError(t, err)
	assert.Equal(t, model.IssueResolved, v.Status)
	assert.Len(t, v.Updates, 2)

	bogus := model.IssueStatus("DONE")
	_, err = svc.AddUpdate(ctx, is.Slug, alice, IssueProgress{Content: "x", NewStatus: &bogus})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestListIssuesByCategory(t *testing.T) {
	svc, db, g := newIssueFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, admin, "Alumbrado", "")
	require.NoError(t, err)
	localIssue(t, svc, g, alice)
	_, err = svc.Create(ctx, alice, IssueCreate{Title: "Farola", Scope: ScopeInput{Scope: model.ScopeLocal, LocalityID: g.CityBell.ID}, CategoryID: &cat.ID})
	require.NoError(t, err)

	res, err := svc.List(ctx, IssueQuery{ContentQuery: ContentQuery{Page: pkg.NewPage(1, 10)}, CategoryID: cat.ID}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "Farola", res.Items[0].Title)

	res, err = svc.List(ctx, IssueQuery{ContentQuery: ContentQuery{Geo: GeoFilter{LocalityID: g.CityBell.ID}, Page: pkg.NewPage(1, 10)}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	require.NoError(t, svc.Delete(ctx, res.Items[0].Slug, admin))
	res, err = svc.List(ctx, IssueQuery{ContentQuery: ContentQuery{Page: pkg.NewPage(1, 10)}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
}
