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

func newProjectFixture(t *testing.T) (*ProjectService, *gorm.DB, *fixtures.Geo) {
	t.Helper()
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	return NewProjectService(db, authz.MustNew(), nil), db, g
}

func plazaProject(t *testing.T, svc *ProjectService, g *fixtures.Geo, actor *model.User, goal *float64) *ProjectView {
	t.Helper()
	qty := 20.0
	p, err := svc.Create(context.Background(), actor, ProjectCreate{
		Title:      "Huerta comunitaria",
		Scope:      ScopeInput{Scope: model.ScopeRegional, RegionID: g.BuenosAires.ID},
		GoalAmount: goal,
		Steps: []StepCreate{
			{Title: "Limpiar el terreno", Resources: []ResourceCreate{{Type: model.ResourceLabor, Description: "voluntarios", Quantity: &qty, Unit: "horas"}}},
			{Title: "Plantar", Status: model.StepCompleted},
		},
	})
	require.NoError(t, err)
	return p
}

func TestCreateProjectWithSteps(t *testing.T) {
	svc, db, g := newProjectFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)

	p := plazaProject(t, svc, g, alice, nil)
	assert.Equal(t, model.ProjectOpen, p.Status)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, 1, p.Steps[0].Order)
	assert.Equal(t, model.StepPending, p.Steps[0].Status)
	require.Len(t, p.Steps[0].Resources, 1)
	assert.Equal(t, "horas", p.Steps[0].Resources[0].Unit)
	assert.Empty(t, p.Steps[1].Resources)
	assert.Equal(t, 50.0, p.Progress)

	_, err := svc.Create(context.Background(), alice, ProjectCreate{
		Title: "Bad",
		Scope: ScopeInput{Scope: model.ScopeGlobal},
		Steps: []StepCreate{{Title: "x", Resources: []ResourceCreate{{Type: "TOOLS"}}}},
	})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestDonationsAddToCurrentAmount(t *testing.T) {
	svc, db, g := newProjectFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	goal := 1000.0
	p := plazaProject(t, svc, g, alice, &goal)

	_, err := svc.Donate(ctx, p.Slug, bob, 0, "")
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
	_, err = svc.Donate(ctx, p.Slug, bob, -5, "")
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	_, err = svc.Donate(ctx, p.Slug, bob, 250, "¡Vamos!")
	require.NoError(t, err)
	v, err := svc.Donate(ctx, p.Slug, alice, 125.5, "")
	require.NoError(t, err)
	assert.InDelta(t, 375.5, v.CurrentAmount, 0.001)
	assert.EqualValues(t, 2, v.DonationsCount)
	assert.InDelta(t, 37.55, v.Progress, 0.001)

	_, err = svc.Donate(ctx, p.Slug, bob, 5000, "")
	require.NoError(t, err)
	v, err = svc.Get(ctx, p.Slug, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Progress)

	cancelled := model.ProjectCancelled
	_, err = svc.Update(ctx, p.Slug, alice, ProjectUpdate{Status: &cancelled})
	require.NoError(t, err)
	_, err = svc.Donate(ctx, p.Slug, bob, 1, "")
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestCommitmentsRequireMembership(t *testing.T) {
	svc, db, g := newProjectFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	p := plazaProject(t, svc, g, alice, nil)
	in := CommitmentInput{Type: model.CommitmentTime, Description: "sábados a la mañana", StepID: &p.Steps[0].ID}

	_, err := svc.Commit(ctx, p.Slug, bob, in)
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	fixtures.Join(t, db, bob.ID, g.BuenosAiresComm.ID, true)
	c, err := svc.Commit(ctx, p.Slug, bob, in)
	require.NoError(t, err)
	assert.False(t, c.Fulfilled)

	foreign := uint64(9999)
	_, err = svc.Commit(ctx, p.Slug, bob, CommitmentInput{Type: model.CommitmentMaterial, StepID: &foreign})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	_, err = svc.Commit(ctx, p.Slug, bob, CommitmentInput{Type: "MONEY"})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	v, err := svc.Get(ctx, p.Slug, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.CommitmentsCount)
}

func TestDeleteProjectRemovesChildren(t *testing.T) {
	svc, db, g := newProjectFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	p := plazaProject(t, svc, g, alice, nil)
	require.NoError(t, svc.Delete(ctx, p.Slug, admin))

	_, err := svc.Get(ctx, p.Slug, nil)
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))
	for _, m := range []any{&model.ProjectStep{}, &model.ProjectResource{}, &model.ContentCommunity{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n)
	}
}
