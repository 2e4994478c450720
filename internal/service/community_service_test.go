package service

import (
	"context"
	"testing"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCommunityNormalizesNames(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	for _, region := range []string{"buenos-aires", "Buenos Aires", "BUENOS_AIRES", "buenos  aires", "Buenós Aires"} {
		t.Run(region, func(t *testing.T) {
			c, err := svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelRegional, Country: "argentina", Region: region})
			require.NoError(t, err)
			assert.Equal(t, g.BuenosAiresComm.ID, c.ID)
		})
	}

	c, err := svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelRegional, Country: "AR", Region: "cordoba"})
	require.NoError(t, err)
	assert.Equal(t, g.CordobaComm.ID, c.ID)

	c, err = svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelNational, Country: "espana"})
	require.NoError(t, err)
	assert.Equal(t, g.SpainComm.ID, c.ID)

	c, err = svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelNational, Country: "arg"})
	require.NoError(t, err)
	assert.Equal(t, g.ArgentinaComm.ID, c.ID)

	c, err = svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelSubregional, Country: "argentina", Region: "buenos aires", Subregion: "la-plata"})
	require.NoError(t, err)
	assert.Equal(t, g.LaPlataComm.ID, c.ID)

	c, err = svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelLocal, Country: "argentina", Local: "city_bell"})
	require.NoError(t, err)
	assert.Equal(t, g.CityBellComm.ID, c.ID)

	c, err = svc.SearchCommunity(ctx, CommunitySearch{Level: model.LevelGlobal})
	require.NoError(t, err)
	assert.Equal(t, g.Global.ID, c.ID)
}

func TestSearchCommunityContainsFallback(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	svc := NewCommunityService(db, authz.MustNew())

	c, err := svc.SearchCommunity(context.Background(), CommunitySearch{Level: model.LevelRegional, Country: "argentina", Region: "buenos"})
	require.NoError(t, err)
	assert.Equal(t, g.BuenosAiresComm.ID, c.ID)
}

func TestSearchCommunityErrors(t *testing.T) {
	db := testdb.New(t)
	fixtures.SeedGeography(t, db)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	tests := []struct {
		name string
		q    CommunitySearch
		kind pkg.ErrKind
	}{
		{"national without country", CommunitySearch{Level: model.LevelNational}, pkg.KindValidation},
		{"regional without region", CommunitySearch{Level: model.LevelRegional, Country: "argentina"}, pkg.KindValidation},
		{"subregional without subregion", CommunitySearch{Level: model.LevelSubregional, Country: "ar", Region: "buenos aires"}, pkg.KindValidation},
		{"local without local", CommunitySearch{Level: model.LevelLocal, Country: "ar"}, pkg.KindValidation},
		{"custom level", CommunitySearch{Level: model.LevelCustom}, pkg.KindValidation},
		{"unknown country", CommunitySearch{Level: model.LevelNational, Country: "atlantis"}, pkg.KindNotFound},
		{"unknown region", CommunitySearch{Level: model.LevelRegional, Country: "argentina", Region: "andalucia"}, pkg.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SearchCommunity(ctx, tt.q)
			require.Error(t, err)
			assert.Equal(t, tt.kind, pkg.KindOf(err))
		})
	}
}

func TestRegionalCommunityHasExactlyOneRegion(t *testing.T) {
	db := testdb.New(t)
	fixtures.SeedGeography(t, db)
	ctx := context.Background()

	var regional []model.Community
	require.NoError(t, db.Where("level = ?", model.LevelRegional).Find(&regional).Error)
	require.NotEmpty(t, regional)
	geo := &mysql.GeographyRepository{DB: db}
	for _, c := range regional {
		regions, err := geo.FindRegionByCommunityID(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, regions, 1)
		assert.Equal(t, c.ID, regions[0].CommunityID)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	u := fixtures.SeedUser(t, db, "ana", model.RoleUser)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	created, err := svc.Join(ctx, g.ArgentinaComm.ID, u)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = svc.Join(ctx, g.ArgentinaComm.ID, u)
	require.NoError(t, err)
	assert.False(t, created)

	var n int64
	require.NoError(t, db.Model(&model.UserCommunityLink{}).Where("user_id = ? AND community_id = ?", u.ID, g.ArgentinaComm.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	link, err := (&mysql.MembershipRepository{DB: db}).Get(ctx, g.ArgentinaComm.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, link.IsPublic)

	var events int64
	require.NoError(t, db.Model(&model.EventOutbox{}).Where("event_type = ?", "community.join").Count(&events).Error)
	assert.Equal(t, int64(1), events)

	_, err = svc.Join(ctx, 9999, u)
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))
	_, err = svc.Join(ctx, g.ArgentinaComm.ID, nil)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
}

func TestLeaveAndVisibilityRequireMembership(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	u := fixtures.SeedUser(t, db, "ana", model.RoleUser)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	assert.True(t, pkg.IsKind(svc.Leave(ctx, g.SpainComm.ID, u), pkg.KindNotFound))
	assert.True(t, pkg.IsKind(svc.UpdateVisibility(ctx, g.SpainComm.ID, u, true), pkg.KindNotFound))

	_, err := svc.Join(ctx, g.SpainComm.ID, u)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateVisibility(ctx, g.SpainComm.ID, u, true))
	require.NoError(t, svc.Leave(ctx, g.SpainComm.ID, u))
	assert.True(t, pkg.IsKind(svc.Leave(ctx, g.SpainComm.ID, u), pkg.KindNotFound))
}

func TestMembersHidesPrivateMembersFromOthers(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	pub := fixtures.SeedUser(t, db, "pub", model.RoleUser)
	priv := fixtures.SeedUser(t, db, "priv", model.RoleUser)
	other := fixtures.SeedUser(t, db, "other", model.RoleUser)
	fixtures.Join(t, db, pub.ID, g.ArgentinaComm.ID, true)
	fixtures.Join(t, db, priv.ID, g.ArgentinaComm.ID, false)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	ids := func(p *MembersPage) []uint64 {
		var out []uint64
		for _, m := range p.Items {
			out = append(out, m.ID)
		}
		return out
	}

	page, err := svc.Members(ctx, g.ArgentinaComm.ID, other, pkg.NewPage(1, 20))
	require.NoError(t, err)
	assert.Equal(t, []uint64{pub.ID}, ids(page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, int64(1), page.TotalPublic)
	assert.Equal(t, int64(1), page.TotalAnonymous)
	assert.Nil(t, page.CurrentUser)
	assert.Nil(t, page.IsPublicCurrentUser)

	page, err = svc.Members(ctx, g.ArgentinaComm.ID, nil, pkg.NewPage(1, 20))
	require.NoError(t, err)
	assert.Equal(t, []uint64{pub.ID}, ids(page))

	page, err = svc.Members(ctx, g.ArgentinaComm.ID, priv, pkg.NewPage(1, 20))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{pub.ID, priv.ID}, ids(page))
	require.NotNil(t, page.IsPublicCurrentUser)
	assert.False(t, *page.IsPublicCurrentUser)
	require.NotNil(t, page.CurrentUser)
	assert.Equal(t, priv.ID, page.CurrentUser.ID)

	page, err = svc.Members(ctx, g.ArgentinaComm.ID, other, pkg.NewPage(1, 1))
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, 1, page.Pages)
}

func TestAncestorsWalksToRoot(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	svc := NewCommunityService(db, authz.MustNew())

	chain, err := svc.Ancestors(context.Background(), g.CityBellComm.ID)
	require.NoError(t, err)
	var names []string
	for _, c := range chain {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"La Plata", "Buenos Aires", "Argentina", "America", "Global"}, names)

	children, err := svc.Children(context.Background(), g.ArgentinaComm.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestListCommunities(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	res, err := svc.List(ctx, CommunityListQuery{Level: model.LevelNational, Page: pkg.NewPage(1, 20)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)

	res, err = svc.List(ctx, CommunityListQuery{ParentID: &g.ArgentinaComm.ID, Page: pkg.NewPage(1, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 2, res.Pages)

	_, err = svc.List(ctx, CommunityListQuery{Level: "PLANET", Page: pkg.NewPage(1, 20)})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestCommunityRequestReview(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	u := fixtures.SeedUser(t, db, "ana", model.RoleUser)
	mod := fixtures.SeedUser(t, db, "mod", model.RoleModerator)
	svc := NewCommunityService(db, authz.MustNew())
	ctx := context.Background()

	_, err := svc.RequestCommunity(ctx, u, CommunityRequestInput{Name: "bad-name!"})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	req, err := svc.RequestCommunity(ctx, u, CommunityRequestInput{Name: "Chess Club", Description: "weekly games"})
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)

	_, err = svc.ListRequests(ctx, u, "", pkg.NewPage(1, 20))
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))
	_, err = svc.ReviewRequest(ctx, u, req.ID, true, "")
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	list, err := svc.ListRequests(ctx, mod, model.RequestPending, pkg.NewPage(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	reviewed, err := svc.ReviewRequest(ctx, mod, req.ID, true, "welcome")
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, reviewed.Status)
	require.NotNil(t, reviewed.CommunityID)

	c, err := svc.Get(ctx, *reviewed.CommunityID)
	require.NoError(t, err)
	assert.Equal(t, model.LevelCustom, c.Level)
	require.NotNil(t, c.ParentID)
	assert.Equal(t, g.Global.ID, *c.ParentID)

	member, err := (&mysql.MembershipRepository{DB: db}).IsMember(ctx, c.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, member)

	_, err = svc.ReviewRequest(ctx, mod, req.ID, false, "")
	assert.True(t, pkg.IsKind(err, pkg.KindConflict))
}
