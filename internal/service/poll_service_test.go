package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	rediscache "geounity/internal/repository/redis"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPollFixture(t *testing.T, opts PollOptions) (*PollService, *gorm.DB, *fixtures.Geo) {
	t.Helper()
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	return NewPollService(db, authz.MustNew(), nil, opts), db, g
}

func nationalPoll(t *testing.T, svc *PollService, actor *model.User, typ model.PollType, options ...string) *PollView {
	t.Helper()
	p, err := svc.Create(context.Background(), actor, PollCreate{
		Title:   "¿Qué opinás del transporte público?",
		Type:    typ,
		Scope:   ScopeInput{Scope: model.ScopeNational, CountryCode: "ar"},
		Tags:    []string{" Transporte ", "transporte", "ciudad"},
		Options: options,
	})
	require.NoError(t, err)
	return p
}

func TestCreateNationalPollLinksOnlyTheCountry(t *testing.T) {
	svc, db, g := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)

	p := nationalPoll(t, svc, alice, model.PollSingleChoice, "Bueno", "Malo", "Regular")

	require.Len(t, p.Communities, 1)
	assert.Equal(t, g.ArgentinaComm.ID, p.Communities[0].ID)
	assert.Equal(t, "AR", p.Communities[0].Cca2)
	assert.Equal(t, "que-opinas-del-transporte-publico", p.Slug)
	assert.True(t, p.IsAnonymous)
	assert.Equal(t, model.PollPublished, p.Status)
	assert.ElementsMatch(t, []string{"transporte", "ciudad"}, p.Tags)
	assert.Len(t, p.Options, 3)

	// the creator still sees themselves on an anonymous poll
	require.NotNil(t, p.Creator)
	assert.Equal(t, "alice", p.Creator.Username)

	ids, err := (&mysql.ContentRepository{DB: db}).CommunityIDs(context.Background(), model.KindPoll, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{g.ArgentinaComm.ID}, ids)

	second := nationalPoll(t, svc, alice, model.PollBinary, "Sí", "No")
	assert.Equal(t, "que-opinas-del-transporte-publico-2", second.Slug)

	var outbox int64
	require.NoError(t, db.Model(&model.EventOutbox{}).Where("event_type = ?", "poll.created").Count(&outbox).Error)
	assert.EqualValues(t, 2, outbox)
}

func TestCreatePollValidation(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PollCreate
		kind pkg.ErrKind
	}{
		{"binary needs two", PollCreate{Title: "x", Type: model.PollBinary, Scope: ScopeInput{Scope: model.ScopeGlobal}, Options: []string{"a", "b", "c"}}, pkg.KindValidation},
		{"one option", PollCreate{Title: "x", Type: model.PollMultipleChoice, Scope: ScopeInput{Scope: model.ScopeGlobal}, Options: []string{"a"}}, pkg.KindValidation},
		{"bad type", PollCreate{Title: "x", Type: "RANKED", Scope: ScopeInput{Scope: model.ScopeGlobal}, Options: []string{"a", "b"}}, pkg.KindValidation},
		{"missing code", PollCreate{Title: "x", Type: model.PollBinary, Scope: ScopeInput{Scope: model.ScopeNational}, Options: []string{"a", "b"}}, pkg.KindValidation},
		{"unknown country", PollCreate{Title: "x", Type: model.PollBinary, Scope: ScopeInput{Scope: model.ScopeNational, CountryCode: "ZZ"}, Options: []string{"a", "b"}}, pkg.KindNotFound},
		{"unknown extra community", PollCreate{Title: "x", Type: model.PollBinary, Scope: ScopeInput{Scope: model.ScopeGlobal}, CommunityIDs: []uint64{9999}, Options: []string{"a", "b"}}, pkg.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, alice, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, pkg.KindOf(err))
		})
	}

	_, err := svc.Create(ctx, nil, PollCreate{Title: "x", Type: model.PollBinary, Scope: ScopeInput{Scope: model.ScopeGlobal}, Options: []string{"a", "b"}})
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	var polls int64
	require.NoError(t, db.Model(&model.Poll{}).Count(&polls).Error)
	assert.Zero(t, polls)
}

func TestInternationalPollLinksEveryCountry(t *testing.T) {
	svc, db, g := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)

	p, err := svc.Create(context.Background(), alice, PollCreate{
		Title:        "Hispanic summit",
		Type:         model.PollBinary,
		Scope:        ScopeInput{Scope: model.ScopeInternational, CountryCodes: []string{"ar", "ES", "AR"}},
		CommunityIDs: []uint64{g.CityBellComm.ID},
		Options:      []string{"yes", "no"},
	})
	require.NoError(t, err)

	got := map[uint64]string{}
	for _, c := range p.Communities {
		got[c.ID] = c.Cca2
	}
	assert.Equal(t, map[uint64]string{g.ArgentinaComm.ID: "AR", g.SpainComm.ID: "ES", g.CityBellComm.ID: ""}, got)
}

func TestVoteValidatesAgainstPollType(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollSingleChoice, "Bueno", "Malo", "Regular")
	key := strconv.FormatUint(p.ID, 10)

	_, err := svc.Vote(ctx, key, bob, []uint64{p.Options[0].ID, p.Options[1].ID})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation), "got %v", err)

	_, err = svc.Vote(ctx, key, bob, []uint64{99999})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	_, err = svc.Vote(ctx, key, nil, []uint64{p.Options[0].ID})
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	v, err := svc.Vote(ctx, key, bob, []uint64{p.Options[0].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.TotalVotes)
	assert.Equal(t, []uint64{p.Options[0].ID}, v.UserVotedOptions)
	assert.Equal(t, 100.0, v.Options[0].Percentage)
}

func TestVoteReplacesPreviousSet(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollMultipleChoice, "a", "b", "c")
	key := p.Slug
	a, b, c := p.Options[0].ID, p.Options[1].ID, p.Options[2].ID

	_, err := svc.Vote(ctx, key, bob, []uint64{a, b})
	require.NoError(t, err)
	_, err = svc.Vote(ctx, key, alice, []uint64{a})
	require.NoError(t, err)

	// same set again leaves the counters alone
	v, err := svc.Vote(ctx, key, bob, []uint64{b, a})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 0}, optionVotes(v))

	v, err = svc.Vote(ctx, key, bob, []uint64{c})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 1}, optionVotes(v))
	assert.EqualValues(t, 2, v.TotalVotes)
	assert.Equal(t, 50.0, v.Options[0].Percentage)

	_, err = svc.Vote(ctx, key, bob, []uint64{a, a})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	v, err = svc.Unvote(ctx, key, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 0}, optionVotes(v))
	assert.Empty(t, v.UserVotedOptions)

	_, err = svc.Unvote(ctx, key, bob)
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))
}

func optionVotes(v *PollView) []int64 {
	out := make([]int64, 0, len(v.Options))
	for _, o := range v.Options {
		out = append(out, o.Votes)
	}
	return out
}

func TestVoteRejectsClosedAndExpiredPolls(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")
	closed := model.PollClosed
	_, err := svc.Update(ctx, p.Slug, alice, PollUpdate{Status: &closed})
	require.NoError(t, err)
	_, err = svc.Vote(ctx, p.Slug, alice, []uint64{p.Options[0].ID})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	q := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")
	ended := time.Now().Add(-time.Hour)
	_, err = svc.Update(ctx, q.Slug, alice, PollUpdate{EndsAt: &ended})
	require.NoError(t, err)
	_, err = svc.Vote(ctx, q.Slug, alice, []uint64{q.Options[0].ID})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
}

func TestPollVoteMembershipSwitch(t *testing.T) {
	svc, db, g := newPollFixture(t, PollOptions{RequireMembership: true})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")
	_, err := svc.Vote(ctx, p.Slug, bob, []uint64{p.Options[0].ID})
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	fixtures.Join(t, db, bob.ID, g.ArgentinaComm.ID, false)
	_, err = svc.Vote(ctx, p.Slug, bob, []uint64{p.Options[0].ID})
	assert.NoError(t, err)
}

func TestAnonymousCreatorHidden(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")

	v, err := svc.Get(ctx, p.Slug, bob)
	require.NoError(t, err)
	assert.Nil(t, v.Creator)
	assert.Zero(t, v.CreatorID)
	assert.EqualValues(t, 1, v.ViewsCount)

	v, err = svc.Get(ctx, p.Slug, nil)
	require.NoError(t, err)
	assert.Nil(t, v.Creator)

	v, err = svc.Get(ctx, p.Slug, admin)
	require.NoError(t, err)
	require.NotNil(t, v.Creator)
	assert.Equal(t, alice.ID, v.Creator.ID)
	assert.EqualValues(t, 3, v.ViewsCount)
}

func TestPollUpdateAndDeletePermissions(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")

	title := "Nuevo título"
	_, err := svc.Update(ctx, p.Slug, bob, PollUpdate{Title: &title})
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	tags := []string{"movilidad"}
	v, err := svc.Update(ctx, p.Slug, admin, PollUpdate{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, title, v.Title)
	assert.Equal(t, []string{"movilidad"}, v.Tags)

	assert.True(t, pkg.IsKind(svc.Delete(ctx, p.Slug, bob), pkg.KindForbidden))
	require.NoError(t, svc.Delete(ctx, p.Slug, alice))

	_, err = svc.Get(ctx, p.Slug, alice)
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))

	var options int64
	require.NoError(t, db.Model(&model.PollOption{}).Count(&options).Error)
	assert.Zero(t, options)
}

func TestListPollsByGeography(t *testing.T) {
	svc, db, g := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	ctx := context.Background()

	nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")
	_, err := svc.Create(ctx, alice, PollCreate{
		Title:   "Bache en la calle 7",
		Type:    model.PollBinary,
		Scope:   ScopeInput{Scope: model.ScopeRegional, RegionID: g.BuenosAires.ID},
		Tags:    []string{"calles"},
		Options: []string{"yes", "no"},
	})
	require.NoError(t, err)

	page := pkg.NewPage(1, 10)
	res, err := svc.List(ctx, ContentQuery{Geo: GeoFilter{CountryCode: "AR"}, Page: page}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	res, err = svc.List(ctx, ContentQuery{Geo: GeoFilter{RegionID: g.BuenosAires.ID}, Page: page}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "Bache en la calle 7", res.Items[0].Title)

	res, err = svc.List(ctx, ContentQuery{Tag: "calles", Page: page}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	res, err = svc.List(ctx, ContentQuery{Search: "TRANSPORTE", Page: page}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	res, err = svc.List(ctx, ContentQuery{Geo: GeoFilter{CountryCode: "ZZ"}, Page: page}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Items)

	res, err = svc.List(ctx, ContentQuery{Page: page}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, 1, res.Pages)
}

func TestReactToggleAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := rediscache.NewReactionCache(rdb)

	svc, db, _ := newPollFixture(t, PollOptions{Cache: cache})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()

	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")

	res, err := svc.React(ctx, p.Slug, bob, model.ReactionLike)
	require.NoError(t, err)
	require.NotNil(t, res.Reaction)
	assert.Equal(t, model.ReactionLike, *res.Reaction)
	assert.Equal(t, Reactions{Likes: 1}, res.Reactions)

	res, err = svc.React(ctx, p.Slug, bob, model.ReactionDislike)
	require.NoError(t, err)
	assert.Equal(t, Reactions{Dislikes: 1}, res.Reactions)

	likes, dislikes, ok, err := cache.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, likes)
	assert.EqualValues(t, 1, dislikes)

	res, err = svc.React(ctx, p.Slug, bob, model.ReactionDislike)
	require.NoError(t, err)
	assert.Nil(t, res.Reaction)
	assert.Equal(t, Reactions{}, res.Reactions)

	_, err = svc.React(ctx, p.Slug, bob, "LOVE")
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	v, err := svc.Get(ctx, p.Slug, bob)
	require.NoError(t, err)
	assert.Nil(t, v.UserReaction)
}

func TestConcurrentReactionsBySameUser(t *testing.T) {
	svc, db, _ := newPollFixture(t, PollOptions{})
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	ctx := context.Background()
	p := nationalPoll(t, svc, alice, model.PollBinary, "yes", "no")

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.React(ctx, p.Slug, bob, model.ReactionLike)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// an even number of toggles leaves no reaction behind
	likes, dislikes, err := (&mysql.PollRepository{DB: db}).ReactionCounts(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, likes)
	assert.Zero(t, dislikes)
}
