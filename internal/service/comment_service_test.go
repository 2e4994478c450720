package service

import (
	"context"
	"strings"
	"testing"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComments(t *testing.T) {
	db := testdb.New(t)
	g := fixtures.SeedGeography(t, db)
	enf := authz.MustNew()
	polls := NewPollService(db, enf, nil, PollOptions{})
	debates := NewDebateService(db, enf, nil)
	comments := NewCommentService(db, enf)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	admin := fixtures.SeedUser(t, db, "root", model.RoleAdmin)
	ctx := context.Background()

	p := nationalPoll(t, polls, alice, model.PollBinary, "yes", "no")
	d, err := debates.Create(ctx, alice, DebateCreate{Title: "Peatonal en el centro", Scope: ScopeInput{Scope: model.ScopeRegional, RegionID: g.Cordoba.ID}})
	require.NoError(t, err)

	// polls are open to anyone signed in
	c, err := comments.Add(ctx, model.KindPoll, p.Slug, bob, "  interesante  ")
	require.NoError(t, err)
	assert.Equal(t, "interesante", c.Content)
	assert.Equal(t, "bob", c.Author.Username)

	_, err = comments.Add(ctx, model.KindDebate, d.Slug, bob, "hola")
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))
	fixtures.Join(t, db, bob.ID, g.CordobaComm.ID, false)
	_, err = comments.Add(ctx, model.KindDebate, d.Slug, bob, "hola")
	require.NoError(t, err)

	_, err = comments.Add(ctx, model.KindPoll, p.Slug, bob, strings.Repeat("x", 1001))
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
	_, err = comments.Add(ctx, model.KindIssue, "nope", bob, "x")
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))
	_, err = comments.Add(ctx, model.KindPoll, p.Slug, nil, "x")
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	page, err := comments.List(ctx, model.KindPoll, p.Slug, pkg.NewPage(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	v, err := polls.Get(ctx, p.Slug, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.CommentsCount)

	assert.True(t, pkg.IsKind(comments.Delete(ctx, c.ID, alice), pkg.KindForbidden))
	require.NoError(t, comments.Delete(ctx, c.ID, admin))
	assert.True(t, pkg.IsKind(comments.Delete(ctx, c.ID, bob), pkg.KindNotFound))
}
