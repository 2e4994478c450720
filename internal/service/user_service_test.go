package service

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"geounity/internal/model"
	"geounity/internal/pkg"
	rediscache "geounity/internal/repository/redis"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUserFixture(t *testing.T) (*UserService, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db := testdb.New(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	jwt := pkg.NewJWTManager(pkg.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	return NewUserService(db, jwt, rediscache.NewTokenStore(rdb, time.Hour)), db, mr
}

func TestValidUsername(t *testing.T) {
	cases := map[string]bool{
		"ana":         true,
		"Ana_2024":    true,
		"ab":          false,
		"1ana":        false,
		"ana-maria":   false,
		"Admin":       false,
		"support":     false,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ValidUsername(name))
		})
	}
	assert.False(t, ValidUsername("a"+strings.Repeat("b", 30)))
}

func TestRegister(t *testing.T) {
	svc, _, _ := newUserFixture(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "lucia", " Lucia@Example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "lucia@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "s3cret-pass", u.Password)

	_, err = svc.Register(ctx, "lucia", "other@example.com", "s3cret-pass")
	assert.True(t, pkg.IsKind(err, pkg.KindConflict))
	_, err = svc.Register(ctx, "lucia2", "lucia@example.com", "s3cret-pass")
	assert.True(t, pkg.IsKind(err, pkg.KindConflict))

	for _, tc := range []struct{ name, username, email, password string }{
		{"reserved", "moderator", "m@example.com", "s3cret-pass"},
		{"bad email", "marcos", "not-an-email", "s3cret-pass"},
		{"short password", "marcos", "m@example.com", "short"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			assert.True(t, pkg.IsKind(err, pkg.KindValidation))
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, db, mr := newUserFixture(t)
	ctx := context.Background()
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)

	_, err := svc.Login(ctx, "alice", "wrong-password")
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Login(ctx, "nobody", fixtures.Password)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	res, err := svc.Login(ctx, "alice", fixtures.Password)
	require.NoError(t, err)
	require.NotNil(t, res.User.LastLogin)
	assert.True(t, mr.Exists("login:user:token:"+strconv.FormatUint(alice.ID, 10)))

	u, err := svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	// a refresh rotates the session; the old pair stops working
	pair, err := svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, res.AccessToken, pair.AccessToken)
	require.NotEqual(t, res.RefreshToken, pair.RefreshToken)
	_, err = svc.Authenticate(ctx, res.AccessToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))

	require.NoError(t, svc.Logout(ctx, alice))
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	svc, db, _ := newUserFixture(t)
	ctx := context.Background()
	fixtures.SeedUser(t, db, "alice", model.RoleUser)

	first, err := svc.Login(ctx, "alice", fixtures.Password)
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", fixtures.Password)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestChangePasswordEndsSession(t *testing.T) {
	svc, db, _ := newUserFixture(t)
	ctx := context.Background()
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)

	res, err := svc.Login(ctx, "alice", fixtures.Password)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, alice, "nope-nope", "brand-new-pass")
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
	require.NoError(t, svc.ChangePassword(ctx, alice, fixtures.Password, "brand-new-pass"))

	_, err = svc.Authenticate(ctx, res.AccessToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
	_, err = svc.Login(ctx, "alice", "brand-new-pass")
	require.NoError(t, err)
}

func TestDisabledUserCannotLogin(t *testing.T) {
	svc, db, _ := newUserFixture(t)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	require.NoError(t, db.Model(alice).Update("is_active", false).Error)

	_, err := svc.Login(context.Background(), "alice", fixtures.Password)
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))
}

func TestProfileUpdates(t *testing.T) {
	svc, db, _ := newUserFixture(t)
	ctx := context.Background()
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	fixtures.SeedUser(t, db, "bob", model.RoleUser)

	name, bio := "Alicia", "Vecina de City Bell"
	u, err := svc.UpdateMe(ctx, alice, UserUpdate{Name: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.Name)
	assert.Equal(t, "Vecina de City Bell", u.Bio)

	site := "not a url"
	_, err = svc.UpdateMe(ctx, alice, UserUpdate{Website: &site})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	_, err = svc.UpdateUsername(ctx, alice, "bob")
	assert.True(t, pkg.IsKind(err, pkg.KindConflict))
	u, err = svc.UpdateUsername(ctx, alice, "alicia_cb")
	require.NoError(t, err)
	assert.Equal(t, "alicia_cb", u.Username)

	p, err := svc.GetByUsername(ctx, "alicia_cb", nil)
	require.NoError(t, err)
	assert.Nil(t, p.IsFollowing)
	_, err = svc.GetByUsername(ctx, "alice", nil)
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))

	_, err = svc.Me(ctx, nil)
	assert.True(t, pkg.IsKind(err, pkg.KindUnauthorized))
}
