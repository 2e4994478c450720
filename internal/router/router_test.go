package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	rediscache "geounity/internal/repository/redis"
	"geounity/internal/search"
	"geounity/internal/service"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiClient struct {
	t     *testing.T
	h     http.Handler
	token string
}

func (a *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func newTestAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.New(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	enf := authz.MustNew()
	jwt := pkg.NewJWTManager(pkg.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	finder := search.NewService(nil, &search.Database{DB: db})
	users := service.NewUserService(db, jwt, rediscache.NewTokenStore(rdb, time.Hour))

	r := New(Deps{
		Auth:          users,
		Enforcer:      enf,
		Users:         users,
		Follows:       service.NewFollowService(db),
		Geography:     service.NewGeographyService(db),
		Communities:   service.NewCommunityService(db, enf),
		Polls:         service.NewPollService(db, enf, finder, service.PollOptions{Cache: rediscache.NewReactionCache(rdb)}),
		Debates:       service.NewDebateService(db, enf, finder),
		Issues:        service.NewIssueService(db, enf, finder),
		Projects:      service.NewProjectService(db, enf, finder),
		Comments:      service.NewCommentService(db, enf),
		Tags:          service.NewTagService(db),
		Reports:       service.NewReportService(db, enf, nil),
		Organizations: service.NewOrganizationService(db, enf),
		Media:         service.NewMediaService(nil),
		Search:        finder,
	})
	return r, db
}

func TestAccountAndPollFlow(t *testing.T) {
	r, db := newTestAPI(t)
	fixtures.SeedGeography(t, db)
	api := &apiClient{t: t, h: r}

	w := api.do(http.MethodPost, "/api/v1/users/register", gin.H{"username": "1bad", "email": "x@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/v1/users/register", gin.H{"username": "alice", "email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password123")

	w = api.do(http.MethodPost, "/api/v1/users/register", gin.H{"username": "alice", "email": "other@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/v1/users/me", nil).Code)

	w = api.do(http.MethodPost, "/api/v1/users/login", gin.H{"login": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = api.do(http.MethodPost, "/api/v1/users/login", gin.H{"login": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}](t, w)
	require.NotEmpty(t, login.AccessToken)
	api.token = login.AccessToken

	me := decode[model.User](t, api.do(http.MethodGet, "/api/v1/users/me", nil))
	assert.Equal(t, "alice", me.Username)

	w = api.do(http.MethodPost, "/api/v1/polls", gin.H{
		"title":        "¿Más ciclovías en la ciudad?",
		"type":         model.PollSingleChoice,
		"scope":        model.ScopeNational,
		"country_code": "AR",
		"options":      []string{"Sí", "No"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	poll := decode[service.PollView](t, w)
	require.Len(t, poll.Options, 2)

	w = api.do(http.MethodPost, "/api/v1/polls", gin.H{"title": "x", "type": model.PollBinary, "scope": model.ScopeGlobal, "options": []string{"solo"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/v1/polls/"+poll.Slug+"/vote", gin.H{"option_ids": []uint64{poll.Options[0].ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[service.PollView](t, w).TotalVotes)

	anon := &apiClient{t: t, h: r}
	far := decode[pkg.Paginated[service.PollView]](t, anon.do(http.MethodGet, "/api/v1/polls?page=9223372036854775807&size=100", nil))
	assert.Equal(t, pkg.MaxPage, far.Page)
	assert.Empty(t, far.Items)
	assert.EqualValues(t, 1, far.Total)

	got := decode[service.PollView](t, anon.do(http.MethodGet, "/api/v1/polls/"+poll.Slug, nil))
	assert.Equal(t, poll.ID, got.ID)
	assert.Empty(t, got.UserVotedOptions)
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodDelete, "/api/v1/polls/"+poll.Slug, nil).Code)

	res := decode[search.Response](t, anon.do(http.MethodGet, "/api/v1/search?q=ciclov", nil))
	assert.Equal(t, "database", res.Source)
	assert.EqualValues(t, 1, res.Total)
	assert.Equal(t, http.StatusBadRequest, anon.do(http.MethodGet, "/api/v1/search?q=x&kind=post", nil).Code)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/v1/reports", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/v1/communities/requests", nil).Code)

	assert.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/v1/users/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/v1/users/me", nil).Code)
	w = anon.do(http.MethodPost, "/api/v1/users/refresh", gin.H{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestGeographyAndCommunities(t *testing.T) {
	r, db := newTestAPI(t)
	g := fixtures.SeedGeography(t, db)
	fixtures.SeedUser(t, db, "bob", model.RoleUser)
	api := &apiClient{t: t, h: r}

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/continents", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/countries/Argentina", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/countries/Atlantis", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/communities/abc", nil).Code)

	w := api.do(http.MethodPost, "/api/v1/users/login", gin.H{"login": "bob", "password": fixtures.Password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	api.token = decode[struct {
		AccessToken string `json:"access_token"`
	}](t, w).AccessToken

	path := "/api/v1/communities/" + strconv.FormatUint(g.LaPlataComm.ID, 10) + "/join"
	assert.Equal(t, http.StatusCreated, api.do(http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodPost, path, nil).Code)

	mine := api.do(http.MethodGet, "/api/v1/users/me/communities", nil)
	require.Equal(t, http.StatusOK, mine.Code)
	assert.Contains(t, mine.Body.String(), "La Plata")
}

func TestOperationalEndpoints(t *testing.T) {
	r, _ := newTestAPI(t)
	api := &apiClient{t: t, h: r}

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", nil).Code)
	w := api.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "geounity_http_requests_total")
}

func TestEdgeRateLimitAndCORS(t *testing.T) {
	r, _ := newTestAPI(t)
	h := Edge(r, EdgeOptions{CORSOrigins: []string{"https://geounity.org"}, RateLimit: 2, RateWindow: time.Minute})

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", "https://geounity.org")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}
	first := get()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "https://geounity.org", first.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, get().Code)
	assert.Equal(t, http.StatusTooManyRequests, get().Code)
}
