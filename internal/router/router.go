// Package router wires the HTTP surface.
package router

import (
	"database/sql"
	"net/http"
	"time"

	"geounity/internal/authz"
	"geounity/internal/handler"
	"geounity/internal/middleware"
	"geounity/internal/model"
	"geounity/internal/search"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services behind the routes.
type Deps struct {
	Auth          middleware.Authenticator
	Enforcer      *authz.Enforcer
	DBStats       func() sql.DBStats
	Health        func() error
	Users         *service.UserService
	Follows       *service.FollowService
	Geography     *service.GeographyService
	Communities   *service.CommunityService
	Polls         *service.PollService
	Debates       *service.DebateService
	Issues        *service.IssueService
	Projects      *service.ProjectService
	Comments      *service.CommentService
	Tags          *service.TagService
	Reports       *service.ReportService
	Organizations *service.OrganizationService
	Media         *service.MediaService
	Search        *search.Service
}

func New(d Deps) *gin.Engine {
	handler.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.DBStats), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "msg": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var (
		user      = handler.NewUserHandler(d.Users)
		follow    = handler.NewFollowHandler(d.Follows)
		geo       = handler.NewGeographyHandler(d.Geography)
		community = handler.NewCommunityHandler(d.Communities)
		poll      = handler.NewPollHandler(d.Polls)
		debate    = handler.NewDebateHandler(d.Debates)
		issue     = handler.NewIssueHandler(d.Issues)
		project   = handler.NewProjectHandler(d.Projects)
		comment   = handler.NewCommentHandler(d.Comments)
		tag       = handler.NewTagHandler(d.Tags)
		report    = handler.NewReportHandler(d.Reports)
		org       = handler.NewOrganizationHandler(d.Organizations)
		media     = handler.NewMediaHandler(d.Media)
		find      = handler.NewSearchHandler(d.Search)
	)

	auth := middleware.RequireAuth(d.Auth)
	api := r.Group("/api/v1", middleware.OptionalAuth(d.Auth))

	// geography
	api.GET("/continents", geo.Continents)
	api.GET("/countries", geo.Countries)
	api.GET("/countries/:name", geo.Country)
	api.GET("/countries/:name/regions", geo.CountryRegions)
	api.GET("/regions/:id", geo.Region)
	api.GET("/regions/:id/subregions", geo.RegionSubregions)
	api.GET("/subregions/:id", geo.Subregion)
	api.GET("/subregions/:id/localities", geo.SubregionLocalities)

	communities := api.Group("/communities")
	{
		communities.GET("", community.List)
		communities.GET("/search", community.Search)
		communities.POST("/requests", auth, community.CreateRequest)
		communities.GET("/requests", auth, middleware.RequirePermission(d.Enforcer, authz.ObjCommunityRequests, authz.ActReview), community.ListRequests)
		communities.PATCH("/requests/:id", auth, middleware.RequirePermission(d.Enforcer, authz.ObjCommunityRequests, authz.ActReview), community.ReviewRequest)
		communities.GET("/:id", community.Get)
		communities.GET("/:id/children", community.Children)
		communities.GET("/:id/ancestors", community.Ancestors)
		communities.GET("/:id/members", community.Members)
		communities.POST("/:id/join", auth, community.Join)
		communities.POST("/:id/leave", auth, community.Leave)
		communities.PATCH("/:id/visibility", auth, community.UpdateVisibility)
	}

	polls := api.Group("/polls")
	{
		polls.GET("", poll.List)
		polls.POST("", auth, poll.Create)
		polls.GET("/:id", poll.Get)
		polls.PATCH("/:id", auth, poll.Update)
		polls.DELETE("/:id", auth, poll.Delete)
		polls.POST("/:id/vote", auth, poll.Vote)
		polls.DELETE("/:id/vote", auth, poll.Unvote)
		polls.POST("/:id/react", auth, poll.React)
		polls.GET("/:id/comments", comment.List(model.KindPoll))
		polls.POST("/:id/comments", auth, comment.Add(model.KindPoll))
	}

	debates := api.Group("/debates")
	{
		debates.GET("", debate.List)
		debates.POST("", auth, debate.Create)
		debates.GET("/:id", debate.Get)
		debates.PATCH("/:id", auth, debate.Update)
		debates.DELETE("/:id", auth, debate.Delete)
		debates.POST("/:id/opinions", auth, debate.AddOpinion)
		debates.POST("/opinions/:opinion_id/vote", auth, debate.VoteOpinion)
		debates.PATCH("/:id/moderation", auth, middleware.RequirePermission(d.Enforcer, authz.ObjDebates, authz.ActModerate), debate.Moderate)
		debates.GET("/:id/comments", comment.List(model.KindDebate))
		debates.POST("/:id/comments", auth, comment.Add(model.KindDebate))
	}

	issues := api.Group("/issues")
	{
		issues.GET("", issue.List)
		issues.POST("", auth, issue.Create)
		issues.GET("/categories", issue.Categories)
		issues.POST("/categories", auth, issue.CreateCategory)
		issues.GET("/:id", issue.Get)
		issues.PATCH("/:id", auth, issue.Update)
		issues.DELETE("/:id", auth, issue.Delete)
		issues.POST("/:id/support", auth, issue.ToggleSupport)
		issues.POST("/:id/updates", auth, issue.AddUpdate)
		issues.GET("/:id/comments", comment.List(model.KindIssue))
		issues.POST("/:id/comments", auth, comment.Add(model.KindIssue))
	}

	projects := api.Group("/projects")
	{
		projects.GET("", project.List)
		projects.POST("", auth, project.Create)
		projects.GET("/:id", project.Get)
		projects.PATCH("/:id", auth, project.Update)
		projects.DELETE("/:id", auth, project.Delete)
		projects.POST("/:id/commitments", auth, project.Commit)
		projects.POST("/:id/donations", auth, project.Donate)
		projects.GET("/:id/comments", comment.List(model.KindProject))
		projects.POST("/:id/comments", auth, comment.Add(model.KindProject))
	}

	api.DELETE("/comments/:id", auth, comment.Delete)

	users := api.Group("/users")
	{
		users.POST("/register", user.Register)
		users.POST("/login", user.Login)
		users.POST("/refresh", user.Refresh)
		users.POST("/logout", auth, user.Logout)
		users.GET("/me", auth, user.Me)
		users.PATCH("/me", auth, user.UpdateMe)
		users.PATCH("/me/username", auth, user.UpdateUsername)
		users.POST("/me/password", auth, user.ChangePassword)
		users.GET("/me/communities", auth, community.MyCommunities)
		users.POST("/follow", auth, follow.Follow)
		users.GET("/:username", user.Profile)
		users.GET("/:username/followers", follow.ListFollowers)
		users.GET("/:username/followings", follow.ListFollowings)
		users.GET("/:username/relation", auth, follow.Relation)
	}

	api.GET("/tags", tag.List)

	reports := api.Group("/reports", auth)
	{
		reports.POST("", report.Create)
		reports.GET("", report.List)
		reports.GET("/:id", report.Get)
		reports.PATCH("/:id/status", report.UpdateStatus)
	}

	orgs := api.Group("/organizations")
	{
		orgs.GET("", org.List)
		orgs.GET("/:id", org.Get)
		orgs.POST("", auth, org.Create)
		orgs.PATCH("/:id", auth, org.Update)
		orgs.DELETE("/:id", auth, org.Delete)
	}

	api.POST("/cloudinary/upload", auth, media.Upload)
	api.GET("/search", find.Search)

	return r
}

// EdgeOptions configure the net/http layer in front of the engine.
type EdgeOptions struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
}

// Edge wraps the engine with CORS and a per-IP rate limit.
func Edge(engine http.Handler, opts EdgeOptions) http.Handler {
	h := engine
	if opts.RateLimit > 0 {
		h = httprate.Limit(opts.RateLimit, opts.RateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"msg":"too many requests"}`))
			}),
		)(h)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
}
