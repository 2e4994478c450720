package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geounity/internal/authz"
	"geounity/internal/config"
	"geounity/internal/logging"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/repository/redis"
	"geounity/internal/router"
	"geounity/internal/search"
	"geounity/internal/service"
	"geounity/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := mysql.Open(mysql.Options{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SlowThreshold:   cfg.Database.SlowThreshold,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("mysql pool")
	}
	defer sqlDB.Close()
	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	rdb, err := redis.Dial(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis")
	}
	defer rdb.Close()

	enf := authz.MustNew()
	jwt := pkg.NewJWTManager(pkg.JWTConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	sessions := redis.NewTokenStore(rdb, cfg.JWT.RefreshTTL)

	var engine search.Engine
	if cfg.Meili.URL != "" {
		meili := search.NewMeili(cfg.Meili.URL, cfg.Meili.APIKey)
		defer meili.Close()
		engine = meili
	}
	finder := search.NewService(engine, &search.Database{DB: db})

	var images service.ImageStore
	if cfg.Storage.Endpoint != "" {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("object storage")
		}
		images = store
	} else {
		log.Warn().Msg("object storage not configured, uploads disabled")
	}

	var sender service.Sender = service.LogSender
	if len(cfg.Kafka.Brokers) > 0 {
		producer := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer producer.Close()
		sender = service.KafkaSender(producer)
	}

	health := func() error {
		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(hctx); err != nil {
			return errors.New("database unreachable")
		}
		if err := rdb.Ping(hctx).Err(); err != nil {
			return errors.New("redis unreachable")
		}
		return nil
	}
	polls := service.NewPollService(db, enf, finder, service.PollOptions{
		Cache:             redis.NewReactionCache(rdb),
		InvalidateDelay:   300 * time.Millisecond,
		RequireMembership: cfg.Voting.PollRequiresMembership,
	})
	users := service.NewUserService(db, jwt, sessions)
	reports := service.NewReportService(db, enf, pkg.NewMailer(pkg.SMTPConfig(cfg.SMTP)))
	deps := router.Deps{
		Auth:          users,
		Enforcer:      enf,
		DBStats:       sqlDB.Stats,
		Health:        health,
		Users:         users,
		Follows:       service.NewFollowService(db),
		Geography:     service.NewGeographyService(db),
		Communities:   service.NewCommunityService(db, enf),
		Polls:         polls,
		Debates:       service.NewDebateService(db, enf, finder),
		Issues:        service.NewIssueService(db, enf, finder),
		Projects:      service.NewProjectService(db, enf, finder),
		Comments:      service.NewCommentService(db, enf),
		Tags:          service.NewTagService(db),
		Reports:       reports,
		Organizations: service.NewOrganizationService(db, enf),
		Media:         service.NewMediaService(images),
		Search:        finder,
	}

	go service.NewOutboxRelayer(db, sender).Run(ctx)
	go service.NewFollowCountReconciler(db).Run(ctx)
	go finder.Run(ctx, 15*time.Second)

	handler := router.Edge(router.New(deps), router.EdgeOptions{
		CORSOrigins: cfg.CORS.Origins,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	drained := make(chan struct{})
	go func() {
		reports.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn().Msg("report mails still pending at exit")
	}
}
