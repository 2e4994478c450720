package mysql

import (
	"fmt"
	"time"

	"geounity/internal/model"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

// Open connects to MySQL and applies the pool settings.
func Open(opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(opts.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}

func Models() []any {
	return []any{
		&model.Community{},
		&model.UserCommunityLink{},
		&model.CommunityRequest{},
		&model.Continent{},
		&model.Country{},
		&model.Region{},
		&model.Subregion{},
		&model.Locality{},
		&model.User{},
		&model.Follow{},
		&model.EventOutbox{},
		&model.Tag{},
		&model.ContentCommunity{},
		&model.ContentTag{},
		&model.Comment{},
		&model.Poll{},
		&model.PollOption{},
		&model.PollVote{},
		&model.PollReaction{},
		&model.Debate{},
		&model.PointOfView{},
		&model.Opinion{},
		&model.OpinionVote{},
		&model.DebateChangeLog{},
		&model.IssueCategory{},
		&model.Issue{},
		&model.IssueSupport{},
		&model.IssueUpdate{},
		&model.Project{},
		&model.ProjectStep{},
		&model.ProjectResource{},
		&model.ProjectCommitment{},
		&model.ProjectDonation{},
		&model.Report{},
		&model.Organization{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
