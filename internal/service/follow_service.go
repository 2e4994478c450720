package service

import (
	"context"
	"time"

	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type FollowService struct {
	db *gorm.DB
}

func NewFollowService(db *gorm.DB) *FollowService {
	return &FollowService{db: db}
}

// FollowResult reports the relation after a follow or unfollow.
type FollowResult struct {
	Following bool `json:"following"`
	Changed   bool `json:"changed"`
}

// FollowPage is one page of a follow list. NextCursor is 0 on the last page.
type FollowPage struct {
	Items      []mysql.FollowRow `json:"items"`
	NextCursor uint64            `json:"next_cursor"`
}

func (s *FollowService) target(ctx context.Context, username string) (*model.User, error) {
	u, err := (&mysql.UserRepository{DB: s.db}).FindByUsername(ctx, username)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// SetFollow follows or unfollows username. Repeating the current state is a no-op.
func (s *FollowService) SetFollow(ctx context.Context, actor *model.User, username string, follow bool) (*FollowResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	target, err := s.target(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, pkg.Validation("cannot follow yourself")
	}
	repo := &mysql.FollowRepository{DB: s.db}
	var changed bool
	if follow {
		changed, err = repo.Follow(ctx, actor.ID, target.ID)
	} else {
		changed, err = repo.Unfollow(ctx, actor.ID, target.ID)
	}
	if err != nil {
		return nil, err
	}
	if changed {
		logging.Ctx(ctx).Info().Uint64("follower", actor.ID).Uint64("followee", target.ID).Bool("follow", follow).Msg("follow changed")
	}
	return &FollowResult{Following: follow, Changed: changed}, nil
}

func (s *FollowService) IsFollowing(ctx context.Context, actor *model.User, username string) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	target, err := s.target(ctx, username)
	if err != nil {
		return false, err
	}
	return (&mysql.FollowRepository{DB: s.db}).IsFollowing(ctx, actor.ID, target.ID)
}

func (s *FollowService) ListFollowings(ctx context.Context, username string, cursor uint64, limit int) (*FollowPage, error) {
	target, err := s.target(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, next, err := (&mysql.FollowRepository{DB: s.db}).ListFollowings(ctx, target.ID, cursor, limit)
	if err != nil {
		return nil, err
	}
	return newFollowPage(rows, next), nil
}

func (s *FollowService) ListFollowers(ctx context.Context, username string, cursor uint64, limit int) (*FollowPage, error) {
	target, err := s.target(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, next, err := (&mysql.FollowRepository{DB: s.db}).ListFollowers(ctx, target.ID, cursor, limit)
	if err != nil {
		return nil, err
	}
	return newFollowPage(rows, next), nil
}

func newFollowPage(rows []mysql.FollowRow, next uint64) *FollowPage {
	if rows == nil {
		rows = []mysql.FollowRow{}
	}
	return &FollowPage{Items: rows, NextCursor: next}
}

// Sender publishes one outbox event.
type Sender func(ctx context.Context, ev *model.EventOutbox) error

const outboxMaxRetry = 5

// OutboxRelayer drains event_outbox to a Sender.
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	batchSize int
	interval  time.Duration
	sender    Sender
}

func NewOutboxRelayer(db *gorm.DB, sender Sender) *OutboxRelayer {
	return &OutboxRelayer{
		repo:      &mysql.OutboxRepository{DB: db},
		batchSize: 200,
		interval:  time.Second,
		sender:    sender,
	}
}

func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.drainOnce(ctx)
		}
	}
}

// drainOnce returns the number of events sent.
func (r *OutboxRelayer) drainOnce(ctx context.Context) int {
	rows, err := r.repo.List(ctx, r.batchSize, outboxMaxRetry)
	if err != nil {
		log.Error().Err(err).Msg("outbox query failed")
		return 0
	}
	sent := 0
	for i := range rows {
		ev := rows[i]
		if err := r.sender(ctx, &ev); err != nil {
			log.Warn().Err(err).Uint64("event_id", ev.ID).Int("retry", ev.Retry+1).Msg("outbox send failed")
			if err := r.repo.RetryUpdate(ctx, ev.ID); err != nil {
				log.Error().Err(err).Uint64("event_id", ev.ID).Msg("outbox retry update failed")
			}
			continue
		}
		if err := r.repo.SuccessUpdate(ctx, ev.ID); err != nil {
			log.Error().Err(err).Uint64("event_id", ev.ID).Msg("outbox success update failed")
			continue
		}
		sent++
	}
	return sent
}

// KafkaSender keys each message by its aggregate so events of one aggregate stay ordered.
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ev *model.EventOutbox) error {
		return p.Send(ctx, pkg.MakeKeyFromID(ev.AggregateType, ev.AggregateID), []byte(ev.Payload), map[string]string{
			"event_type": ev.EventType,
		})
	}
}

// LogSender is used when no Kafka brokers are configured.
func LogSender(ctx context.Context, ev *model.EventOutbox) error {
	log.Info().
		Str("event", ev.EventType).
		Str("aggregate", ev.AggregateType).
		Uint64("aggregate_id", ev.AggregateID).
		Uint64("actor_id", ev.ActorID).
		RawJSON("payload", []byte(ev.Payload)).
		Msg("outbox event")
	return nil
}

// FollowCountReconciler repairs users.follower_count and following_count from the follow table.
type FollowCountReconciler struct {
	repo      *mysql.FollowCountReconcilerRepo
	batchSize int
	interval  time.Duration
}

func NewFollowCountReconciler(db *gorm.DB) *FollowCountReconciler {
	return &FollowCountReconciler{
		repo:      &mysql.FollowCountReconcilerRepo{DB: db},
		batchSize: 500,
		interval:  5 * time.Minute,
	}
}

func (r *FollowCountReconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.reconcileOnce(ctx)
		}
	}
}

// reconcileOnce walks every user once and returns how many rows it fixed.
func (r *FollowCountReconciler) reconcileOnce(ctx context.Context) int {
	var lastID uint64
	fixed := 0
	for {
		users, next, err := r.repo.ReconcileList(ctx, r.batchSize, lastID)
		if err != nil {
			log.Error().Err(err).Msg("reconcile list failed")
			return fixed
		}
		if len(users) == 0 {
			return fixed
		}
		for _, u := range users {
			followings, err := r.repo.RealFollowings(ctx, u.ID)
			if err != nil {
				continue
			}
			followers, err := r.repo.RealFollowers(ctx, u.ID)
			if err != nil {
				continue
			}
			if followings == u.FollowingCount && followers == u.FollowerCount {
				continue
			}
			if err := r.repo.SetCounts(ctx, u.ID, followings, followers); err != nil {
				log.Error().Err(err).Uint64("user_id", u.ID).Msg("reconcile update failed")
				continue
			}
			fixed++
		}
		if ctx.Err() != nil {
			return fixed
		}
		lastID = next
	}
}
