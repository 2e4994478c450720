package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ReactionCntTTL       = 24 * time.Hour
	ReactionCntKeyPrefix = "reaction:cnt:poll"
	fieldLikes           = "likes"
	fieldDislikes        = "dislikes"
)

// ReactionCache holds per-poll like/dislike tallies as a hash.
// Writers go to MySQL first, then drop the cached tally.
type ReactionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReactionCache(rdb *redis.Client) *ReactionCache {
	return &ReactionCache{rdb: rdb, ttl: ReactionCntTTL}
}

func (c *ReactionCache) key(pollID uint64) string {
	return fmt.Sprintf("%s:%d", ReactionCntKeyPrefix, pollID)
}

// Get returns the cached tally; ok is false on a miss.
func (c *ReactionCache) Get(ctx context.Context, pollID uint64) (likes, dislikes int64, ok bool, err error) {
	vals, err := c.rdb.HMGet(ctx, c.key(pollID), fieldLikes, fieldDislikes).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, 0, false, nil
	}
	if likes, err = toInt64(vals[0]); err != nil {
		return 0, 0, false, err
	}
	if dislikes, err = toInt64(vals[1]); err != nil {
		return 0, 0, false, err
	}
	return likes, dislikes, true, nil
}

// Set backfills the tally after a database read.
func (c *ReactionCache) Set(ctx context.Context, pollID uint64, likes, dislikes int64) error {
	k := c.key(pollID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, fieldLikes, likes, fieldDislikes, dislikes)
		p.Expire(ctx, k, c.ttl)
		return nil
	})
	return err
}

// Invalidate drops the tally; a positive delay schedules a second delete to
// cover a concurrent backfill.
func (c *ReactionCache) Invalidate(ctx context.Context, pollID uint64, delay time.Duration) error {
	k := c.key(pollID)
	if err := c.rdb.Del(ctx, k).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if delay > 0 {
		go func() {
			t := time.NewTimer(delay)
			defer t.Stop()
			<-t.C
			_ = c.rdb.Del(context.Background(), k).Err()
		}()
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		return strconv.ParseInt(x, 10, 64)
	case int64:
		return x, nil
	}
	return 0, fmt.Errorf("unexpected tally value %T", v)
}
