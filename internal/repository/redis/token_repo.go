package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const UserTokenPrefix = "login:user:token"

const (
	fieldAccess    = "access"
	fieldRefreshID = "refresh_id"
)

// Session is the live token pair of a user: the access token itself and the
// jti of the refresh token issued with it.
type Session struct {
	AccessToken string
	RefreshID   string
}

// TokenStore keeps one live session per user.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{rdb: rdb, ttl: ttl}
}

func tokenKey(userID uint64) string {
	return fmt.Sprintf("%s:%d", UserTokenPrefix, userID)
}

// Put replaces the user's session.
func (s *TokenStore) Put(ctx context.Context, userID uint64, sess Session) error {
	key := tokenKey(userID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldAccess, sess.AccessToken, fieldRefreshID, sess.RefreshID)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, userID uint64) (Session, error) {
	vals, err := s.rdb.HGetAll(ctx, tokenKey(userID)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	access, ok := vals[fieldAccess]
	if !ok || access == "" {
		return Session{}, ErrTokenNotFound
	}
	return Session{AccessToken: access, RefreshID: vals[fieldRefreshID]}, nil
}

// Extend pushes the expiry forward on activity.
func (s *TokenStore) Extend(ctx context.Context, userID uint64) error {
	return s.rdb.Expire(ctx, tokenKey(userID), s.ttl).Err()
}

// Delete drops both tokens. It is idempotent.
func (s *TokenStore) Delete(ctx context.Context, userID uint64) error {
	return s.rdb.Del(ctx, tokenKey(userID)).Err()
}
