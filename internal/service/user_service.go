package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"
	"geounity/internal/repository/redis"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,29}$`)
	reservedUsernames = map[string]struct{}{
		"anonymous": {}, "admin": {}, "system": {}, "moderator": {}, "support": {},
	}
	validate = validator.New()
)

const minPasswordLen = 8

// ValidUsername checks the shape and the reserved list.
func ValidUsername(username string) bool {
	if !usernamePattern.MatchString(username) {
		return false
	}
	_, reserved := reservedUsernames[strings.ToLower(username)]
	return !reserved
}

// SessionStore holds the one live token pair of each user.
type SessionStore interface {
	Put(ctx context.Context, userID uint64, sess redis.Session) error
	Get(ctx context.Context, userID uint64) (redis.Session, error)
	Extend(ctx context.Context, userID uint64) error
	Delete(ctx context.Context, userID uint64) error
}

type UserService struct {
	db       *gorm.DB
	jwt      *pkg.JWTManager
	sessions SessionStore
	now      func() time.Time
}

func NewUserService(db *gorm.DB, jwt *pkg.JWTManager, sessions SessionStore) *UserService {
	return &UserService{db: db, jwt: jwt, sessions: sessions, now: time.Now}
}

type UserUpdate struct {
	Name    *string
	Image   *string
	Cover   *string
	Bio     *string
	Country *string
	Website *string
	Gender  *string
}

type LoginResult struct {
	*pkg.Pair
	User *model.User `json:"user"`
}

// Profile is the public view of a user.
type Profile struct {
	ID             uint64    `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	Image          string    `json:"image"`
	Cover          string    `json:"cover"`
	Bio            string    `json:"bio"`
	Country        string    `json:"country"`
	Website        string    `json:"website"`
	Role           string    `json:"role"`
	FollowerCount  int64     `json:"follower_count"`
	FollowingCount int64     `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
	IsFollowing    *bool     `json:"is_following,omitempty"`
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen || len(password) > 72 {
		return "", pkg.Validation("password must be %d-72 characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if !ValidUsername(username) {
		return nil, pkg.Validation("invalid username")
	}
	if err := validate.Var(email, "required,email,max=128"); err != nil {
		return nil, pkg.Validation("invalid email")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	repo := &mysql.UserRepository{DB: s.db}
	if taken, err := repo.Exists(ctx, "username", username); err != nil {
		return nil, err
	} else if taken {
		return nil, pkg.Conflict("username %q is already taken", username)
	}
	if taken, err := repo.Exists(ctx, "email", email); err != nil {
		return nil, err
	} else if taken {
		return nil, pkg.Conflict("email is already registered")
	}

	user := &model.User{Username: username, Email: email, Password: hash, Role: model.RoleUser, IsActive: true}
	if err := repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the password and starts a new session, replacing any previous one.
func (s *UserService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	repo := &mysql.UserRepository{DB: s.db}
	user, err := repo.FindByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, pkg.Unauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, pkg.Forbidden("account is disabled")
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return &LoginResult{Pair: pair, User: user}, nil
}

func (s *UserService) startSession(ctx context.Context, user *model.User) (*pkg.Pair, error) {
	pair, err := s.jwt.GeneratePair(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Put(ctx, user.ID, redis.Session{AccessToken: pair.AccessToken, RefreshID: pair.RefreshID}); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *UserService) Logout(ctx context.Context, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, actor.ID)
}

// Refresh exchanges the refresh token of the live session for a new pair.
// Tokens from an ended or replaced session are rejected.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := s.jwt.ParseRefresh(refreshToken)
	if err != nil {
		return nil, pkg.Unauthorized("%v", err)
	}
	stored, err := s.sessions.Get(ctx, claims.UserID)
	if errors.Is(err, redis.ErrTokenNotFound) || (err == nil && (claims.ID == "" || stored.RefreshID != claims.ID)) {
		return nil, pkg.Unauthorized("session expired")
	}
	if err != nil {
		return nil, err
	}
	user, err := (&mysql.UserRepository{DB: s.db}).FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkg.Forbidden("account is disabled")
	}
	return s.startSession(ctx, user)
}

// Authenticate resolves an access token to its user. The token must be the
// live session token.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.jwt.ParseAccess(accessToken)
	if err != nil {
		return nil, pkg.Unauthorized("%v", err)
	}
	stored, err := s.sessions.Get(ctx, claims.UserID)
	if errors.Is(err, redis.ErrTokenNotFound) || (err == nil && stored.AccessToken != accessToken) {
		return nil, pkg.Unauthorized("session expired")
	}
	if err != nil {
		return nil, err
	}
	user, err := (&mysql.UserRepository{DB: s.db}).FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkg.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkg.Forbidden("account is disabled")
	}
	_ = s.sessions.Extend(ctx, user.ID)
	return user, nil
}

// ChangePassword also ends the current session.
func (s *UserService) ChangePassword(ctx context.Context, actor *model.User, oldPassword, newPassword string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	repo := &mysql.UserRepository{DB: s.db}
	user, err := repo.FindByID(ctx, actor.ID)
	if err != nil {
		return notFound(err, "user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return pkg.Validation("old password is incorrect")
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, user.ID)
}

func (s *UserService) Me(ctx context.Context, actor *model.User) (*model.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	user, err := (&mysql.UserRepository{DB: s.db}).FindByID(ctx, actor.ID)
	return user, notFound(err, "user")
}

func (s *UserService) UpdateMe(ctx context.Context, actor *model.User, in UserUpdate) (*model.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	set := func(col string, v *string, max int) error {
		if v == nil {
			return nil
		}
		val := strings.TrimSpace(*v)
		if len([]rune(val)) > max {
			return pkg.Validation("%s must be at most %d characters", col, max)
		}
		fields[col] = val
		return nil
	}
	for _, f := range []struct {
		col string
		v   *string
		max int
	}{
		{"name", in.Name, 100},
		{"image", in.Image, 255},
		{"cover", in.Cover, 255},
		{"bio", in.Bio, 500},
		{"country", in.Country, 64},
		{"website", in.Website, 255},
		{"gender", in.Gender, 16},
	} {
		if err := set(f.col, f.v, f.max); err != nil {
			return nil, err
		}
	}
	if w, ok := fields["website"].(string); ok && w != "" {
		if err := validate.Var(w, "url"); err != nil {
			return nil, pkg.Validation("website must be a url")
		}
	}
	repo := &mysql.UserRepository{DB: s.db}
	if err := repo.UpdateFields(ctx, actor.ID, fields); err != nil {
		return nil, err
	}
	user, err := repo.FindByID(ctx, actor.ID)
	return user, notFound(err, "user")
}

func (s *UserService) UpdateUsername(ctx context.Context, actor *model.User, username string) (*model.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if !ValidUsername(username) {
		return nil, pkg.Validation("invalid username")
	}
	repo := &mysql.UserRepository{DB: s.db}
	if username != actor.Username {
		taken, err := repo.Exists(ctx, "username", username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, pkg.Conflict("username %q is already taken", username)
		}
		if err := repo.UpdateFields(ctx, actor.ID, map[string]any{"username": username}); err != nil {
			return nil, err
		}
	}
	user, err := repo.FindByID(ctx, actor.ID)
	return user, notFound(err, "user")
}

// GetByUsername returns the public profile. is_following is set for a signed-in viewer.
func (s *UserService) GetByUsername(ctx context.Context, username string, viewer *model.User) (*Profile, error) {
	user, err := (&mysql.UserRepository{DB: s.db}).FindByUsername(ctx, username)
	if err != nil {
		return nil, notFound(err, "user")
	}
	p := &Profile{
		ID: user.ID, Username: user.Username, Name: user.Name, Image: user.Image, Cover: user.Cover,
		Bio: user.Bio, Country: user.Country, Website: user.Website, Role: string(user.Role),
		FollowerCount: user.FollowerCount, FollowingCount: user.FollowingCount, CreatedAt: user.CreatedAt,
	}
	if viewer != nil && viewer.ID != user.ID {
		following, err := (&mysql.FollowRepository{DB: s.db}).IsFollowing(ctx, viewer.ID, user.ID)
		if err != nil {
			return nil, err
		}
		p.IsFollowing = &following
	}
	return p, nil
}
