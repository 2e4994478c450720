package model

import "time"

type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleUser      UserRole = "USER"
	RoleGuest     UserRole = "GUEST"
	RoleModerator UserRole = "MODERATOR"
	RoleBot       UserRole = "BOT"
)

type User struct {
	ID             uint64     `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email          string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	Password       string     `gorm:"size:255;not null" json:"-"`
	Name           string     `gorm:"size:100" json:"name"`
	Image          string     `gorm:"size:255" json:"image"`
	Cover          string     `gorm:"size:255" json:"cover"`
	Bio            string     `gorm:"size:500" json:"bio"`
	Country        string     `gorm:"size:64" json:"country"`
	Website        string     `gorm:"size:255" json:"website"`
	Gender         string     `gorm:"size:16" json:"gender"`
	Role           UserRole   `gorm:"size:16;not null;default:'USER'" json:"role"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	LastLogin      *time.Time `json:"last_login"`
	FollowerCount  int64      `gorm:"not null;default:0" json:"follower_count"`
	FollowingCount int64      `gorm:"not null;default:0" json:"following_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// UserMinimal is the public projection embedded in content responses.
type UserMinimal struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Image    string `json:"image"`
}

func (u *User) Minimal() *UserMinimal {
	if u == nil {
		return nil
	}
	return &UserMinimal{ID: u.ID, Username: u.Username, Image: u.Image}
}
