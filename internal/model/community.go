package model

import (
	"time"

	"gorm.io/datatypes"
)

type CommunityLevel string

const (
	LevelGlobal      CommunityLevel = "GLOBAL"
	LevelContinent   CommunityLevel = "CONTINENT"
	LevelNational    CommunityLevel = "NATIONAL"
	LevelRegional    CommunityLevel = "REGIONAL"
	LevelSubregional CommunityLevel = "SUBREGIONAL"
	LevelLocal       CommunityLevel = "LOCAL"
	LevelCustom      CommunityLevel = "CUSTOM"
)

func (l CommunityLevel) Valid() bool {
	switch l {
	case LevelGlobal, LevelContinent, LevelNational, LevelRegional, LevelSubregional, LevelLocal, LevelCustom:
		return true
	}
	return false
}

// Community is a node of the community tree. Nodes only hold their parent id,
// the tree is walked by repeated lookups.
type Community struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null;index" json:"name"`
	Description string         `gorm:"size:500" json:"description"`
	Level       CommunityLevel `gorm:"size:16;not null;index" json:"level"`
	GeoData     datatypes.JSON `json:"geo_data,omitempty"`
	ParentID    *uint64        `gorm:"index" json:"parent_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// UserCommunityLink is a membership; is_public controls visibility in member lists.
type UserCommunityLink struct {
	UserID      uint64    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CommunityID uint64    `gorm:"primaryKey;autoIncrement:false;index" json:"community_id"`
	IsPublic    bool      `gorm:"not null;default:false" json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// CommunityRequest is a user proposal for a CUSTOM community.
type CommunityRequest struct {
	ID           uint64        `gorm:"primaryKey" json:"id"`
	UserID       uint64        `gorm:"not null;index" json:"user_id"`
	Name         string        `gorm:"size:100;not null" json:"name"`
	Description  string        `gorm:"size:500" json:"description"`
	ParentID     *uint64       `json:"parent_id"`
	Status       RequestStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	Notes        string        `gorm:"size:500" json:"notes"`
	CommunityID  *uint64       `json:"community_id"`
	ReviewedByID *uint64       `json:"reviewed_by_id"`
	ReviewedAt   *time.Time    `json:"reviewed_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
