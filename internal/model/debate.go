package model

import (
	"time"

	"gorm.io/datatypes"
)

type DebateStatus string

const (
	DebateOpen     DebateStatus = "OPEN"
	DebatePending  DebateStatus = "PENDING"
	DebateClosed   DebateStatus = "CLOSED"
	DebateRejected DebateStatus = "REJECTED"
	DebateArchived DebateStatus = "ARCHIVED"
	DebateResolved DebateStatus = "RESOLVED"
)

// AcceptsOpinions is false once the debate is closed for discussion.
func (s DebateStatus) AcceptsOpinions() bool {
	switch s {
	case DebateClosed, DebateArchived, DebateResolved:
		return false
	}
	return true
}

type Debate struct {
	ID              uint64         `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"size:100;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Type            Scope          `gorm:"size:16;not null;index" json:"type"`
	Status          DebateStatus   `gorm:"size:16;not null;index" json:"status"`
	Language        string         `gorm:"size:2;not null;default:'es'" json:"language"`
	Public          bool           `gorm:"not null" json:"public"`
	IsAnonymous     bool           `gorm:"not null" json:"is_anonymous"`
	Images          datatypes.JSON `json:"images"`
	Slug            string         `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	CreatorID       uint64         `gorm:"not null;index" json:"creator_id"`
	ViewsCount      int64          `gorm:"not null;default:0" json:"views_count"`
	ApprovedByID    *uint64        `json:"approved_by_id"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	RejectedByID    *uint64        `json:"rejected_by_id"`
	RejectedAt      *time.Time     `json:"rejected_at"`
	ModerationNotes string         `gorm:"size:1000" json:"moderation_notes"`
	DeletedAt       *time.Time     `gorm:"index" json:"deleted_at"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type PointOfView struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	DebateID    uint64    `gorm:"not null;uniqueIndex:uk_pov_debate_community" json:"debate_id"`
	CommunityID uint64    `gorm:"not null;uniqueIndex:uk_pov_debate_community" json:"community_id"`
	CreatedByID uint64    `gorm:"not null" json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PointOfView) TableName() string { return "points_of_view" }

type Opinion struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	PointOfViewID uint64    `gorm:"not null;index" json:"point_of_view_id"`
	UserID        uint64    `gorm:"not null;index" json:"user_id"`
	Content       string    `gorm:"size:1000;not null" json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OpinionVote struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	OpinionID uint64    `gorm:"not null;uniqueIndex:uk_opinion_vote" json:"opinion_id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uk_opinion_vote" json:"user_id"`
	Value     int       `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DebateChangeLog records one changed field of a debate update.
type DebateChangeLog struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	DebateID  uint64    `gorm:"not null;index" json:"debate_id"`
	UserID    uint64    `gorm:"not null" json:"user_id"`
	Field     string    `gorm:"size:32;not null" json:"field"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}
