package model

import (
	"time"

	"gorm.io/datatypes"
)

type IssueStatus string

const (
	IssueOpen       IssueStatus = "OPEN"
	IssueInReview   IssueStatus = "IN_REVIEW"
	IssueInProgress IssueStatus = "IN_PROGRESS"
	IssueResolved   IssueStatus = "RESOLVED"
	IssueClosed     IssueStatus = "CLOSED"
	IssueRejected   IssueStatus = "REJECTED"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueInReview, IssueInProgress, IssueResolved, IssueClosed, IssueRejected:
		return true
	}
	return false
}

type IssueCategory struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Issue struct {
	ID                  uint64         `gorm:"primaryKey" json:"id"`
	Title               string         `gorm:"size:200;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Status              IssueStatus    `gorm:"size:16;not null;index" json:"status"`
	Scope               Scope          `gorm:"size:16;not null;index" json:"scope"`
	LocationDescription string         `gorm:"size:255" json:"location_description"`
	Latitude            *float64       `json:"latitude"`
	Longitude           *float64       `json:"longitude"`
	Images              datatypes.JSON `json:"images"`
	IsAnonymous         bool           `gorm:"not null" json:"is_anonymous"`
	Slug                string         `gorm:"size:220;not null;uniqueIndex" json:"slug"`
	CategoryID          *uint64        `gorm:"index" json:"category_id"`
	OrganizationID      *uint64        `gorm:"index" json:"organization_id"`
	CreatorID           uint64         `gorm:"not null;index" json:"creator_id"`
	SupportCount        int64          `gorm:"not null;default:0" json:"support_count"`
	ViewsCount          int64          `gorm:"not null;default:0" json:"views_count"`
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type IssueSupport struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	IssueID   uint64    `gorm:"not null;uniqueIndex:uk_issue_support" json:"issue_id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uk_issue_support" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueUpdate is a progress post on an issue, optionally moving its status.
type IssueUpdate struct {
	ID             uint64       `gorm:"primaryKey" json:"id"`
	IssueID        uint64       `gorm:"not null;index" json:"issue_id"`
	UserID         uint64       `gorm:"not null" json:"user_id"`
	Content        string       `gorm:"size:2000;not null" json:"content"`
	NewStatus      *IssueStatus `gorm:"size:16" json:"new_status"`
	OrganizationID *uint64      `json:"organization_id"`
	CreatedAt      time.Time    `json:"created_at"`
}
