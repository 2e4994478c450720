package model

import "time"

// ContentKind discriminates the polymorphic link tables shared by the four
// content aggregates.
type ContentKind string

const (
	KindPoll    ContentKind = "poll"
	KindDebate  ContentKind = "debate"
	KindIssue   ContentKind = "issue"
	KindProject ContentKind = "project"
)

func (k ContentKind) Valid() bool {
	switch k {
	case KindPoll, KindDebate, KindIssue, KindProject:
		return true
	}
	return false
}

// Scope is the geographic breadth of a content aggregate.
type Scope string

const (
	ScopeGlobal        Scope = "GLOBAL"
	ScopeInternational Scope = "INTERNATIONAL"
	ScopeNational      Scope = "NATIONAL"
	ScopeRegional      Scope = "REGIONAL"
	ScopeSubregional   Scope = "SUBREGIONAL"
	ScopeLocal         Scope = "LOCAL"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeInternational, ScopeNational, ScopeRegional, ScopeSubregional, ScopeLocal:
		return true
	}
	return false
}

// CountryScoped reports whether community projections carry the country code.
func (s Scope) CountryScoped() bool {
	return s == ScopeNational || s == ScopeInternational
}

type ContentCommunity struct {
	ContentKind ContentKind `gorm:"primaryKey;size:16"`
	ContentID   uint64      `gorm:"primaryKey;autoIncrement:false"`
	CommunityID uint64      `gorm:"primaryKey;autoIncrement:false;index"`
}

type ContentTag struct {
	ContentKind ContentKind `gorm:"primaryKey;size:16"`
	ContentID   uint64      `gorm:"primaryKey;autoIncrement:false"`
	TagID       uint64      `gorm:"primaryKey;autoIncrement:false;index"`
}

type Tag struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID          uint64      `gorm:"primaryKey" json:"id"`
	ContentKind ContentKind `gorm:"size:16;not null;index:idx_comment_target" json:"content_kind"`
	ContentID   uint64      `gorm:"not null;index:idx_comment_target" json:"content_id"`
	UserID      uint64      `gorm:"not null;index" json:"user_id"`
	Content     string      `gorm:"size:1000;not null" json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CommunityMinimal is the community projection embedded in content responses.
type CommunityMinimal struct {
	ID    uint64         `json:"id"`
	Name  string         `json:"name"`
	Level CommunityLevel `json:"level"`
	Cca2  string         `json:"cca2,omitempty"`
}
