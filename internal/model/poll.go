package model

import "time"

type PollType string

const (
	PollBinary         PollType = "BINARY"
	PollSingleChoice   PollType = "SINGLE_CHOICE"
	PollMultipleChoice PollType = "MULTIPLE_CHOICE"
)

type PollStatus string

const (
	PollDraft     PollStatus = "DRAFT"
	PollPublished PollStatus = "PUBLISHED"
	PollClosed    PollStatus = "CLOSED"
)

type Poll struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:100;not null" json:"title"`
	Description string     `gorm:"size:500" json:"description"`
	Type        PollType   `gorm:"size:16;not null" json:"type"`
	IsAnonymous bool       `gorm:"not null" json:"is_anonymous"`
	EndsAt      *time.Time `json:"ends_at"`
	Scope       Scope      `gorm:"size:16;not null;index" json:"scope"`
	Slug        string     `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Status      PollStatus `gorm:"size:16;not null;index" json:"status"`
	CreatorID   uint64     `gorm:"not null;index" json:"creator_id"`
	ViewsCount  int64      `gorm:"not null;default:0" json:"views_count"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (p *Poll) Expired(now time.Time) bool {
	return p.EndsAt != nil && now.After(*p.EndsAt)
}

type PollOption struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	PollID uint64 `gorm:"not null;index" json:"poll_id"`
	Text   string `gorm:"size:150;not null" json:"text"`
	Votes  int64  `gorm:"not null;default:0" json:"votes"`
}

type PollVote struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	PollID    uint64    `gorm:"not null;index:idx_poll_vote_user" json:"poll_id"`
	UserID    uint64    `gorm:"not null;index:idx_poll_vote_user" json:"user_id"`
	OptionID  uint64    `gorm:"not null;index" json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ReactionType string

const (
	ReactionLike    ReactionType = "LIKE"
	ReactionDislike ReactionType = "DISLIKE"
)

type PollReaction struct {
	ID        uint64       `gorm:"primaryKey" json:"id"`
	PollID    uint64       `gorm:"not null;uniqueIndex:uk_poll_reaction" json:"poll_id"`
	UserID    uint64       `gorm:"not null;uniqueIndex:uk_poll_reaction" json:"user_id"`
	Reaction  ReactionType `gorm:"size:8;not null" json:"reaction"`
	ReactedAt time.Time    `json:"reacted_at"`
}
