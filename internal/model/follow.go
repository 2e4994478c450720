package model

import "time"

type Follow struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	FollowerID uint64 `gorm:"not null;index:idx_follower_id;uniqueIndex:uk_follow_pair" json:"follower_id"`
	FolloweeID uint64 `gorm:"not null;index:idx_followee_id;uniqueIndex:uk_follow_pair" json:"followee_id"`
	Status     int8   `gorm:"not null;default:1;comment:'1=follow,0=unfollow'" json:"status"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Follow) TableName() string {
	return "follow"
}

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// EventOutbox holds domain events written in the same transaction as the
// change they describe; the relayer publishes them to Kafka.
type EventOutbox struct {
	ID            uint64 `gorm:"primaryKey"`
	EventType     string `gorm:"size:32;not null;index"` // follow / community.join / poll.created ...
	AggregateType string `gorm:"size:16;not null"`
	AggregateID   uint64 `gorm:"not null"`
	ActorID       uint64 `gorm:"not null"`
	Payload       string `gorm:"type:json;not null"`
	Status        int8   `gorm:"not null;default:0;index;comment:'0=pending,1=sent,2=failed'"`
	Retry         int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EventOutbox) TableName() string { return "event_outbox" }
