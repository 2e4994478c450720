package model

import "time"

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "DRAFT"
	ProjectOpen       ProjectStatus = "OPEN"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
	ProjectCancelled  ProjectStatus = "CANCELLED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectDraft, ProjectOpen, ProjectInProgress, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

type Project struct {
	ID            uint64        `gorm:"primaryKey" json:"id"`
	Title         string        `gorm:"size:100;not null" json:"title"`
	Description   string        `gorm:"type:text" json:"description"`
	Status        ProjectStatus `gorm:"size:16;not null;index" json:"status"`
	Scope         Scope         `gorm:"size:16;not null;index" json:"scope"`
	GoalAmount    *float64      `json:"goal_amount"`
	CurrentAmount float64       `gorm:"not null;default:0" json:"current_amount"`
	IsAnonymous   bool          `gorm:"not null" json:"is_anonymous"`
	Slug          string        `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	CreatorID     uint64        `gorm:"not null;index" json:"creator_id"`
	ViewsCount    int64         `gorm:"not null;default:0" json:"views_count"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
)

type ProjectStep struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	ProjectID   uint64     `gorm:"not null;index" json:"project_id"`
	Title       string     `gorm:"size:100;not null" json:"title"`
	Description string     `gorm:"size:1000" json:"description"`
	Order       int        `gorm:"column:step_order;not null" json:"order"`
	Status      StepStatus `gorm:"size:16;not null" json:"status"`
}

type ResourceType string

const (
	ResourceLabor    ResourceType = "LABOR"
	ResourceMaterial ResourceType = "MATERIAL"
	ResourceEconomic ResourceType = "ECONOMIC"
)

type ProjectResource struct {
	ID          uint64       `gorm:"primaryKey" json:"id"`
	StepID      uint64       `gorm:"not null;index" json:"step_id"`
	Type        ResourceType `gorm:"size:16;not null" json:"type"`
	Description string       `gorm:"size:500" json:"description"`
	Quantity    *float64     `json:"quantity"`
	Unit        string       `gorm:"size:32" json:"unit"`
}

type CommitmentType string

const (
	CommitmentTime     CommitmentType = "TIME"
	CommitmentMaterial CommitmentType = "MATERIAL"
	CommitmentEconomic CommitmentType = "ECONOMIC"
)

type ProjectCommitment struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	ProjectID   uint64         `gorm:"not null;index" json:"project_id"`
	StepID      *uint64        `json:"step_id"`
	UserID      uint64         `gorm:"not null;index" json:"user_id"`
	Type        CommitmentType `gorm:"size:16;not null" json:"type"`
	Description string         `gorm:"size:500" json:"description"`
	Quantity    *float64       `json:"quantity"`
	Unit        string         `gorm:"size:32" json:"unit"`
	Fulfilled   bool           `gorm:"not null" json:"fulfilled"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ProjectDonation struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	ProjectID uint64    `gorm:"not null;index" json:"project_id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Amount    float64   `gorm:"not null" json:"amount"`
	Message   string    `gorm:"size:500" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
