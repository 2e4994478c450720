package model

import "time"

type ReportType string

const (
	ReportPoll    ReportType = "POLL"
	ReportDebate  ReportType = "DEBATE"
	ReportProject ReportType = "PROJECT"
	ReportIssue   ReportType = "ISSUE"
	ReportComment ReportType = "COMMENT"
	ReportUser    ReportType = "USER"
)

type ReportReason string

const (
	ReasonInappropriate  ReportReason = "INAPPROPRIATE"
	ReasonSpam           ReportReason = "SPAM"
	ReasonHarmful        ReportReason = "HARMFUL"
	ReasonMisinformation ReportReason = "MISINFORMATION"
	ReasonHateSpeech     ReportReason = "HATE_SPEECH"
	ReasonScam           ReportReason = "SCAM"
	ReasonFalseInfo      ReportReason = "FALSE_INFO"
	ReasonDuplicated     ReportReason = "DUPLICATED"
	ReasonFake           ReportReason = "FAKE"
	ReasonOther          ReportReason = "OTHER"
)

type ReportStatus string

const (
	ReportPending     ReportStatus = "PENDING"
	ReportUnderReview ReportStatus = "UNDER_REVIEW"
	ReportResolved    ReportStatus = "RESOLVED"
	ReportRejected    ReportStatus = "REJECTED"
)

// Closed statuses stamp resolved_at/resolved_by.
func (s ReportStatus) Closed() bool {
	return s == ReportResolved || s == ReportRejected
}

type Report struct {
	ID              uint64       `gorm:"primaryKey" json:"id"`
	Type            ReportType   `gorm:"size:16;not null;index:idx_report_item" json:"type"`
	ItemID          uint64       `gorm:"not null;index:idx_report_item" json:"item_id"`
	Reason          ReportReason `gorm:"size:32;not null" json:"reason"`
	Details         string       `gorm:"size:1000" json:"details"`
	Status          ReportStatus `gorm:"size:16;not null;index" json:"status"`
	ReporterID      uint64       `gorm:"not null;index" json:"reporter_id"`
	ResolutionNotes string       `gorm:"size:1000" json:"resolution_notes"`
	ResolvedByID    *uint64      `json:"resolved_by_id"`
	ResolvedAt      *time.Time   `json:"resolved_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
