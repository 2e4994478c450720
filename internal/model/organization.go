package model

import "time"

type OrganizationLevel string

const (
	OrgMunicipal  OrganizationLevel = "MUNICIPAL"
	OrgProvincial OrganizationLevel = "PROVINCIAL"
	OrgRegional   OrganizationLevel = "REGIONAL"
	OrgNational   OrganizationLevel = "NATIONAL"
)

type Organization struct {
	ID           uint64            `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"size:200;not null;index" json:"name"`
	Description  string            `gorm:"size:1000" json:"description"`
	Level        OrganizationLevel `gorm:"size:16;not null;index" json:"level"`
	ParentID     *uint64           `gorm:"index" json:"parent_id"`
	CommunityID  *uint64           `gorm:"index" json:"community_id"`
	RegionID     *uint64           `gorm:"index" json:"region_id"`
	SubregionID  *uint64           `gorm:"index" json:"subregion_id"`
	LocalityID   *uint64           `gorm:"index" json:"locality_id"`
	ContactEmail string            `gorm:"size:128" json:"contact_email"`
	ContactPhone string            `gorm:"size:32" json:"contact_phone"`
	Website      string            `gorm:"size:255" json:"website"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
