package model

import "gorm.io/datatypes"

// Every geography unit owns exactly one Community (unique community_id).

type Continent struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Code        string `gorm:"size:8" json:"code"`
	CommunityID uint64 `gorm:"not null;uniqueIndex" json:"community_id"`
}

type Country struct {
	ID            uint64         `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Cca2          string         `gorm:"size:2;uniqueIndex" json:"cca2"`
	Cca3          string         `gorm:"size:3" json:"cca3"`
	Capital       string         `gorm:"size:100" json:"capital"`
	Flag          string         `gorm:"size:255" json:"flag"`
	Area          float64        `json:"area"`
	Population    int64          `json:"population"`
	Timezone      string         `gorm:"size:64" json:"timezone"`
	Region        string         `gorm:"size:64" json:"region"`
	Subregion     string         `gorm:"size:64" json:"subregion"`
	Borders       datatypes.JSON `json:"borders,omitempty"`
	CapitalLatLng datatypes.JSON `json:"capital_latlng,omitempty"`
	ContinentID   *uint64        `gorm:"index" json:"continent_id"`
	CommunityID   uint64         `gorm:"not null;uniqueIndex" json:"community_id"`
}

type Region struct {
	ID             uint64  `gorm:"primaryKey" json:"id"`
	Name           string  `gorm:"size:100;not null;index" json:"name"`
	IsoCode        string  `gorm:"size:16" json:"iso_code"`
	Capital        string  `gorm:"size:100" json:"capital"`
	Flag           string  `gorm:"size:255" json:"flag"`
	Area           float64 `json:"area"`
	Population     int64   `json:"population"`
	Timezone       string  `gorm:"size:64" json:"timezone"`
	FamousLandmark string  `gorm:"size:255" json:"famous_landmark"`
	CountryCca2    string  `gorm:"size:2" json:"country_cca2"`
	CountryID      uint64  `gorm:"not null;index" json:"country_id"`
	CommunityID    uint64  `gorm:"not null;uniqueIndex" json:"community_id"`
}

type Subregion struct {
	ID          uint64  `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:100;not null;index" json:"name"`
	Area        float64 `json:"area"`
	Population  int64   `json:"population"`
	RegionID    uint64  `gorm:"not null;index" json:"region_id"`
	CommunityID uint64  `gorm:"not null;uniqueIndex" json:"community_id"`
}

type Locality struct {
	ID               uint64  `gorm:"primaryKey" json:"id"`
	Name             string  `gorm:"size:100;not null;index" json:"name"`
	Area             float64 `json:"area"`
	Population       int64   `json:"population"`
	Website          string  `gorm:"size:255" json:"website"`
	HeadOfGovernment string  `gorm:"size:100" json:"head_of_government"`
	SubregionID      uint64  `gorm:"not null;index" json:"subregion_id"`
	CommunityID      uint64  `gorm:"not null;uniqueIndex" json:"community_id"`
}
