package mysql

import (
	"context"
	"strings"

	"geounity/internal/model"

	"gorm.io/gorm"
)

type GeographyRepository struct {
	DB *gorm.DB
}

func (r *GeographyRepository) ListContinents(ctx context.Context) ([]model.Continent, error) {
	var list []model.Continent
	err := r.DB.WithContext(ctx).Order("name ASC").Find(&list).Error
	return list, err
}

func (r *GeographyRepository) ListCountries(ctx context.Context, continentID *uint64) ([]model.Country, error) {
	q := r.DB.WithContext(ctx).Model(&model.Country{})
	if continentID != nil {
		q = q.Where("continent_id = ?", *continentID)
	}
	var list []model.Country
	err := q.Order("name ASC").Find(&list).Error
	return list, err
}

// FindCountryByCode matches cca2 or cca3, case-insensitive.
func (r *GeographyRepository) FindCountryByCode(ctx context.Context, code string) (*model.Country, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var c model.Country
	err := r.DB.WithContext(ctx).Where("UPPER(cca2) = ? OR UPPER(cca3) = ?", code, code).Order("id ASC").First(&c).Error
	return &c, err
}

func (r *GeographyRepository) FindCountryByID(ctx context.Context, id uint64) (*model.Country, error) {
	var c model.Country
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *GeographyRepository) FindContinentByID(ctx context.Context, id uint64) (*model.Continent, error) {
	var c model.Continent
	err := r.DB.WithContext(ctx).First(&c, id).Error
	return &c, err
}

func (r *GeographyRepository) RegionsByCountry(ctx context.Context, countryID uint64) ([]model.Region, error) {
	var list []model.Region
	err := r.DB.WithContext(ctx).Where("country_id = ?", countryID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *GeographyRepository) FindRegionByID(ctx context.Context, id uint64) (*model.Region, error) {
	var reg model.Region
	err := r.DB.WithContext(ctx).First(&reg, id).Error
	return &reg, err
}

func (r *GeographyRepository) FindRegionByCommunityID(ctx context.Context, communityID uint64) ([]model.Region, error) {
	var list []model.Region
	err := r.DB.WithContext(ctx).Where("community_id = ?", communityID).Find(&list).Error
	return list, err
}

// SubregionsByRegion lists subregions, optionally filtered by a name substring.
func (r *GeographyRepository) SubregionsByRegion(ctx context.Context, regionID uint64, name string) ([]model.Subregion, error) {
	q := r.DB.WithContext(ctx).Where("region_id = ?", regionID)
	if name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	var list []model.Subregion
	err := q.Order("id ASC").Find(&list).Error
	return list, err
}

func (r *GeographyRepository) FindSubregionByID(ctx context.Context, id uint64) (*model.Subregion, error) {
	var s model.Subregion
	err := r.DB.WithContext(ctx).First(&s, id).Error
	return &s, err
}

func (r *GeographyRepository) LocalitiesBySubregion(ctx context.Context, subregionID uint64, name string) ([]model.Locality, error) {
	q := r.DB.WithContext(ctx).Where("subregion_id = ?", subregionID)
	if name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	var list []model.Locality
	err := q.Order("id ASC").Find(&list).Error
	return list, err
}

// LocalitiesByCountry walks locality -> subregion -> region to the country.
func (r *GeographyRepository) LocalitiesByCountry(ctx context.Context, countryID uint64) ([]model.Locality, error) {
	var list []model.Locality
	err := r.DB.WithContext(ctx).Model(&model.Locality{}).
		Select("localities.*").
		Joins("JOIN subregions s ON s.id = localities.subregion_id").
		Joins("JOIN regions r ON r.id = s.region_id").
		Where("r.country_id = ?", countryID).
		Order("localities.id ASC").
		Find(&list).Error
	return list, err
}

func (r *GeographyRepository) FindLocalityByID(ctx context.Context, id uint64) (*model.Locality, error) {
	var l model.Locality
	err := r.DB.WithContext(ctx).First(&l, id).Error
	return &l, err
}
