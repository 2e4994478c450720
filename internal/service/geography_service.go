package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

type GeographyService struct {
	repo *mysql.GeographyRepository
}

func NewGeographyService(db *gorm.DB) *GeographyService {
	return &GeographyService{repo: &mysql.GeographyRepository{DB: db}}
}

// matchName picks the item whose normalized name equals query, falling back
// to the first one that contains it. items must be ordered by id.
func matchName[T any](items []T, name func(T) string, query string) (T, bool) {
	var zero T
	q := pkg.NormalizeName(query)
	if q == "" {
		return zero, false
	}
	for _, it := range items {
		if pkg.NormalizeName(name(it)) == q {
			return it, true
		}
	}
	for _, it := range items {
		if strings.Contains(pkg.NormalizeName(name(it)), q) {
			return it, true
		}
	}
	return zero, false
}

func (s *GeographyService) ListContinents(ctx context.Context) ([]model.Continent, error) {
	return s.repo.ListContinents(ctx)
}

func (s *GeographyService) ListCountries(ctx context.Context, continentID *uint64) ([]model.Country, error) {
	if continentID != nil {
		if _, err := s.repo.FindContinentByID(ctx, *continentID); err != nil {
			return nil, notFound(err, "continent")
		}
	}
	return s.repo.ListCountries(ctx, continentID)
}

// GetCountry accepts a cca2, a cca3 or a country name in any casing or accent form.
func (s *GeographyService) GetCountry(ctx context.Context, key string) (*model.Country, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkg.Validation("country is required")
	}
	if n := len(key); n == 2 || n == 3 {
		c, err := s.repo.FindCountryByCode(ctx, key)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	all, err := s.repo.ListCountries(ctx, nil)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b model.Country) int { return cmp.Compare(a.ID, b.ID) })
	c, ok := matchName(all, func(c model.Country) string { return c.Name }, key)
	if !ok {
		return nil, pkg.NotFound("country not found")
	}
	return &c, nil
}

func (s *GeographyService) ListCountryRegions(ctx context.Context, key string) ([]model.Region, error) {
	c, err := s.GetCountry(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.repo.RegionsByCountry(ctx, c.ID)
}

func (s *GeographyService) GetRegion(ctx context.Context, id uint64) (*model.Region, error) {
	r, err := s.repo.FindRegionByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "region")
	}
	return r, nil
}

// ListRegionSubregions filters by a name substring; an empty result is NotFound.
func (s *GeographyService) ListRegionSubregions(ctx context.Context, regionID uint64, name string) ([]model.Subregion, error) {
	if _, err := s.GetRegion(ctx, regionID); err != nil {
		return nil, err
	}
	list, err := s.repo.SubregionsByRegion(ctx, regionID, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pkg.NotFound("no subregions found")
	}
	return list, nil
}

func (s *GeographyService) GetSubregion(ctx context.Context, id uint64) (*model.Subregion, error) {
	sr, err := s.repo.FindSubregionByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "subregion")
	}
	return sr, nil
}

func (s *GeographyService) ListSubregionLocalities(ctx context.Context, subregionID uint64, name string) ([]model.Locality, error) {
	if _, err := s.GetSubregion(ctx, subregionID); err != nil {
		return nil, err
	}
	list, err := s.repo.LocalitiesBySubregion(ctx, subregionID, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pkg.NotFound("no localities found")
	}
	return list, nil
}
