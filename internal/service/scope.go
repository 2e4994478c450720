package service

import (
	"context"
	"errors"
	"strings"

	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

// ScopeSelector names where a content aggregate lives. It is one of
// GlobalScope, InternationalScope, NationalScope, RegionalScope,
// SubregionalScope or LocalScope.
type ScopeSelector interface {
	Scope() model.Scope
	isScopeSelector()
}

type GlobalScope struct{}

type InternationalScope struct{ CountryCodes []string }

type NationalScope struct{ CountryCode string }

type RegionalScope struct{ RegionID uint64 }

type SubregionalScope struct{ SubregionID uint64 }

type LocalScope struct{ LocalityID uint64 }

func (GlobalScope) Scope() model.Scope        { return model.ScopeGlobal }
func (InternationalScope) Scope() model.Scope { return model.ScopeInternational }
func (NationalScope) Scope() model.Scope      { return model.ScopeNational }
func (RegionalScope) Scope() model.Scope      { return model.ScopeRegional }
func (SubregionalScope) Scope() model.Scope   { return model.ScopeSubregional }
func (LocalScope) Scope() model.Scope         { return model.ScopeLocal }

func (GlobalScope) isScopeSelector()        {}
func (InternationalScope) isScopeSelector() {}
func (NationalScope) isScopeSelector()      {}
func (RegionalScope) isScopeSelector()      {}
func (SubregionalScope) isScopeSelector()   {}
func (LocalScope) isScopeSelector()         {}

// ScopeInput is the flat request form of a scope.
type ScopeInput struct {
	Scope        model.Scope
	CountryCodes []string
	CountryCode  string
	RegionID     uint64
	SubregionID  uint64
	LocalityID   uint64
}

// NewScopeSelector checks that the identifiers the scope needs are present.
func NewScopeSelector(in ScopeInput) (ScopeSelector, error) {
	switch in.Scope {
	case model.ScopeGlobal:
		return GlobalScope{}, nil
	case model.ScopeInternational:
		codes := make([]string, 0, len(in.CountryCodes))
		seen := make(map[string]struct{})
		for _, c := range in.CountryCodes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			codes = append(codes, c)
		}
		if len(codes) == 0 {
			return nil, pkg.Validation("country_codes are required for INTERNATIONAL scope")
		}
		return InternationalScope{CountryCodes: codes}, nil
	case model.ScopeNational:
		code := strings.ToUpper(strings.TrimSpace(in.CountryCode))
		if code == "" {
			return nil, pkg.Validation("country_code is required for NATIONAL scope")
		}
		return NationalScope{CountryCode: code}, nil
	case model.ScopeRegional:
		if in.RegionID == 0 {
			return nil, pkg.Validation("region_id is required for REGIONAL scope")
		}
		return RegionalScope{RegionID: in.RegionID}, nil
	case model.ScopeSubregional:
		if in.SubregionID == 0 {
			return nil, pkg.Validation("subregion_id is required for SUBREGIONAL scope")
		}
		return SubregionalScope{SubregionID: in.SubregionID}, nil
	case model.ScopeLocal:
		if in.LocalityID == 0 {
			return nil, pkg.Validation("locality_id is required for LOCAL scope")
		}
		return LocalScope{LocalityID: in.LocalityID}, nil
	default:
		return nil, pkg.Validation("invalid scope %q", in.Scope)
	}
}

// ResolvedScope is a selector mapped to community ids.
type ResolvedScope struct {
	Scope        model.Scope
	CommunityIDs []uint64
	// Countries is filled for INTERNATIONAL scopes, in request order.
	Countries []model.Country
}

// resolveScope maps sel to its communities and appends extra, which must exist.
func resolveScope(ctx context.Context, db *gorm.DB, sel ScopeSelector, extra []uint64) (*ResolvedScope, error) {
	geo := &mysql.GeographyRepository{DB: db}
	out := &ResolvedScope{Scope: sel.Scope()}

	switch s := sel.(type) {
	case GlobalScope:
		root, err := (&mysql.CommunityRepository{DB: db}).FindRoot(ctx)
		if err != nil {
			return nil, notFound(err, "global community")
		}
		out.CommunityIDs = append(out.CommunityIDs, root.ID)
	case InternationalScope:
		for _, code := range s.CountryCodes {
			c, err := geo.FindCountryByCode(ctx, code)
			if err != nil {
				return nil, notFound(err, "country "+code)
			}
			out.Countries = append(out.Countries, *c)
			out.CommunityIDs = append(out.CommunityIDs, c.CommunityID)
		}
	case NationalScope:
		c, err := geo.FindCountryByCode(ctx, s.CountryCode)
		if err != nil {
			return nil, notFound(err, "country "+s.CountryCode)
		}
		out.CommunityIDs = append(out.CommunityIDs, c.CommunityID)
	case RegionalScope:
		r, err := geo.FindRegionByID(ctx, s.RegionID)
		if err != nil {
			return nil, notFound(err, "region")
		}
		out.CommunityIDs = append(out.CommunityIDs, r.CommunityID)
	case SubregionalScope:
		sr, err := geo.FindSubregionByID(ctx, s.SubregionID)
		if err != nil {
			return nil, notFound(err, "subregion")
		}
		out.CommunityIDs = append(out.CommunityIDs, sr.CommunityID)
	case LocalScope:
		l, err := geo.FindLocalityByID(ctx, s.LocalityID)
		if err != nil {
			return nil, notFound(err, "locality")
		}
		out.CommunityIDs = append(out.CommunityIDs, l.CommunityID)
	default:
		return nil, pkg.Validation("invalid scope")
	}

	extra = dedupe(extra)
	if len(extra) > 0 {
		found, err := (&mysql.CommunityRepository{DB: db}).FindByIDs(ctx, extra)
		if err != nil {
			return nil, err
		}
		if len(found) != len(extra) {
			return nil, pkg.NotFound("community not found")
		}
		out.CommunityIDs = append(out.CommunityIDs, extra...)
	}
	out.CommunityIDs = dedupe(out.CommunityIDs)
	return out, nil
}

// GeoFilter is the geographic part of a content list query.
type GeoFilter struct {
	CommunityID uint64
	CountryCode string
	RegionID    uint64
	SubregionID uint64
	LocalityID  uint64
}

var errNoMatch = errors.New("geo filter matches nothing")

// resolveGeoFilter maps each given filter to a community id. errNoMatch means
// an identifier is unknown and the list is empty.
func resolveGeoFilter(ctx context.Context, db *gorm.DB, f GeoFilter) ([]uint64, error) {
	geo := &mysql.GeographyRepository{DB: db}
	var ids []uint64
	if f.CommunityID != 0 {
		ids = append(ids, f.CommunityID)
	}
	lookup := func(cid uint64, err error) error {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNoMatch
		}
		if err != nil {
			return err
		}
		ids = append(ids, cid)
		return nil
	}
	if code := strings.TrimSpace(f.CountryCode); code != "" {
		c, err := geo.FindCountryByCode(ctx, code)
		var cid uint64
		if err == nil {
			cid = c.CommunityID
		}
		if err := lookup(cid, err); err != nil {
			return nil, err
		}
	}
	if f.RegionID != 0 {
		r, err := geo.FindRegionByID(ctx, f.RegionID)
		var cid uint64
		if err == nil {
			cid = r.CommunityID
		}
		if err := lookup(cid, err); err != nil {
			return nil, err
		}
	}
	if f.SubregionID != 0 {
		s, err := geo.FindSubregionByID(ctx, f.SubregionID)
		var cid uint64
		if err == nil {
			cid = s.CommunityID
		}
		if err := lookup(cid, err); err != nil {
			return nil, err
		}
	}
	if f.LocalityID != 0 {
		l, err := geo.FindLocalityByID(ctx, f.LocalityID)
		var cid uint64
		if err == nil {
			cid = l.CommunityID
		}
		if err := lookup(cid, err); err != nil {
			return nil, err
		}
	}
	return dedupe(ids), nil
}
