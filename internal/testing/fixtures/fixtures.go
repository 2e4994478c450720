// Package fixtures seeds a small geography tree and users for tests.
package fixtures

import (
	"testing"

	"geounity/internal/model"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const Password = "password123"

// Geo holds the seeded ids.
type Geo struct {
	Global model.Community

	America     model.Continent
	AmericaComm model.Community
	Europe      model.Continent
	EuropeComm  model.Community

	Argentina     model.Country
	ArgentinaComm model.Community
	Spain         model.Country
	SpainComm     model.Community

	BuenosAires     model.Region
	BuenosAiresComm model.Community
	Cordoba         model.Region
	CordobaComm     model.Community

	LaPlata     model.Subregion
	LaPlataComm model.Community

	CityBell     model.Locality
	CityBellComm model.Community
}

func community(t testing.TB, db *gorm.DB, name string, level model.CommunityLevel, parent *model.Community) model.Community {
	t.Helper()
	c := model.Community{Name: name, Level: level}
	if parent != nil {
		id := parent.ID
		c.ParentID = &id
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// SeedGeography builds Global > America > Argentina > {Buenos Aires > La Plata > City Bell, Córdoba}
// and Global > Europe > Spain.
func SeedGeography(t testing.TB, db *gorm.DB) *Geo {
	t.Helper()
	g := &Geo{}
	g.Global = community(t, db, "Global", model.LevelGlobal, nil)

	g.AmericaComm = community(t, db, "America", model.LevelContinent, &g.Global)
	g.America = model.Continent{Name: "America", Code: "AM", CommunityID: g.AmericaComm.ID}
	require.NoError(t, db.Create(&g.America).Error)
	g.EuropeComm = community(t, db, "Europe", model.LevelContinent, &g.Global)
	g.Europe = model.Continent{Name: "Europe", Code: "EU", CommunityID: g.EuropeComm.ID}
	require.NoError(t, db.Create(&g.Europe).Error)

	g.ArgentinaComm = community(t, db, "Argentina", model.LevelNational, &g.AmericaComm)
	g.Argentina = model.Country{Name: "Argentina", Cca2: "AR", Cca3: "ARG", Capital: "Buenos Aires",
		ContinentID: &g.America.ID, CommunityID: g.ArgentinaComm.ID}
	require.NoError(t, db.Create(&g.Argentina).Error)
	g.SpainComm = community(t, db, "España", model.LevelNational, &g.EuropeComm)
	g.Spain = model.Country{Name: "España", Cca2: "ES", Cca3: "ESP", Capital: "Madrid",
		ContinentID: &g.Europe.ID, CommunityID: g.SpainComm.ID}
	require.NoError(t, db.Create(&g.Spain).Error)

	g.BuenosAiresComm = community(t, db, "Buenos Aires", model.LevelRegional, &g.ArgentinaComm)
	g.BuenosAires = model.Region{Name: "Buenos Aires", IsoCode: "AR-B", CountryCca2: "AR",
		CountryID: g.Argentina.ID, CommunityID: g.BuenosAiresComm.ID}
	require.NoError(t, db.Create(&g.BuenosAires).Error)
	g.CordobaComm = community(t, db, "Córdoba", model.LevelRegional, &g.ArgentinaComm)
	g.Cordoba = model.Region{Name: "Córdoba", IsoCode: "AR-X", CountryCca2: "AR",
		CountryID: g.Argentina.ID, CommunityID: g.CordobaComm.ID}
	require.NoError(t, db.Create(&g.Cordoba).Error)

	g.LaPlataComm = community(t, db, "La Plata", model.LevelSubregional, &g.BuenosAiresComm)
	g.LaPlata = model.Subregion{Name: "La Plata", RegionID: g.BuenosAires.ID, CommunityID: g.LaPlataComm.ID}
	require.NoError(t, db.Create(&g.LaPlata).Error)

	g.CityBellComm = community(t, db, "City Bell", model.LevelLocal, &g.LaPlataComm)
	g.CityBell = model.Locality{Name: "City Bell", SubregionID: g.LaPlata.ID, CommunityID: g.CityBellComm.ID}
	require.NoError(t, db.Create(&g.CityBell).Error)
	return g
}

// SeedUser inserts an active user whose password is Password.
func SeedUser(t testing.TB, db *gorm.DB, username string, role model.UserRole) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Join makes user a member of the community.
func Join(t testing.TB, db *gorm.DB, userID, communityID uint64, public bool) {
	t.Helper()
	require.NoError(t, db.Create(&model.UserCommunityLink{UserID: userID, CommunityID: communityID, IsPublic: public}).Error)
}
