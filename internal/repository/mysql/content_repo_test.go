package mysql_test

import (
	"errors"
	"testing"

	"geounity/internal/model"
	"geounity/internal/repository/mysql"
	"geounity/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPoll(slug string) *model.Poll {
	return &model.Poll{Title: "Bicisendas", Slug: slug, Type: model.PollBinary,
		Scope: model.ScopeGlobal, Status: model.PollPublished, CreatorID: 1}
}

func TestCreateWithSlugPicksFreeSlug(t *testing.T) {
	db := testdb.New(t)
	require.NoError(t, db.Create(newPoll("bicisendas")).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		slug, err := mysql.CreateWithSlug(tx, &model.Poll{}, "bicisendas", func(slug string) error {
			return tx.Create(newPoll(slug)).Error
		})
		assert.Equal(t, "bicisendas-2", slug)
		return err
	})
	require.NoError(t, err)
}

// A row committed by another request between the slug lookup and the insert
// shows up as a duplicate key; the insert moves on to the next candidate.
func TestCreateWithSlugRetriesOnDuplicate(t *testing.T) {
	db := testdb.New(t)
	require.NoError(t, db.Create(newPoll("taken")).Error)

	var attempts []string
	err := db.Transaction(func(tx *gorm.DB) error {
		slug, err := mysql.CreateWithSlug(tx, &model.Poll{}, "bicisendas", func(slug string) error {
			attempts = append(attempts, slug)
			if len(attempts) == 1 {
				// lose the race: the chosen slug is already stored
				if err := tx.Create(newPoll("taken")).Error; err != nil {
					return err
				}
			}
			return tx.Create(newPoll(slug)).Error
		})
		assert.Equal(t, "bicisendas-2", slug)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bicisendas", "bicisendas-2"}, attempts)

	var slugs []string
	require.NoError(t, db.Model(&model.Poll{}).Order("slug").Pluck("slug", &slugs).Error)
	assert.Equal(t, []string{"bicisendas-2", "taken"}, slugs)
}

func TestCreateWithSlugKeepsOtherErrors(t *testing.T) {
	db := testdb.New(t)
	boom := errors.New("boom")
	calls := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := mysql.CreateWithSlug(tx, &model.Poll{}, "x", func(string) error {
			calls++
			return boom
		})
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
