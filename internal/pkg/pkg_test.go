package pkg

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"¿Qué opinás del transporte público?": "que-opinas-del-transporte-publico",
		"  Córdoba   2030 ":                    "cordoba-2030",
		"a--b__c":                              "a-bc",
		"¡¡¡":                                  "untitled",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Slugify(in))
		})
	}
	long := Slugify(strings.Repeat("palabra ", 30))
	assert.LessOrEqual(t, len(long), maxSlugLen)
	assert.False(t, strings.HasSuffix(long, "-"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "san miguel de tucuman", NormalizeName("  San_Miguel-de   Tucumán "))
	assert.Equal(t, "espana", NormalizeName("España"))
	assert.Equal(t, "Sao Paulo", StripAccents("São Paulo"))
}

func TestPage(t *testing.T) {
	p := NewPage(0, 500)
	assert.Equal(t, Page{Page: 1, Size: DefaultPageSize}, p)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, 40, NewPage(3, 20).Offset())

	huge := NewPage(math.MaxInt, MaxPageSize)
	assert.Equal(t, MaxPage, huge.Page)
	assert.Positive(t, huge.Offset())

	res := NewPaginated[int](nil, 41, NewPage(1, 20))
	assert.NotNil(t, res.Items)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 0, NewPaginated([]int{}, 0, NewPage(1, 20)).Pages)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NotFound("poll %d not found", 7), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Forbidden("no"), http.StatusForbidden},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Conflict("taken"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
	wrapped := fmt.Errorf("vote: %w", NotFound("poll %d not found", 7))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.Equal(t, "vote: poll 7 not found", wrapped.Error())
	assert.False(t, IsKind(nil, KindInternal))
}

func TestJWTManager(t *testing.T) {
	m := NewJWTManager(JWTConfig{AccessSecret: "a", RefreshSecret: "r", AccessTTL: time.Minute, RefreshTTL: time.Hour})

	pair, err := m.GeneratePair(42, "MODERATOR")
	require.NoError(t, err)

	claims, err := m.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "MODERATOR", claims.Role)

	_, err = m.ParseAccess(pair.RefreshToken)
	assert.Error(t, err, "a refresh token is not an access token")
	_, err = m.ParseRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	rc, err := m.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 42, rc.UserID)
	assert.Equal(t, pair.RefreshID, rc.ID)
	assert.NotEqual(t, claims.ID, rc.ID)

	again, err := m.GeneratePair(42, "MODERATOR")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, again.AccessToken, "pairs issued in the same second differ by jti")
	assert.NotEqual(t, pair.RefreshID, again.RefreshID)

	other := NewJWTManager(JWTConfig{AccessSecret: "x", RefreshSecret: "y", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	_, err = other.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired := NewJWTManager(JWTConfig{AccessSecret: "a", RefreshSecret: "r", AccessTTL: -time.Minute, RefreshTTL: -time.Minute})
	old, err := expired.GeneratePair(1, "USER")
	require.NoError(t, err)
	_, err = m.ParseAccess(old.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
	_, err = m.ParseRefresh(old.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}
