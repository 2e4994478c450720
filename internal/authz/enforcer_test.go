package authz

import (
	"testing"

	"geounity/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePermissions(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	tests := []struct {
		role model.UserRole
		obj  string
		act  string
		want bool
	}{
		{model.RoleModerator, ObjReports, ActModerate, true},
		{model.RoleModerator, ObjDebates, ActModerate, true},
		{model.RoleModerator, ObjCommunityRequests, ActReview, true},
		{model.RoleModerator, ObjContent, ActManage, false},
		{model.RoleModerator, ObjOrganizations, ActWrite, false},
		{model.RoleAdmin, ObjContent, ActManage, true},
		{model.RoleAdmin, ObjReports, ActRead, true},
		{model.RoleAdmin, ObjCommunityRequests, ActReview, true},
		{model.RoleAdmin, ObjCategories, ActWrite, true},
		{model.RoleUser, ObjReports, ActRead, false},
		{model.RoleUser, ObjContent, ActManage, false},
		{model.RoleGuest, ObjDebates, ActModerate, false},
		{model.RoleBot, ObjOrganizations, ActWrite, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+tt.obj+"/"+tt.act, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Can(tt.role, tt.obj, tt.act))
		})
	}
}

func TestAllowedAnonymous(t *testing.T) {
	e := MustNew()
	assert.False(t, e.Allowed(nil, ObjContent, ActManage))
	assert.True(t, e.Allowed(&model.User{Role: model.RoleAdmin}, ObjContent, ActManage))
}

func TestLoadPolicyRejectsGarbage(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	assert.Error(t, loadPolicy(e.enforcer, "x, y"))
}
