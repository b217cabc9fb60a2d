package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	grants   []RoleModuleGrant
	err      error
	replaced map[Role]ModuleAccessMap
}

func (s *stubRepo) ListGrants(ctx context.Context) ([]RoleModuleGrant, error) {
	return s.grants, s.err
}

func (s *stubRepo) RoleGrants(ctx context.Context, role Role) ([]RoleModuleGrant, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []RoleModuleGrant
	for _, g := range s.grants {
		if g.Role == role {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubRepo) ReplaceRoleGrants(ctx context.Context, role Role, access ModuleAccessMap) error {
	if s.replaced == nil {
		s.replaced = make(map[Role]ModuleAccessMap)
	}
	s.replaced[role] = access
	return s.err
}

func TestModuleAccessOverridesDefaults(t *testing.T) {
	repo := &stubRepo{grants: []RoleModuleGrant{
		{Role: RoleClientViewer, Module: ModuleAnalytics, Enabled: true},
		{Role: RoleClientViewer, Module: ModuleReports, Enabled: false},
		{Role: RoleClientViewer, Module: "retired_module", Enabled: true},
		{Role: RoleStaff, Module: ModuleBilling, Enabled: true},
	}}
	svc := NewService(repo)

	access, err := svc.ModuleAccess(context.Background(), RoleClientViewer)
	require.NoError(t, err)
	assert.True(t, access.Allows(ModuleAnalytics))
	assert.False(t, access.Allows(ModuleReports))
	assert.True(t, access.Allows(ModuleDashboard))
	assert.False(t, access.Allows(ModuleBilling))
	_, stale := access["retired_module"]
	assert.False(t, stale)
}

func TestModuleAccessWithoutRepositoryUsesDefaults(t *testing.T) {
	access, err := NewService(nil).ModuleAccess(context.Background(), RoleManager)
	require.NoError(t, err)
	assert.Equal(t, DefaultModuleAccess(RoleManager), access)
}

func TestModuleAccessRejectsUnknownRole(t *testing.T) {
	_, err := NewService(nil).ModuleAccess(context.Background(), Role("root"))
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestModuleAccessWrapsRepositoryError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewService(&stubRepo{err: boom}).ModuleAccess(context.Background(), RoleStaff)
	assert.ErrorIs(t, err, boom)
}

func TestMatrixAppliesGrants(t *testing.T) {
	repo := &stubRepo{grants: []RoleModuleGrant{{Role: RoleStaff, Module: ModuleTeam, Enabled: true}}}
	matrix, err := NewService(repo).Matrix(context.Background())
	require.NoError(t, err)
	assert.Len(t, matrix, len(Roles()))
	assert.True(t, matrix[RoleStaff].Allows(ModuleTeam))
	assert.False(t, matrix[RoleClientViewer].Allows(ModuleTeam))
}

func TestSetRoleModules(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	require.NoError(t, svc.SetRoleModules(context.Background(), RoleStaff, []ModuleKey{ModuleDashboard, ModuleTasks}))
	saved := repo.replaced[RoleStaff]
	assert.Len(t, saved, len(Modules()))
	assert.Equal(t, []ModuleKey{ModuleDashboard, ModuleTasks}, saved.Granted())

	err := svc.SetRoleModules(context.Background(), RoleStaff, []ModuleKey{"payroll"})
	assert.ErrorIs(t, err, ErrUnknownModule)
}
