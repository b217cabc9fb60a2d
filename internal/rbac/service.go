package rbac

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// RepositoryPort defines persistence for role module grants.
type RepositoryPort interface {
	ListGrants(ctx context.Context) ([]RoleModuleGrant, error)
	RoleGrants(ctx context.Context, role Role) ([]RoleModuleGrant, error)
	ReplaceRoleGrants(ctx context.Context, role Role, access ModuleAccessMap) error
}

// Service orchestrates role module grants.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service. A nil repository serves the built-in defaults.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ModuleAccess builds the module map for role: built-in defaults overridden by
// stored grants.
func (s *Service) ModuleAccess(ctx context.Context, role Role) (ModuleAccessMap, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}
	access := DefaultModuleAccess(role)
	if s == nil || s.repo == nil {
		return access, nil
	}
	grants, err := s.repo.RoleGrants(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("rbac: role grants: %w", err)
	}
	for _, g := range grants {
		if g.Module.Valid() {
			access[g.Module] = g.Enabled
		}
	}
	return access, nil
}

// Matrix returns the effective module map of every role.
func (s *Service) Matrix(ctx context.Context) (map[Role]ModuleAccessMap, error) {
	matrix := make(map[Role]ModuleAccessMap, len(roleOrder))
	for _, role := range roleOrder {
		matrix[role] = DefaultModuleAccess(role)
	}
	if s == nil || s.repo == nil {
		return matrix, nil
	}
	grants, err := s.repo.ListGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list grants: %w", err)
	}
	for _, g := range grants {
		access, ok := matrix[g.Role]
		if !ok || !g.Module.Valid() {
			continue
		}
		access[g.Module] = g.Enabled
	}
	return matrix, nil
}

// SetRoleModules replaces the grants of role with exactly the enabled modules.
func (s *Service) SetRoleModules(ctx context.Context, role Role, enabled []ModuleKey) error {
	if !role.Valid() {
		return ErrUnknownRole
	}
	if s == nil || s.repo == nil {
		return errors.New("rbac: repository not configured")
	}
	access := make(ModuleAccessMap, len(moduleOrder))
	for _, key := range moduleOrder {
		access[key] = false
	}
	for _, key := range enabled {
		if !key.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownModule, key)
		}
		access[key] = true
	}
	return s.repo.ReplaceRoleGrants(ctx, role, access)
}
