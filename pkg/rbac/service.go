package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

const domain = "rbac"

// RoleRepository is the persistence surface RoleService needs
type RoleRepository interface {
	FindDefaultByType(ctx context.Context, roleType RoleType) (*Role, error)
	FindOneForTenant(ctx context.Context, tenantID, id string) (*Role, error)
	ListForTenant(ctx context.Context, tenantID string, page Page) ([]Role, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role, version int) error
	Archive(ctx context.Context, id string, version int) error
	SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionFinder resolves permission actions
type PermissionFinder interface {
	FindByActions(ctx context.Context, actions []string) ([]Permission, error)
}

// RoleService implements tenant scoped role operations. The tenant is always the
// one carried by the context.
type RoleService struct {
	roles RoleRepository
	perms PermissionFinder
	tx    postgres.TxRunner
}

// NewRoleService creates a role service
func NewRoleService(roles RoleRepository, perms PermissionFinder, tx postgres.TxRunner) *RoleService {
	return &RoleService{roles: roles, perms: perms, tx: tx}
}

// FindDefaultUserRole returns the global REGULAR_USER role
func (s *RoleService) FindDefaultUserRole(ctx context.Context) (*Role, error) {
	return s.findDefault(ctx, RoleTypeRegularUser)
}

// FindDefaultAdminRole returns the global ADMIN role
func (s *RoleService) FindDefaultAdminRole(ctx context.Context) (*Role, error) {
	return s.findDefault(ctx, RoleTypeAdmin)
}

// findDefault treats a missing default role as a broken installation.
func (s *RoleService) findDefault(ctx context.Context, roleType RoleType) (*Role, error) {
	role, err := s.roles.FindDefaultByType(ctx, roleType)
	if errors.Is(err, postgres.ErrNotFound) {
		err = apperr.Internal(domain, "default %s role is missing", roleType)
		observability.FromContext(ctx).WithError(err).Error("default role lookup failed")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// FindOneForTenant returns a role owned by the ambient tenant or global
func (s *RoleService) FindOneForTenant(ctx context.Context, id string) (*Role, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound(domain, "UserRole", id)
	}

	role, err := s.roles.FindOneForTenant(ctx, tenantID, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, apperr.NotFound(domain, "UserRole", id)
	}
	return role, err
}

// ListForTenant lists the roles visible to the ambient tenant
func (s *RoleService) ListForTenant(ctx context.Context, page Page) ([]Role, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.roles.ListForTenant(ctx, tenantID, page)
}

// CreateForTenant creates a role owned by the ambient tenant
func (s *RoleService) CreateForTenant(ctx context.Context, in RoleInput) (*Role, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	role := &Role{Name: strings.TrimSpace(in.Name), Description: in.Description, TenantID: &tenantID}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		perms, err := s.resolvePermissions(ctx, in.Permissions)
		if err != nil {
			return err
		}
		if err := s.roles.Create(ctx, role); err != nil {
			return err
		}
		role.Permissions = perms
		return s.roles.SetPermissions(ctx, role.ID, permissionIDs(perms))
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateForTenant rewrites a tenant role guarded by its version
func (s *RoleService) UpdateForTenant(ctx context.Context, id string, version int, in RoleInput) (*Role, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var role *Role
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.findWritable(ctx, id)
		if err != nil {
			return err
		}

		perms, err := s.resolvePermissions(ctx, in.Permissions)
		if err != nil {
			return err
		}

		role.Name = strings.TrimSpace(in.Name)
		role.Description = in.Description
		if err := s.roles.Update(ctx, role, version); err != nil {
			return versionedError(err, id, version)
		}
		role.Permissions = perms
		return s.roles.SetPermissions(ctx, role.ID, permissionIDs(perms))
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ArchiveOneForTenant soft-deletes a role of the ambient tenant. An unknown id is
// NotFound and a stale version is a Conflict that leaves the row untouched. Global
// default roles resolve like any other role but are Forbidden: tenant signup needs
// them to stay live.
func (s *RoleService) ArchiveOneForTenant(ctx context.Context, id string, version int) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.findWritable(ctx, id); err != nil {
			return err
		}
		if err := s.roles.Archive(ctx, id, version); err != nil {
			return versionedError(err, id, version)
		}
		observability.FromContext(ctx).WithField("role_id", id).Info("role archived")
		return nil
	})
}

// findWritable resolves a role in tenant scope; default roles are read-only to tenants.
func (s *RoleService) findWritable(ctx context.Context, id string) (*Role, error) {
	role, err := s.FindOneForTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsDefault() {
		return nil, apperr.Forbidden(domain, "default roles cannot be modified by a tenant")
	}
	return role, nil
}

func (s *RoleService) resolvePermissions(ctx context.Context, actions []string) ([]Permission, error) {
	wanted := normalizeActions(actions)
	perms, err := s.perms.FindByActions(ctx, wanted)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(wanted) {
		found := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			found[p.Action] = struct{}{}
		}
		for _, a := range wanted {
			if _, ok := found[a]; !ok {
				return nil, apperr.Invalid(domain, "unknown permission "+a)
			}
		}
	}
	return perms, nil
}

func versionedError(err error, id string, version int) error {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return apperr.NotFound(domain, "UserRole", id)
	case errors.Is(err, postgres.ErrVersionMismatch):
		return apperr.VersionConflict(domain, "UserRole", id, version)
	}
	return err
}

func requireTenant(ctx context.Context) (string, error) {
	tenantID := contextkeys.TenantID(ctx)
	if tenantID == "" {
		return "", apperr.Invalid(domain, "tenant id is required")
	}
	return tenantID, nil
}

func (in RoleInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid(domain, "name is required")
	}
	if len(name) > 127 {
		return apperr.Invalid(domain, "name must be at most 127 characters")
	}
	return nil
}

func permissionIDs(perms []Permission) []string {
	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids
}
