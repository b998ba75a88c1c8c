// Package rbac provides role-based access control for tenants.
//
// # Overview
//
// Users hold roles through their tenant accounts, and roles grant permissions:
//
//	user_tenant_accounts -> user_tenant_account_roles -> user_roles
//	user_roles -> user_role_permissions -> permissions
//
// A role with a tenant id is visible to that tenant only. A role without one is a
// default (global) role visible to every tenant; default roles are created from the
// embedded permission catalog at start-up and identified by their RoleType.
//
// # Permission actions
//
// Permissions are addressed by their action, a dotted lower-case identifier such as
// "platform.roles.read". Actions are normalized (trimmed and lower-cased) when they
// are written and again on every check, so matching is case-insensitive:
//
//	allowed, err := checker.HasAny(ctx, tenantID, userID, []string{"Platform.Roles.Read"})
//
// # Checks
//
// Checker answers membership questions directly in the database, bounded to a
// single row (HasAny) or a single count (HasEach). Nothing is cached; every call is
// a fresh read that joins the caller's transaction when one is open.
//
// The empty permission set is vacuous: HasEach(nil) is true and HasAny(nil) is
// false, and neither touches the database.
//
// AccessChecker is the request-scoped form that reads tenant and user from the
// context. PermissionMiddleware guards HTTP routes with it:
//
//	router.Handle("/roles", pm.RequireAny(rbac.PermRolesRead)(handler))
//
// # Archival
//
// Roles are never deleted. RoleService.ArchiveOneForTenant archives a role with a
// single compare-and-swap on its version; a stale version yields a conflict and
// leaves the row untouched.
package rbac
