// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/pkg/uuid"
)

// # Contracts & Types

// GroupReader resolves group memberships during share resolution.
// Implemented by the group service.
type GroupReader interface {

	// GroupIDsForUser returns the IDs of every group the user belongs to.
	GroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// UserDirectory exposes the permanent-admin flag of the users table.
// Implemented by the auth user repository.
type UserDirectory interface {

	// IsPermanentAdmin reports whether the account carries the monotonic
	// permanent-admin flag.
	IsPermanentAdmin(ctx context.Context, userID string) (bool, error)

	// SetPermanentAdmin raises the permanent-admin flag. There is no way to
	// clear it; the escalation is one-way.
	SetPermanentAdmin(ctx context.Context, userID string) error
}

// Service implements the authorization engine use cases.
type Service struct {
	matrixRepository   RolePermissionRepository
	userRoleRepository UserRoleRepository
	userDirectory      UserDirectory
	groupReader        GroupReader
	logger             *slog.Logger
}

// NewService constructs a new rbac [Service] with necessary dependencies.
func NewService(
	matrixRepo RolePermissionRepository,
	userRoleRepo UserRoleRepository,
	users UserDirectory,
	groups GroupReader,
	logger *slog.Logger,
) *Service {
	return &Service{
		matrixRepository:   matrixRepo,
		userRoleRepository: userRoleRepo,
		userDirectory:      users,
		groupReader:        groups,
		logger:             logger,
	}
}

// # Startup Reconciliation

/*
Reconcile enforces the matrix invariants at startup.

Description: An empty table receives the full default matrix. On every boot,
regardless, the sixteen admin rows are re-asserted so a damaged matrix heals
itself; manager and viewer customizations survive restarts.

Parameters:
  - context: context.Context

Returns:
  - err: Seeding or reconciliation failures
*/
func (service *Service) Reconcile(context context.Context) error {

	total, err := service.matrixRepository.Count(context)
	if err != nil {
		return fmt.Errorf("rbac_service_reconcile_count_failed: %w", err)
	}

	// Fresh installation: seed every role's default rows
	if total == 0 {
		for role := range defaultMatrix {
			if err := service.seedRole(context, role); err != nil {
				return err
			}
		}
		service.logger.InfoContext(context, "rbac_matrix_seeded")
		return nil
	}

	// Established installation: restore the admin invariant only
	if err := service.seedRole(context, string(sec.RoleAdmin)); err != nil {
		return err
	}

	service.logger.InfoContext(context, "rbac_matrix_reconciled")
	return nil
}

// seedRole inserts the default rows for one role. Inserts ignore duplicates,
// so re-seeding an intact role is a no-op.
func (service *Service) seedRole(context context.Context, role string) error {
	for resource, permissions := range defaultMatrix[role] {
		for _, permission := range permissions {
			row := &RolePermission{
				ID:         uuid.New(),
				Role:       role,
				Resource:   resource,
				Permission: permission,
			}
			if err := service.matrixRepository.Insert(context, row); err != nil {
				return fmt.Errorf("rbac_service_seed_failed: %w", err)
			}
		}
	}
	return nil
}

// # Claims Snapshot

/*
Snapshot resolves the user's effective role and its permission map.

Description: Produces the grant snapshot embedded in access-token claims at
mint time. Users with no role record are viewers.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - string: Effective role
  - map[string][]string: resource type → permission list
  - err: Retrieval failures
*/
func (service *Service) Snapshot(context context.Context, userID string) (string, map[string][]string, error) {

	role, err := service.userRoleRepository.Find(context, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			role = string(sec.RoleViewer)
		} else {
			return "", nil, fmt.Errorf("rbac_service_snapshot_failed: %w", err)
		}
	}

	permissions, err := service.PermissionsForRole(context, role)
	if err != nil {
		return "", nil, err
	}

	return role, permissions, nil
}

/*
PermissionsForRole resolves the matrix rows of one role into a permission map.

Parameters:
  - context: context.Context
  - role: string

Returns:
  - map[string][]string: resource type → permission list
  - err: Retrieval failures
*/
func (service *Service) PermissionsForRole(context context.Context, role string) (map[string][]string, error) {

	rows, err := service.matrixRepository.ListByRole(context, role)
	if err != nil {
		return nil, fmt.Errorf("rbac_service_permissions_for_role_failed: %w", err)
	}

	permissions := make(map[string][]string)
	for _, row := range rows {
		permissions[row.Resource] = append(permissions[row.Resource], row.Permission)
	}

	return permissions, nil
}

// # Resolution Algorithm

/*
Allow decides whether the principal may perform an operation.

Description: Four-layer resolution. Admins (by role or permanent flag) pass
unconditionally. For a concrete workflow, ownership grants everything and
group shares grant their effective expansion; a share can therefore confer
execute on a viewer whose role layer only grants read. All other resources,
and workflow operations with no concrete target, fall through to the
role-layer permission snapshot in the claims.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - operation: string (read|write|execute|delete)
  - resource: string (workflow|user|group|system)
  - acl: *WorkflowACL (nil when no concrete workflow is targeted)

Returns:
  - bool: Allow or deny
  - err: Group membership lookup failures
*/
func (service *Service) Allow(context context.Context, claims *sec.AuthClaims, operation, resource string, acl *WorkflowACL) (bool, error) {

	if claims == nil {
		return false, nil
	}

	// 1. Admin bypass
	if claims.IsAdmin || claims.Role == string(sec.RoleAdmin) {
		return true, nil
	}

	// 2-3. Concrete workflow: ownership, then share expansion
	if resource == sec.ResourceWorkflow && acl != nil {

		if acl.OwnerID == claims.UserID {
			return true, nil
		}

		if len(acl.Shares) > 0 {
			groupIDs, err := service.groupReader.GroupIDsForUser(context, claims.UserID)
			if err != nil {
				return false, fmt.Errorf("rbac_service_group_lookup_failed: %w", err)
			}

			effective := make(map[string]bool)
			for _, groupID := range groupIDs {
				if granted, ok := acl.Shares[groupID]; ok {
					for _, permission := range EffectiveSharePermissions(granted) {
						effective[permission] = true
					}
				}
			}

			if effective[operation] {
				return true, nil
			}
		}

		// Unrelated workflows stay invisible regardless of role grants
		return false, nil
	}

	// 4. Role layer
	return slices.Contains(claims.Permissions[resource], operation), nil
}

// # Role Records

/*
AssignRole records a role for the user without state-machine checks.

Description: Internal entry point for system flows such as the first-user
bootstrap. HTTP traffic goes through [Service.SetRole] instead.

Parameters:
  - context: context.Context
  - userID: string
  - role: string

Returns:
  - err: Validation or persistence failures
*/
func (service *Service) AssignRole(context context.Context, userID, role string) error {
	if !sec.UserRole(role).IsValid() {
		return apperr.ValidationError(fmt.Sprintf("Unknown role %q", role))
	}

	if err := service.userRoleRepository.Upsert(context, userID, role); err != nil {
		return fmt.Errorf("rbac_service_assign_role_failed: %w", err)
	}

	return nil
}

/*
SetRole changes another user's role under the elevation state machine.

Description: Users never change their own role, and permanent administrators
can never be moved off admin. Everything else is a plain upsert; an admin
role set this way is temporary and reversible.

Parameters:
  - context: context.Context
  - actorID: string (authenticated admin performing the change)
  - subjectID: string (user whose role changes)
  - role: string

Returns:
  - err: Validation failures or persistence errors
*/
func (service *Service) SetRole(context context.Context, actorID, subjectID, role string) error {

	if !sec.UserRole(role).IsValid() {
		return apperr.ValidationError(fmt.Sprintf("Unknown role %q", role))
	}

	if actorID == subjectID {
		return apperr.ValidationError("Users cannot change their own role")
	}

	permanent, err := service.userDirectory.IsPermanentAdmin(context, subjectID)
	if err != nil {
		return err
	}
	if permanent && role != string(sec.RoleAdmin) {
		return apperr.ValidationError("Permanent administrators cannot be downgraded")
	}

	if err := service.userRoleRepository.Upsert(context, subjectID, role); err != nil {
		return fmt.Errorf("rbac_service_set_role_failed: %w", err)
	}

	service.logger.InfoContext(context, "rbac_role_changed",
		slog.String("actor_id", actorID),
		slog.String("subject_id", subjectID),
		slog.String("role", role),
	)

	return nil
}

/*
PromotePermanentAdmin raises a user to permanent administrator.

Description: One-way escalation: the flag can never be cleared afterwards.
The subject also receives an explicit admin role record.

Parameters:
  - context: context.Context
  - actorID: string
  - subjectID: string

Returns:
  - err: Validation failures or persistence errors
*/
func (service *Service) PromotePermanentAdmin(context context.Context, actorID, subjectID string) error {

	if actorID == subjectID {
		return apperr.ValidationError("Users cannot change their own role")
	}

	if err := service.userDirectory.SetPermanentAdmin(context, subjectID); err != nil {
		return err
	}

	if err := service.userRoleRepository.Upsert(context, subjectID, string(sec.RoleAdmin)); err != nil {
		return fmt.Errorf("rbac_service_promote_failed: %w", err)
	}

	service.logger.InfoContext(context, "rbac_permanent_admin_promoted",
		slog.String("actor_id", actorID),
		slog.String("subject_id", subjectID),
	)

	return nil
}

// # Matrix Administration

// ListPermissions returns every matrix row.
func (service *Service) ListPermissions(context context.Context) ([]*RolePermission, error) {
	return service.matrixRepository.List(context)
}

// ListPermissionsByRole returns the matrix rows of one role.
func (service *Service) ListPermissionsByRole(context context.Context, role string) ([]*RolePermission, error) {
	if !sec.UserRole(role).IsValid() {
		return nil, apperr.ValidationError(fmt.Sprintf("Unknown role %q", role))
	}
	return service.matrixRepository.ListByRole(context, role)
}

/*
AddPermission inserts one matrix row for a non-admin role.

Parameters:
  - context: context.Context
  - role: string
  - resource: string
  - permission: string

Returns:
  - *RolePermission: The inserted row
  - err: Validation failures (admin rows included) or persistence errors
*/
func (service *Service) AddPermission(context context.Context, role, resource, permission string) (*RolePermission, error) {
	if err := service.validateMatrixWrite(role, resource, permission); err != nil {
		return nil, err
	}

	row := &RolePermission{
		ID:         uuid.New(),
		Role:       role,
		Resource:   resource,
		Permission: permission,
	}

	if err := service.matrixRepository.Insert(context, row); err != nil {
		return nil, fmt.Errorf("rbac_service_add_permission_failed: %w", err)
	}

	return row, nil
}

/*
RemovePermission deletes one matrix row for a non-admin role.

Parameters:
  - context: context.Context
  - role: string
  - resource: string
  - permission: string

Returns:
  - err: Validation failures (admin rows included) or persistence errors
*/
func (service *Service) RemovePermission(context context.Context, role, resource, permission string) error {
	if err := service.validateMatrixWrite(role, resource, permission); err != nil {
		return err
	}

	if err := service.matrixRepository.Delete(context, role, resource, permission); err != nil {
		return fmt.Errorf("rbac_service_remove_permission_failed: %w", err)
	}

	return nil
}

/*
ResetRole restores one non-admin role to its default matrix rows.

Parameters:
  - context: context.Context
  - role: string

Returns:
  - err: Validation failures (admin included) or persistence errors
*/
func (service *Service) ResetRole(context context.Context, role string) error {
	if role == string(sec.RoleAdmin) {
		return apperr.ValidationError("admin role cannot be modified")
	}
	if !sec.UserRole(role).IsValid() {
		return apperr.ValidationError(fmt.Sprintf("Unknown role %q", role))
	}

	if err := service.matrixRepository.DeleteByRole(context, role); err != nil {
		return fmt.Errorf("rbac_service_reset_role_failed: %w", err)
	}

	return service.seedRole(context, role)
}

// validateMatrixWrite rejects malformed vocabulary and any admin-row mutation.
func (service *Service) validateMatrixWrite(role, resource, permission string) error {
	if role == string(sec.RoleAdmin) {
		return apperr.ValidationError("admin role cannot be modified")
	}
	if !sec.UserRole(role).IsValid() {
		return apperr.ValidationError(fmt.Sprintf("Unknown role %q", role))
	}
	if !slices.Contains(sec.Resources(), resource) {
		return apperr.ValidationError(fmt.Sprintf("Unknown resource type %q", resource))
	}
	if !slices.Contains(sec.Permissions(), permission) {
		return apperr.ValidationError(fmt.Sprintf("Unknown permission %q", permission))
	}
	return nil
}
