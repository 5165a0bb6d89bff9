// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Can manage workflows, users, and groups within the permission matrix
	RoleManager UserRole = "manager"

	// Default role; read-only access plus workflow execution
	RoleViewer UserRole = "viewer"
)

// IsValid reports whether the role is one of the three known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}

// # Permission Vocabulary

// Operations that can be granted on a resource type.
const (
	PermissionRead    = "read"
	PermissionWrite   = "write"
	PermissionExecute = "execute"
	PermissionDelete  = "delete"
)

// Resource types the permission matrix governs.
const (
	ResourceWorkflow = "workflow"
	ResourceUser     = "user"
	ResourceGroup    = "group"
	ResourceSystem   = "system"
)

// Permissions lists every grantable operation, in canonical order.
func Permissions() []string {
	return []string{PermissionRead, PermissionWrite, PermissionExecute, PermissionDelete}
}

// Resources lists every governed resource type, in canonical order.
func Resources() []string {
	return []string{ResourceWorkflow, ResourceUser, ResourceGroup, ResourceSystem}
}
