// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package rbac

import "context"

// # Matrix Data Access

// RolePermissionRepository defines the data access contract for the
// role → permission matrix.
type RolePermissionRepository interface {

	/*
		List returns every matrix row.

		Parameters:
		  - context: context.Context

		Returns:
		  - []*RolePermission: All rows
		  - error: Retrieval failures
	*/
	List(context context.Context) ([]*RolePermission, error)

	/*
		ListByRole returns the matrix rows for one role.

		Parameters:
		  - context: context.Context
		  - role: string

		Returns:
		  - []*RolePermission: Matching rows
		  - error: Retrieval failures
	*/
	ListByRole(context context.Context, role string) ([]*RolePermission, error)

	/*
		Insert adds one matrix row. Duplicate rows are ignored so the
		reconciler can re-assert invariants blindly.

		Parameters:
		  - context: context.Context
		  - row: *RolePermission

		Returns:
		  - error: Persistence failures
	*/
	Insert(context context.Context, row *RolePermission) error

	/*
		Delete removes one matrix row identified by its natural key.

		Parameters:
		  - context: context.Context
		  - role: string
		  - resource: string
		  - permission: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, role, resource, permission string) error

	// DeleteByRole removes every row of one role, for resets.
	DeleteByRole(context context.Context, role string) error

	// Count returns the total number of matrix rows.
	Count(context context.Context) (int64, error)
}

// # Role Record Access

// UserRoleRepository defines the data access contract for per-user role records.
type UserRoleRepository interface {

	/*
		Find returns the role recorded for the user.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - string: Role name
		  - error: apperr.NotFound when no record exists
	*/
	Find(context context.Context, userID string) (string, error)

	/*
		Upsert records the user's role, replacing any previous record.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - role: string

		Returns:
		  - error: Persistence failures
	*/
	Upsert(context context.Context, userID, role string) error

	// Delete removes the user's role record, reverting them to viewer.
	Delete(context context.Context, userID string) error
}
