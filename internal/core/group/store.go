// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package group

import "context"

// Repository defines the data access contract for groups and assignments.
type Repository interface {

	/*
		List returns a paginated list of groups with member counts.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []*Group: Slice of groups
		  - int: Total record count
		  - error: Retrieval failures
	*/
	List(context context.Context, limit, offset int) ([]*Group, int, error)

	/*
		FindByID retrieves a single group by its primary key.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Group: Hydrated entity
		  - error: apperr.NotFound when absent
	*/
	FindByID(context context.Context, id string) (*Group, error)

	/*
		FindByName retrieves a group by its unique name.

		Parameters:
		  - context: context.Context
		  - name: string

		Returns:
		  - *Group: Hydrated entity
		  - error: apperr.NotFound when absent
	*/
	FindByName(context context.Context, name string) (*Group, error)

	/*
		Create inserts a new group record.

		Parameters:
		  - context: context.Context
		  - group: *Group

		Returns:
		  - error: apperr.Conflict on duplicate name, other persistence failures
	*/
	Create(context context.Context, group *Group) error

	/*
		Update modifies a group's name and description.

		Parameters:
		  - context: context.Context
		  - group: *Group

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, group *Group) error

	/*
		Delete removes a group. Assignments and workflow shares referencing
		the group are removed by foreign-key cascade.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, id string) error

	/*
		ListMembers returns every user assigned to a group.

		Parameters:
		  - context: context.Context
		  - groupID: string

		Returns:
		  - []*Assignment: Membership rows with denormalized usernames
		  - error: Retrieval failures
	*/
	ListMembers(context context.Context, groupID string) ([]*Assignment, error)

	/*
		AddMember assigns a user to a group. Re-assigning is a no-op.

		Parameters:
		  - context: context.Context
		  - groupID: string
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	AddMember(context context.Context, groupID, userID string) error

	/*
		RemoveMember removes one user's assignment.

		Parameters:
		  - context: context.Context
		  - groupID: string
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	RemoveMember(context context.Context, groupID, userID string) error

	/*
		GroupIDsForUser returns the IDs of every group the user belongs to.
		Feeds share resolution in the authorization engine.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Group IDs, empty when the user has no assignments
		  - error: Retrieval failures
	*/
	GroupIDsForUser(context context.Context, userID string) ([]string, error)
}
