// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package group

import (
	"context"
	"fmt"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/validate"
	"github.com/taibuivan/flowra/pkg/pagination"
	"github.com/taibuivan/flowra/pkg/uuid"
)

// UserChecker verifies that a user account exists before assignment.
// Implemented by the auth user repository.
type UserChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Service implements the group management use cases.
type Service struct {
	groupRepository Repository
	userChecker     UserChecker
}

// NewService constructs a new group [Service] with necessary dependencies.
func NewService(repository Repository, users UserChecker) *Service {
	return &Service{
		groupRepository: repository,
		userChecker:     users,
	}
}

// # Group Lifecycle

/*
Create registers a new group with a unique name.

Parameters:
  - context: context.Context
  - name: string
  - description: string

Returns:
  - *Group: The created group
  - err: Validation failures or apperr.Conflict on duplicate name
*/
func (service *Service) Create(context context.Context, name, description string) (*Group, error) {

	v := &validate.Validator{}
	v.Required(FieldName, name).MaxLen(FieldName, name, 100)
	v.MaxLen(FieldDescription, description, 500)
	if err := v.Err(); err != nil {
		return nil, err
	}

	// Friendly conflict check before the database unique index kicks in
	if _, err := service.groupRepository.FindByName(context, name); err == nil {
		return nil, apperr.Conflict("A group with this name already exists")
	}

	group := &Group{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}

	if err := service.groupRepository.Create(context, group); err != nil {
		return nil, fmt.Errorf("group_service_create_failed: %w", err)
	}

	return group, nil
}

/*
Get retrieves one group by ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Group: The group
  - err: apperr.NotFound when absent
*/
func (service *Service) Get(context context.Context, id string) (*Group, error) {
	return service.groupRepository.FindByID(context, id)
}

/*
List returns a page of groups.

Parameters:
  - context: context.Context
  - params: pagination.Params

Returns:
  - []*Group: The page
  - pagination.Meta: Page metadata
  - err: Retrieval failures
*/
func (service *Service) List(context context.Context, params pagination.Params) ([]*Group, pagination.Meta, error) {

	groups, total, err := service.groupRepository.List(context, params.Limit, params.Offset())
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("group_service_list_failed: %w", err)
	}

	return groups, pagination.NewMeta(params.Page, params.Limit, total), nil
}

/*
Update renames a group or changes its description.

Parameters:
  - context: context.Context
  - id: string
  - name: string
  - description: string

Returns:
  - *Group: The updated group
  - err: Validation failures, apperr.NotFound, or rename conflicts
*/
func (service *Service) Update(context context.Context, id, name, description string) (*Group, error) {

	v := &validate.Validator{}
	v.Required(FieldName, name).MaxLen(FieldName, name, 100)
	v.MaxLen(FieldDescription, description, 500)
	if err := v.Err(); err != nil {
		return nil, err
	}

	group, err := service.groupRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	// Renaming to a name held by a different group is a conflict
	if name != group.Name {
		if existing, err := service.groupRepository.FindByName(context, name); err == nil && existing.ID != id {
			return nil, apperr.Conflict("A group with this name already exists")
		}
	}

	group.Name = name
	group.Description = description

	if err := service.groupRepository.Update(context, group); err != nil {
		return nil, fmt.Errorf("group_service_update_failed: %w", err)
	}

	return group, nil
}

/*
Delete removes a group.

Description: The store cascades the removal to assignments and workflow
shares, so access granted through this group ends immediately.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - err: apperr.NotFound when absent, persistence failures
*/
func (service *Service) Delete(context context.Context, id string) error {

	if _, err := service.groupRepository.FindByID(context, id); err != nil {
		return err
	}

	if err := service.groupRepository.Delete(context, id); err != nil {
		return fmt.Errorf("group_service_delete_failed: %w", err)
	}

	return nil
}

// # Membership

/*
AssignUser adds a user to a group. Assigning an existing member is a no-op.

Parameters:
  - context: context.Context
  - groupID: string
  - userID: string

Returns:
  - err: apperr.NotFound when the group or user is absent
*/
func (service *Service) AssignUser(context context.Context, groupID, userID string) error {

	if _, err := service.groupRepository.FindByID(context, groupID); err != nil {
		return err
	}

	exists, err := service.userChecker.UserExists(context, userID)
	if err != nil {
		return fmt.Errorf("group_service_user_lookup_failed: %w", err)
	}
	if !exists {
		return apperr.NotFound("User")
	}

	if err := service.groupRepository.AddMember(context, groupID, userID); err != nil {
		return fmt.Errorf("group_service_assign_failed: %w", err)
	}

	return nil
}

/*
UnassignUser removes a user from a group.

Parameters:
  - context: context.Context
  - groupID: string
  - userID: string

Returns:
  - err: apperr.NotFound when the group is absent
*/
func (service *Service) UnassignUser(context context.Context, groupID, userID string) error {

	if _, err := service.groupRepository.FindByID(context, groupID); err != nil {
		return err
	}

	if err := service.groupRepository.RemoveMember(context, groupID, userID); err != nil {
		return fmt.Errorf("group_service_unassign_failed: %w", err)
	}

	return nil
}

/*
Members lists the users assigned to a group.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - []*Assignment: Membership rows
  - err: apperr.NotFound when the group is absent
*/
func (service *Service) Members(context context.Context, groupID string) ([]*Assignment, error) {

	if _, err := service.groupRepository.FindByID(context, groupID); err != nil {
		return nil, err
	}

	return service.groupRepository.ListMembers(context, groupID)
}

// GroupExists reports whether a group with the given ID exists. Share
// recording in the workflow service checks this before persisting a grant.
func (service *Service) GroupExists(context context.Context, groupID string) (bool, error) {
	_, err := service.groupRepository.FindByID(context, groupID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

/*
GroupIDsForUser returns the IDs of every group the user belongs to.

Description: Satisfies the authorization engine's group reader contract;
share resolution calls this for the requesting principal.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Group IDs
  - err: Retrieval failures
*/
func (service *Service) GroupIDsForUser(context context.Context, userID string) ([]string, error) {
	return service.groupRepository.GroupIDsForUser(context, userID)
}
