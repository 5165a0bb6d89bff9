// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import "context"

// Repository defines the data access contract for workflows and shares.
type Repository interface {

	/*
		Create inserts a new workflow record with its embedded steps.

		Parameters:
		  - context: context.Context
		  - workflow: *Workflow

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, workflow *Workflow) error

	/*
		FindByID retrieves a workflow by its primary key, steps included.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Workflow: Hydrated entity
		  - error: apperr.NotFound when absent
	*/
	FindByID(context context.Context, id string) (*Workflow, error)

	/*
		ListAll returns a page of every workflow. Administrative listing.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []*Workflow: The page
		  - int: Total record count
		  - error: Retrieval failures
	*/
	ListAll(context context.Context, limit, offset int) ([]*Workflow, int, error)

	/*
		ListVisible returns a page of workflows the user owns or can reach
		through a group share.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - limit: int
		  - offset: int

		Returns:
		  - []*Workflow: The page
		  - int: Total record count
		  - error: Retrieval failures
	*/
	ListVisible(context context.Context, userID string, limit, offset int) ([]*Workflow, int, error)

	/*
		Update rewrites a workflow's metadata and full step list.

		Parameters:
		  - context: context.Context
		  - workflow: *Workflow

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, workflow *Workflow) error

	/*
		UpdateSteps rewrites only the embedded step list. Used by the runner
		for post-execution metadata write-back.

		Parameters:
		  - context: context.Context
		  - workflowID: string
		  - steps: []*Step

		Returns:
		  - error: Persistence failures
	*/
	UpdateSteps(context context.Context, workflowID string, steps []*Step) error

	/*
		Delete removes a workflow. Share rows disappear through foreign-key
		cascade.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, id string) error

	/*
		UpsertShare records a group share, updating the permission in place
		when a row for (workflow, group) already exists.

		Parameters:
		  - context: context.Context
		  - share: *Share

		Returns:
		  - error: Persistence failures
	*/
	UpsertShare(context context.Context, share *Share) error

	/*
		DeleteShare removes one group's share row.

		Parameters:
		  - context: context.Context
		  - workflowID: string
		  - groupID: string

		Returns:
		  - error: Persistence failures
	*/
	DeleteShare(context context.Context, workflowID, groupID string) error

	/*
		ListShares returns every share row of one workflow.

		Parameters:
		  - context: context.Context
		  - workflowID: string

		Returns:
		  - []*Share: Share rows
		  - error: Retrieval failures
	*/
	ListShares(context context.Context, workflowID string) ([]*Share, error)
}
