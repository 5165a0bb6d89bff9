// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package workflow manages automation workflows, their ordered steps, and
group-share grants.

A workflow is a named, ordered pipeline of script steps owned by one user.
Steps are embedded in the workflow record as a JSON document rather than a
separate table; every mutation rewrites the whole list, which keeps the
ordering invariant enforceable in one place.

# Core Responsibility

  - Lifecycle: Defines the [Workflow] entity and its CRUD operations.
  - Ordering: Keeps step order values unique and, after removal or reorder,
    contiguous from 1.
  - Sharing: Maintains per-group [Share] grants consumed by the
    authorization engine.
*/
package workflow

import "time"

// # Core Entities

// Workflow represents one automation pipeline and its embedded steps.
type Workflow struct {
	ID          string    `json:"id"` // UUIDv7
	OwnerID     string    `json:"owner_user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Steps       []*Step   `json:"steps"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Step is one script invocation inside a workflow.
//
// The ID is server-generated and immutable; it never comes from input.
// Last* fields carry the outcome of the most recent execution and are
// written back by the runner regardless of success.
type Step struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Order          int               `json:"order"`
	ScriptType     string            `json:"script_type"`
	ScriptFilename string            `json:"script_filename,omitempty"`
	RunCommand     string            `json:"run_command,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	IsActive       bool              `json:"is_active"`
	DirectoryName  string            `json:"directory_name,omitempty"`

	LastStatus        string     `json:"last_status,omitempty"`
	LastReturnCode    *int       `json:"last_return_code,omitempty"`
	LastOutput        string     `json:"last_output,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastRunStartedAt  *time.Time `json:"last_run_started_at,omitempty"`
	LastRunEndedAt    *time.Time `json:"last_run_ended_at,omitempty"`
	LastExecutionTime *float64   `json:"last_execution_time,omitempty"`
}

// Share grants one permission on one workflow to every member of a group.
type Share struct {
	WorkflowID string    `json:"workflow_id"`
	GroupID    string    `json:"group_id"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// # Field Identifiers

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldOrder       = "order"
	FieldOrders      = "orders"
	FieldScriptType  = "script_type"
	FieldRunCommand  = "run_command"
	FieldPermission  = "permission"
	FieldMessage     = "message"
)
