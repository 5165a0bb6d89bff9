// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/platform/validate"
	"github.com/taibuivan/flowra/internal/rbac"
	"github.com/taibuivan/flowra/pkg/pagination"
	"github.com/taibuivan/flowra/pkg/uuid"
)

// # Contracts & Types

// Authorizer decides access per principal and operation. Implemented by the
// authorization engine.
type Authorizer interface {
	Allow(ctx context.Context, claims *sec.AuthClaims, operation, resource string, acl *rbac.WorkflowACL) (bool, error)
}

// GroupChecker verifies that a group exists before a share is recorded.
// Implemented by the group service.
type GroupChecker interface {
	GroupExists(ctx context.Context, groupID string) (bool, error)
}

// StepInput carries caller-supplied step fields. Pointer fields distinguish
// "absent" from zero values; the step ID is never part of input.
type StepInput struct {
	Name           string            `json:"name"`
	Order          *int              `json:"order,omitempty"`
	ScriptType     string            `json:"script_type"`
	ScriptFilename string            `json:"script_filename,omitempty"`
	RunCommand     string            `json:"run_command,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
}

// UpdateInput carries caller-supplied workflow metadata changes.
type UpdateInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// PermissionView summarizes who can reach a workflow and how.
type PermissionView struct {
	WorkflowID string   `json:"workflow_id"`
	OwnerID    string   `json:"owner_user_id"`
	Shares     []*Share `json:"shares"`
}

// Service implements the workflow management use cases.
type Service struct {
	workflowRepository Repository
	stepStorage        StepStorage
	authorizer         Authorizer
	groupChecker       GroupChecker
	logger             *slog.Logger
}

// NewService constructs a new workflow [Service] with necessary dependencies.
func NewService(
	repository Repository,
	storage StepStorage,
	authorizer Authorizer,
	groups GroupChecker,
	logger *slog.Logger,
) *Service {
	return &Service{
		workflowRepository: repository,
		stepStorage:        storage,
		authorizer:         authorizer,
		groupChecker:       groups,
		logger:             logger,
	}
}

// # Authorization Plumbing

// loadACL assembles the concrete ACL of one workflow for share resolution.
func (service *Service) loadACL(context context.Context, workflow *Workflow) (*rbac.WorkflowACL, error) {
	shares, err := service.workflowRepository.ListShares(context, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("workflow_service_shares_failed: %w", err)
	}

	acl := &rbac.WorkflowACL{
		OwnerID: workflow.OwnerID,
		Shares:  make(map[string]string, len(shares)),
	}
	for _, share := range shares {
		acl.Shares[share.GroupID] = share.Permission
	}

	return acl, nil
}

// authorize loads the workflow's ACL and checks one operation for the caller.
func (service *Service) authorize(context context.Context, claims *sec.AuthClaims, operation string, workflow *Workflow) error {
	acl, err := service.loadACL(context, workflow)
	if err != nil {
		return err
	}

	allowed, err := service.authorizer.Allow(context, claims, operation, sec.ResourceWorkflow, acl)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("You do not have permission to perform this action")
	}

	return nil
}

// authorizeRoleLayer checks an operation with no concrete workflow target.
func (service *Service) authorizeRoleLayer(context context.Context, claims *sec.AuthClaims, operation string) error {
	allowed, err := service.authorizer.Allow(context, claims, operation, sec.ResourceWorkflow, nil)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("You do not have permission to perform this action")
	}
	return nil
}

// # Workflow Lifecycle

/*
Create registers a new, empty workflow owned by the caller.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - name: string
  - description: string

Returns:
  - *Workflow: The created workflow
  - err: Authorization or validation failures
*/
func (service *Service) Create(context context.Context, claims *sec.AuthClaims, name, description string) (*Workflow, error) {

	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}
	if err := service.authorizeRoleLayer(context, claims, sec.PermissionWrite); err != nil {
		return nil, err
	}

	v := &validate.Validator{}
	v.Required(FieldName, name).MaxLen(FieldName, name, 200)
	v.MaxLen(FieldDescription, description, 1000)
	if err := v.Err(); err != nil {
		return nil, err
	}

	workflow := &Workflow{
		ID:          uuid.New(),
		OwnerID:     claims.UserID,
		Name:        name,
		Description: description,
		Steps:       []*Step{},
		IsActive:    true,
	}

	if err := service.workflowRepository.Create(context, workflow); err != nil {
		return nil, fmt.Errorf("workflow_service_create_failed: %w", err)
	}

	return workflow, nil
}

/*
Get retrieves one workflow the caller can read.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - id: string

Returns:
  - *Workflow: The workflow, steps sorted by order
  - err: apperr.NotFound or apperr.Forbidden
*/
func (service *Service) Get(context context.Context, claims *sec.AuthClaims, id string) (*Workflow, error) {

	workflow, err := service.workflowRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionRead, workflow); err != nil {
		return nil, err
	}

	SortByOrder(workflow.Steps)
	return workflow, nil
}

/*
List returns the page of workflows visible to the caller.

Description: Administrators see everything; everyone else sees workflows
they own or can reach through a group share.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - params: pagination.Params

Returns:
  - []*Workflow: The page
  - pagination.Meta: Page metadata
  - err: Retrieval failures
*/
func (service *Service) List(context context.Context, claims *sec.AuthClaims, params pagination.Params) ([]*Workflow, pagination.Meta, error) {

	if claims == nil {
		return nil, pagination.Meta{}, apperr.Unauthorized("Authentication required")
	}

	var (
		workflows []*Workflow
		total     int
		err       error
	)

	if claims.IsAdmin || claims.Role == string(sec.RoleAdmin) {
		workflows, total, err = service.workflowRepository.ListAll(context, params.Limit, params.Offset())
	} else {
		workflows, total, err = service.workflowRepository.ListVisible(context, claims.UserID, params.Limit, params.Offset())
	}
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("workflow_service_list_failed: %w", err)
	}

	for _, workflow := range workflows {
		SortByOrder(workflow.Steps)
	}

	return workflows, pagination.NewMeta(params.Page, params.Limit, total), nil
}

/*
Update changes a workflow's metadata.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - id: string
  - input: UpdateInput

Returns:
  - *Workflow: The updated workflow
  - err: Authorization, validation, or persistence failures
*/
func (service *Service) Update(context context.Context, claims *sec.AuthClaims, id string, input UpdateInput) (*Workflow, error) {

	workflow, err := service.workflowRepository.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	if input.Name != nil {
		v := &validate.Validator{}
		v.Required(FieldName, *input.Name).MaxLen(FieldName, *input.Name, 200)
		if err := v.Err(); err != nil {
			return nil, err
		}
		workflow.Name = *input.Name
	}
	if input.Description != nil {
		workflow.Description = *input.Description
	}
	if input.IsActive != nil {
		workflow.IsActive = *input.IsActive
	}

	if err := service.workflowRepository.Update(context, workflow); err != nil {
		return nil, fmt.Errorf("workflow_service_update_failed: %w", err)
	}

	return workflow, nil
}

/*
Delete removes a workflow and, by cascade, all of its share rows.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - id: string

Returns:
  - err: Authorization or persistence failures
*/
func (service *Service) Delete(context context.Context, claims *sec.AuthClaims, id string) error {

	workflow, err := service.workflowRepository.FindByID(context, id)
	if err != nil {
		return err
	}

	if err := service.authorize(context, claims, sec.PermissionDelete, workflow); err != nil {
		return err
	}

	if err := service.workflowRepository.Delete(context, id); err != nil {
		return fmt.Errorf("workflow_service_delete_failed: %w", err)
	}

	return nil
}

// # Step Mutation

/*
AppendStep adds a step to a workflow.

Description: When no order is supplied the step lands one past the current
maximum; a supplied order must not collide. The step receives a
server-generated ID and a filesystem directory; failure to create the
directory is logged but does not fail the append.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - input: StepInput

Returns:
  - *Step: The created step
  - err: Authorization, validation, or persistence failures
*/
func (service *Service) AppendStep(context context.Context, claims *sec.AuthClaims, workflowID string, input StepInput) (*Step, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	v := &validate.Validator{}
	v.Required(FieldName, input.Name).MaxLen(FieldName, input.Name, 200)
	v.Required(FieldScriptType, input.ScriptType)
	if err := v.Err(); err != nil {
		return nil, err
	}

	order := NextOrder(workflow.Steps)
	if input.Order != nil {
		order = *input.Order
		if FindByOrder(workflow.Steps, order) != nil {
			return nil, apperr.ValidationError(fmt.Sprintf("Step order %d is already taken", order))
		}
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	step := &Step{
		ID:             uuid.New(),
		Name:           input.Name,
		Order:          order,
		ScriptType:     input.ScriptType,
		ScriptFilename: input.ScriptFilename,
		RunCommand:     input.RunCommand,
		Dependencies:   input.Dependencies,
		Parameters:     input.Parameters,
		IsActive:       active,
		DirectoryName:  DirectoryNameFor(order, input.Name),
	}

	// Storage failure leaves the step without a directory; scripts can be
	// uploaded later once the backend recovers.
	if _, err := service.stepStorage.EnsureStepDir(workflowID, step.DirectoryName); err != nil {
		service.logger.WarnContext(context, "workflow_step_dir_failed",
			slog.String("workflow_id", workflowID),
			slog.String("step_id", step.ID),
			slog.String("error", err.Error()),
		)
	}

	steps := append(workflow.Steps, step)
	if err := ValidateOrders(steps); err != nil {
		return nil, err
	}

	if err := service.workflowRepository.UpdateSteps(context, workflowID, steps); err != nil {
		return nil, fmt.Errorf("workflow_service_append_step_failed: %w", err)
	}

	return step, nil
}

/*
UpdateStepByOrder modifies the step currently holding the given order.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - order: int
  - input: StepInput

Returns:
  - *Step: The updated step
  - err: Authorization, validation, or persistence failures
*/
func (service *Service) UpdateStepByOrder(context context.Context, claims *sec.AuthClaims, workflowID string, order int, input StepInput) (*Step, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	step := FindByOrder(workflow.Steps, order)
	if step == nil {
		return nil, apperr.NotFound("Step")
	}

	return service.applyStepUpdate(context, workflow, step, input)
}

/*
UpdateStepByID modifies the step with the given immutable ID.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - stepID: string
  - input: StepInput

Returns:
  - *Step: The updated step
  - err: Authorization, validation, or persistence failures
*/
func (service *Service) UpdateStepByID(context context.Context, claims *sec.AuthClaims, workflowID, stepID string, input StepInput) (*Step, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	step := FindByStepID(workflow.Steps, stepID)
	if step == nil {
		return nil, apperr.NotFound("Step")
	}

	return service.applyStepUpdate(context, workflow, step, input)
}

// applyStepUpdate mutates one step in place, re-checks the ordering
// invariant, and persists the full list.
func (service *Service) applyStepUpdate(context context.Context, workflow *Workflow, step *Step, input StepInput) (*Step, error) {

	if input.Name != "" {
		step.Name = input.Name
	}
	if input.ScriptType != "" {
		step.ScriptType = input.ScriptType
	}
	if input.ScriptFilename != "" {
		step.ScriptFilename = input.ScriptFilename
	}
	if input.RunCommand != "" {
		step.RunCommand = input.RunCommand
	}
	if input.Dependencies != nil {
		step.Dependencies = input.Dependencies
	}
	if input.Parameters != nil {
		step.Parameters = input.Parameters
	}
	if input.IsActive != nil {
		step.IsActive = *input.IsActive
	}

	if input.Order != nil && *input.Order != step.Order {
		if colliding := FindByOrder(workflow.Steps, *input.Order); colliding != nil && colliding.ID != step.ID {
			return nil, apperr.ValidationError(fmt.Sprintf("Step order %d is already taken", *input.Order))
		}
		step.Order = *input.Order
	}

	if err := ValidateOrders(workflow.Steps); err != nil {
		return nil, err
	}

	if err := service.workflowRepository.UpdateSteps(context, workflow.ID, workflow.Steps); err != nil {
		return nil, fmt.Errorf("workflow_service_update_step_failed: %w", err)
	}

	return step, nil
}

/*
DeleteStepByOrder removes the step at the given order and compacts the
remaining steps back to a contiguous 1..N sequence.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - order: int

Returns:
  - err: Authorization or persistence failures
*/
func (service *Service) DeleteStepByOrder(context context.Context, claims *sec.AuthClaims, workflowID string, order int) error {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return err
	}

	target := FindByOrder(workflow.Steps, order)
	if target == nil {
		return apperr.NotFound("Step")
	}

	remaining := make([]*Step, 0, len(workflow.Steps)-1)
	for _, step := range workflow.Steps {
		if step.ID != target.ID {
			remaining = append(remaining, step)
		}
	}

	CompactOrders(remaining)
	if err := ValidateOrders(remaining); err != nil {
		return err
	}

	if err := service.workflowRepository.UpdateSteps(context, workflowID, remaining); err != nil {
		return fmt.Errorf("workflow_service_delete_step_failed: %w", err)
	}

	return nil
}

/*
Reorder renumbers all steps 1..N following the supplied sequence of current
order values.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - sequence: []int (permutation of current orders)

Returns:
  - []*Step: Steps in their new order
  - err: Authorization, validation, or persistence failures
*/
func (service *Service) Reorder(context context.Context, claims *sec.AuthClaims, workflowID string, sequence []int) ([]*Step, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	if err := ApplyReorder(workflow.Steps, sequence); err != nil {
		return nil, err
	}
	if err := ValidateOrders(workflow.Steps); err != nil {
		return nil, err
	}

	if err := service.workflowRepository.UpdateSteps(context, workflowID, workflow.Steps); err != nil {
		return nil, fmt.Errorf("workflow_service_reorder_failed: %w", err)
	}

	SortByOrder(workflow.Steps)
	return workflow.Steps, nil
}

/*
ListSteps returns a workflow's steps sorted by order.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string

Returns:
  - []*Step: Sorted steps
  - err: Authorization failures
*/
func (service *Service) ListSteps(context context.Context, claims *sec.AuthClaims, workflowID string) ([]*Step, error) {

	workflow, err := service.Get(context, claims, workflowID)
	if err != nil {
		return nil, err
	}

	return workflow.Steps, nil
}

// # Sharing

/*
ShareWithGroup grants a permission on a workflow to a group, updating the
existing grant when one is already present.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - groupID: string
  - permission: string (read|write|execute)

Returns:
  - *Share: The recorded grant
  - err: Authorization or validation failures
*/
func (service *Service) ShareWithGroup(context context.Context, claims *sec.AuthClaims, workflowID, groupID, permission string) (*Share, error) {

	if !rbac.IsSharePermission(permission) {
		return nil, apperr.ValidationError(fmt.Sprintf("Permission %q cannot be shared", permission))
	}

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return nil, err
	}

	exists, err := service.groupChecker.GroupExists(context, groupID)
	if err != nil {
		return nil, fmt.Errorf("workflow_service_group_lookup_failed: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("Group")
	}

	share := &Share{
		WorkflowID: workflowID,
		GroupID:    groupID,
		Permission: permission,
	}

	if err := service.workflowRepository.UpsertShare(context, share); err != nil {
		return nil, fmt.Errorf("workflow_service_share_failed: %w", err)
	}

	return share, nil
}

/*
Unshare removes a group's grant from a workflow.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - groupID: string

Returns:
  - err: Authorization or persistence failures
*/
func (service *Service) Unshare(context context.Context, claims *sec.AuthClaims, workflowID, groupID string) error {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return err
	}

	if err := service.authorize(context, claims, sec.PermissionWrite, workflow); err != nil {
		return err
	}

	if err := service.workflowRepository.DeleteShare(context, workflowID, groupID); err != nil {
		return fmt.Errorf("workflow_service_unshare_failed: %w", err)
	}

	return nil
}

/*
Permissions returns the ownership and share grants of one workflow.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string

Returns:
  - *PermissionView: Owner and share rows
  - err: Authorization failures
*/
func (service *Service) Permissions(context context.Context, claims *sec.AuthClaims, workflowID string) (*PermissionView, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionRead, workflow); err != nil {
		return nil, err
	}

	shares, err := service.workflowRepository.ListShares(context, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow_service_shares_failed: %w", err)
	}

	return &PermissionView{
		WorkflowID: workflow.ID,
		OwnerID:    workflow.OwnerID,
		Shares:     shares,
	}, nil
}

// # Execution Support

/*
AuthorizeExecute checks the execute permission and returns the workflow with
steps sorted. Entry point for the execution runner.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string

Returns:
  - *Workflow: The workflow, steps sorted by order
  - err: apperr.Forbidden when execute is not granted
*/
func (service *Service) AuthorizeExecute(context context.Context, claims *sec.AuthClaims, workflowID string) (*Workflow, error) {

	workflow, err := service.workflowRepository.FindByID(context, workflowID)
	if err != nil {
		return nil, err
	}

	if err := service.authorize(context, claims, sec.PermissionExecute, workflow); err != nil {
		return nil, err
	}

	SortByOrder(workflow.Steps)
	return workflow, nil
}

// SaveExecutionState persists post-run step metadata. The runner calls this
// after every execution, successful or not.
func (service *Service) SaveExecutionState(context context.Context, workflowID string, steps []*Step) error {
	if err := service.workflowRepository.UpdateSteps(context, workflowID, steps); err != nil {
		return fmt.Errorf("workflow_service_save_execution_failed: %w", err)
	}
	return nil
}

// StepDirectory resolves the absolute filesystem path of one step's storage
// area without creating it.
func (service *Service) StepDirectory(workflowID string, step *Step) string {
	type pather interface {
		StepDir(workflowID, directoryName string) string
	}
	if local, ok := service.stepStorage.(pather); ok {
		return local.StepDir(workflowID, step.DirectoryName)
	}
	return step.DirectoryName
}
