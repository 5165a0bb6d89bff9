// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/flowra/internal/platform/ctxutil"
	"github.com/taibuivan/flowra/internal/platform/middleware"
	"github.com/taibuivan/flowra/internal/platform/respond"
	"github.com/taibuivan/flowra/internal/platform/validate"
	"github.com/taibuivan/flowra/pkg/pagination"

	requestutil "github.com/taibuivan/flowra/internal/platform/request"
)

// # Handler Implementation

// Handler implements the HTTP layer for workflow operations.
//
// # Routing Strategy
//
// Routes only require authentication here; per-workflow authorization
// (ownership, group shares, role layer) is resolved in the service, which
// needs the concrete workflow to build its ACL.
type Handler struct {
	workflowService *Service
}

// NewHandler constructs a new workflow [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{workflowService: service}
}

// Routes returns a [chi.Router] configured with workflow endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)

	router.Post("/create", handler.createWorkflow)
	router.Get("/list", handler.listWorkflows)

	router.Route("/{id}", func(sub chi.Router) {
		sub.Get("/", handler.getWorkflow)
		sub.Put("/", handler.updateWorkflow)
		sub.Delete("/", handler.deleteWorkflow)

		sub.Route("/steps", func(steps chi.Router) {
			steps.Get("/", handler.listSteps)
			steps.Post("/", handler.appendStep)
			steps.Put("/reorder", handler.reorderSteps)
			steps.Put("/id/{stepID}", handler.updateStepByID)
			steps.Put("/{order}", handler.updateStepByOrder)
			steps.Delete("/{order}", handler.deleteStepByOrder)
		})

		sub.Post("/share/groups/{groupID}", handler.shareWorkflow)
		sub.Delete("/share/groups/{groupID}", handler.unshareWorkflow)
		sub.Get("/permissions", handler.workflowPermissions)
	})

	return router
}

// # Request Payloads

type workflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type reorderRequest struct {
	Orders []int `json:"orders"`
}

// orderParam parses the {order} route parameter as a positive integer.
func orderParam(request *http.Request) (int, error) {
	raw := requestutil.Param(request, FieldOrder)
	order, err := strconv.Atoi(raw)
	if err != nil || order < 1 {
		return 0, validate.RequiredError(FieldOrder, "Must be a positive step order")
	}
	return order, nil
}

// # Workflow Endpoints

/*
CreateWorkflow registers a new, empty workflow owned by the caller.

POST /api/v1/workflow/create

Request:
  - Body: workflowRequest (Name, Description)

Response:
  - 201: Workflow
  - 403: Forbidden: Role lacks workflow write
*/
func (handler *Handler) createWorkflow(writer http.ResponseWriter, request *http.Request) {
	var input workflowRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	created, err := handler.workflowService.Create(request.Context(), claims, input.Name, input.Description)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
ListWorkflows returns the page of workflows visible to the caller.

GET /api/v1/workflow/list

Request:
  - page: int
  - limit: int

Response:
  - 200: []Workflow: Paginated list
*/
func (handler *Handler) listWorkflows(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())
	params := pagination.FromRequest(request)

	workflows, meta, err := handler.workflowService.List(request.Context(), claims, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, workflows, meta)
}

/*
GetWorkflow returns one workflow with its steps.

GET /api/v1/workflow/{id}

Response:
  - 200: Workflow
  - 403: Forbidden
  - 404: Not Found
*/
func (handler *Handler) getWorkflow(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	found, err := handler.workflowService.Get(request.Context(), claims, requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, found)
}

/*
UpdateWorkflow changes a workflow's metadata.

PUT /api/v1/workflow/{id}

Request:
  - Body: UpdateInput (Name, Description, IsActive — all optional)

Response:
  - 200: Workflow
  - 403: Forbidden
  - 404: Not Found
*/
func (handler *Handler) updateWorkflow(writer http.ResponseWriter, request *http.Request) {
	var input UpdateInput

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	updated, err := handler.workflowService.Update(request.Context(), claims, requestutil.Param(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
DeleteWorkflow removes a workflow and its share rows.

DELETE /api/v1/workflow/{id}

Response:
  - 204: No Content
  - 403: Forbidden
  - 404: Not Found
*/
func (handler *Handler) deleteWorkflow(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	if err := handler.workflowService.Delete(request.Context(), claims, requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Step Endpoints

/*
ListSteps returns a workflow's steps sorted by order.

GET /api/v1/workflow/{id}/steps

Response:
  - 200: []Step
*/
func (handler *Handler) listSteps(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	steps, err := handler.workflowService.ListSteps(request.Context(), claims, requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, steps)
}

/*
AppendStep adds a step to a workflow.

POST /api/v1/workflow/{id}/steps

Request:
  - Body: StepInput (Order optional; auto-assigned past the maximum)

Response:
  - 201: Step
  - 400: ErrInvalidJSON: Order collision or missing fields
*/
func (handler *Handler) appendStep(writer http.ResponseWriter, request *http.Request) {
	var input StepInput

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	step, err := handler.workflowService.AppendStep(request.Context(), claims, requestutil.Param(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, step)
}

/*
UpdateStepByOrder modifies the step currently holding the given order.

PUT /api/v1/workflow/{id}/steps/{order}

Response:
  - 200: Step
  - 400: Order collision
  - 404: No step at that order
*/
func (handler *Handler) updateStepByOrder(writer http.ResponseWriter, request *http.Request) {
	order, err := orderParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input StepInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	step, err := handler.workflowService.UpdateStepByOrder(request.Context(), claims, requestutil.Param(request, "id"), order, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, step)
}

/*
UpdateStepByID modifies the step with the given immutable ID.

PUT /api/v1/workflow/{id}/steps/id/{stepID}

Response:
  - 200: Step
  - 404: No step with that ID
*/
func (handler *Handler) updateStepByID(writer http.ResponseWriter, request *http.Request) {
	var input StepInput

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	step, err := handler.workflowService.UpdateStepByID(
		request.Context(), claims,
		requestutil.Param(request, "id"), requestutil.Param(request, "stepID"), input,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, step)
}

/*
DeleteStepByOrder removes the step at the given order and compacts the rest.

DELETE /api/v1/workflow/{id}/steps/{order}

Response:
  - 204: No Content
  - 404: No step at that order
*/
func (handler *Handler) deleteStepByOrder(writer http.ResponseWriter, request *http.Request) {
	order, err := orderParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	if err := handler.workflowService.DeleteStepByOrder(request.Context(), claims, requestutil.Param(request, "id"), order); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ReorderSteps renumbers all steps 1..N following the supplied sequence.

PUT /api/v1/workflow/{id}/steps/reorder

Request:
  - Body: reorderRequest (Orders: permutation of current order values)

Response:
  - 200: []Step: Steps in their new order
  - 400: Sequence is not a permutation
*/
func (handler *Handler) reorderSteps(writer http.ResponseWriter, request *http.Request) {
	var input reorderRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	claims := ctxutil.GetAuthUser(request.Context())
	steps, err := handler.workflowService.Reorder(request.Context(), claims, requestutil.Param(request, "id"), input.Orders)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, steps)
}

// # Share Endpoints

/*
ShareWorkflow grants a permission on a workflow to a group.

POST /api/v1/workflow/{id}/share/groups/{groupID}?permission=read|write|execute

Response:
  - 200: Share: The recorded grant (updated in place when repeated)
  - 400: Unshareable permission
  - 404: Workflow or group not found
*/
func (handler *Handler) shareWorkflow(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())
	permission := request.URL.Query().Get(FieldPermission)

	share, err := handler.workflowService.ShareWithGroup(
		request.Context(), claims,
		requestutil.Param(request, "id"), requestutil.Param(request, "groupID"), permission,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, share)
}

/*
UnshareWorkflow removes a group's grant from a workflow.

DELETE /api/v1/workflow/{id}/share/groups/{groupID}

Response:
  - 204: No Content
  - 404: Workflow not found
*/
func (handler *Handler) unshareWorkflow(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	err := handler.workflowService.Unshare(
		request.Context(), claims,
		requestutil.Param(request, "id"), requestutil.Param(request, "groupID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
WorkflowPermissions returns ownership and share grants of one workflow.

GET /api/v1/workflow/{id}/permissions

Response:
  - 200: PermissionView
*/
func (handler *Handler) workflowPermissions(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())

	view, err := handler.workflowService.Permissions(request.Context(), claims, requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, view)
}
