// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package group

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/flowra/internal/platform/middleware"
	"github.com/taibuivan/flowra/internal/platform/respond"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/platform/validate"
	"github.com/taibuivan/flowra/pkg/pagination"

	requestutil "github.com/taibuivan/flowra/internal/platform/request"
)

// # Handler Implementation

// Handler implements the HTTP layer for group management.
//
// # Routing Strategy
//
// Every route requires authentication; individual operations are gated by
// the role matrix on the group resource (viewers read, managers also write).
type Handler struct {
	groupService *Service
}

// NewHandler constructs a new group [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{groupService: service}
}

// Routes returns a [chi.Router] configured with group endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)

	router.Group(func(reads chi.Router) {
		reads.Use(middleware.RequirePermission(sec.PermissionRead, sec.ResourceGroup))
		reads.Get("/", handler.listGroups)
		reads.Get("/{id}", handler.getGroup)
		reads.Get("/{id}/users", handler.listMembers)
	})

	router.Group(func(writes chi.Router) {
		writes.Use(middleware.RequirePermission(sec.PermissionWrite, sec.ResourceGroup))
		writes.Post("/", handler.createGroup)
		writes.Put("/{id}", handler.updateGroup)
		writes.Post("/{id}/users/{userID}", handler.assignUser)
		writes.Delete("/{id}/users/{userID}", handler.unassignUser)
	})

	router.Group(func(deletes chi.Router) {
		deletes.Use(middleware.RequirePermission(sec.PermissionDelete, sec.ResourceGroup))
		deletes.Delete("/{id}", handler.deleteGroup)
	})

	return router
}

// # Request Payloads

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// # Group Endpoints

/*
ListGroups returns a paginated list of groups.

GET /api/v1/groups

Request:
  - page: int
  - limit: int

Response:
  - 200: []Group: Paginated list with member counts
*/
func (handler *Handler) listGroups(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	groups, meta, err := handler.groupService.List(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, groups, meta)
}

/*
GetGroup returns one group.

GET /api/v1/groups/{id}

Response:
  - 200: Group
  - 404: Not Found
*/
func (handler *Handler) getGroup(writer http.ResponseWriter, request *http.Request) {
	group, err := handler.groupService.Get(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, group)
}

/*
CreateGroup registers a new group.

POST /api/v1/groups

Request:
  - Body: groupRequest (Name, Description)

Response:
  - 201: Group
  - 409: Conflict: Duplicate name
*/
func (handler *Handler) createGroup(writer http.ResponseWriter, request *http.Request) {
	var input groupRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	group, err := handler.groupService.Create(request.Context(), input.Name, input.Description)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, group)
}

/*
UpdateGroup renames a group or changes its description.

PUT /api/v1/groups/{id}

Request:
  - Body: groupRequest (Name, Description)

Response:
  - 200: Group
  - 404: Not Found
  - 409: Conflict: Rename collision
*/
func (handler *Handler) updateGroup(writer http.ResponseWriter, request *http.Request) {
	var input groupRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	group, err := handler.groupService.Update(request.Context(), requestutil.Param(request, "id"), input.Name, input.Description)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, group)
}

/*
DeleteGroup removes a group along with its assignments and workflow shares.

DELETE /api/v1/groups/{id}

Response:
  - 204: No Content
  - 404: Not Found
*/
func (handler *Handler) deleteGroup(writer http.ResponseWriter, request *http.Request) {
	if err := handler.groupService.Delete(request.Context(), requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Membership Endpoints

/*
ListMembers returns the users assigned to a group.

GET /api/v1/groups/{id}/users

Response:
  - 200: []Assignment
  - 404: Not Found
*/
func (handler *Handler) listMembers(writer http.ResponseWriter, request *http.Request) {
	members, err := handler.groupService.Members(request.Context(), requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, members)
}

/*
AssignUser adds a user to a group.

POST /api/v1/groups/{id}/users/{userID}

Response:
  - 200: Success
  - 404: Group or user not found
*/
func (handler *Handler) assignUser(writer http.ResponseWriter, request *http.Request) {
	groupID := requestutil.Param(request, "id")
	userID := requestutil.Param(request, "userID")

	if err := handler.groupService.AssignUser(request.Context(), groupID, userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "User assigned to group",
	})
}

/*
UnassignUser removes a user from a group.

DELETE /api/v1/groups/{id}/users/{userID}

Response:
  - 204: No Content
  - 404: Group not found
*/
func (handler *Handler) unassignUser(writer http.ResponseWriter, request *http.Request) {
	groupID := requestutil.Param(request, "id")
	userID := requestutil.Param(request, "userID")

	if err := handler.groupService.UnassignUser(request.Context(), groupID, userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
