// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/flowra/internal/platform/middleware"
	requestutil "github.com/taibuivan/flowra/internal/platform/request"
	"github.com/taibuivan/flowra/internal/platform/respond"
	"github.com/taibuivan/flowra/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the administrative authorization endpoints.
//
// # Scope
//
// Everything under /admin: the role-permission matrix and user role changes.
// All routes require an authenticated administrator.
type Handler struct {
	rbacService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{rbacService: service}
}

// Routes returns a [chi.Router] configured with the admin routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequireAuth)
	router.Use(middleware.RequireAdmin)

	router.Get("/role-permissions", handler.listPermissions)
	router.Get("/role-permissions/{role}", handler.listRolePermissions)
	router.Post("/role-permissions", handler.addPermission)
	router.Delete("/role-permissions", handler.removePermission)
	router.Post("/role-permissions/reset/{role}", handler.resetRole)

	router.Put("/users/{id}/role", handler.setUserRole)
	router.Post("/users/{id}/promote-permanent", handler.promotePermanent)

	return router
}

// # Request Payloads

type permissionRequest struct {
	Role       string `json:"role"`
	Resource   string `json:"resource_type"`
	Permission string `json:"permission"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

/*
ListPermissions returns the full role-permission matrix.

GET /api/v1/admin/role-permissions

Response:
  - 200: []RolePermission: Every matrix row
*/
func (handler *Handler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	rows, err := handler.rbacService.ListPermissions(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, rows)
}

/*
ListRolePermissions returns the matrix rows of one role.

GET /api/v1/admin/role-permissions/{role}

Response:
  - 200: []RolePermission: Matching rows
  - 400: ErrInvalidJSON: Unknown role
*/
func (handler *Handler) listRolePermissions(writer http.ResponseWriter, request *http.Request) {
	role := requestutil.Param(request, FieldRole)

	rows, err := handler.rbacService.ListPermissionsByRole(request.Context(), role)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, rows)
}

/*
AddPermission inserts one matrix row.

POST /api/v1/admin/role-permissions

Description: Admin rows are immutable; attempts to add one are rejected.

Request:
  - Body: permissionRequest (Role, Resource, Permission)

Response:
  - 201: RolePermission: Inserted row
  - 400: ErrInvalidJSON: Unknown vocabulary or admin-row mutation
*/
func (handler *Handler) addPermission(writer http.ResponseWriter, request *http.Request) {
	var input permissionRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	row, err := handler.rbacService.AddPermission(request.Context(), input.Role, input.Resource, input.Permission)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, row)
}

/*
RemovePermission deletes one matrix row.

DELETE /api/v1/admin/role-permissions

Request:
  - Body: permissionRequest (Role, Resource, Permission)

Response:
  - 204: No Content: Row removed
  - 400: ErrInvalidJSON: Unknown vocabulary or admin-row mutation
*/
func (handler *Handler) removePermission(writer http.ResponseWriter, request *http.Request) {
	var input permissionRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if err := handler.rbacService.RemovePermission(request.Context(), input.Role, input.Resource, input.Permission); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ResetRole restores one role to its default matrix rows.

POST /api/v1/admin/role-permissions/reset/{role}

Response:
  - 200: Success: Role restored to defaults
  - 400: ErrInvalidJSON: Unknown role or admin-row mutation
*/
func (handler *Handler) resetRole(writer http.ResponseWriter, request *http.Request) {
	role := requestutil.Param(request, FieldRole)

	if err := handler.rbacService.ResetRole(request.Context(), role); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		"message": "Role permissions reset to defaults",
	})
}

/*
SetUserRole changes another user's role.

PUT /api/v1/admin/users/{id}/role

Request:
  - Body: setRoleRequest (Role)

Response:
  - 200: Success: Role recorded
  - 400: ErrInvalidJSON: Self-change, permanent-admin downgrade, or unknown role
*/
func (handler *Handler) setUserRole(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	subjectID := requestutil.Param(request, "id")

	var input setRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if err := handler.rbacService.SetRole(request.Context(), actorID, subjectID, input.Role); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		"message": "Role updated",
	})
}

/*
PromotePermanent raises a user to permanent administrator.

POST /api/v1/admin/users/{id}/promote-permanent

Description: One-way escalation; there is no demotion counterpart.

Response:
  - 200: Success: Flag raised
  - 400: ErrInvalidJSON: Self-promotion
*/
func (handler *Handler) promotePermanent(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	subjectID := requestutil.Param(request, "id")

	if err := handler.rbacService.PromotePermanentAdmin(request.Context(), actorID, subjectID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		"message": "User promoted to permanent administrator",
	})
}
