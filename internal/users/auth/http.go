// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
HTTP delivery layer for user identity management.

It implements the gateway for the authentication lifecycle—from account
creation to session management and recovery.

# Architecture

The handler acts as a thin mediation layer between the web and domain services:
  - Protocol: Standard RESTful JSON interface.
  - Security: Access tokens travel in the Authorization header only; the
    server-side session ledger is the revocation authority.
  - Verification: Enforces strict input validation before passing to [Service].

This layer is strictly responsible for transport concerns (status codes, headers, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/flowra/internal/platform/middleware"
	requestutil "github.com/taibuivan/flowra/internal/platform/request"
	"github.com/taibuivan/flowra/internal/platform/respond"
	"github.com/taibuivan/flowra/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the user lifecycle entry points
// (Registration, Login, Token refresh, Password recovery).
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh-token", handler.refreshToken)
	router.Get("/verify-token", handler.verifyToken)
	router.Post("/request-password-reset", handler.requestPasswordReset)
	router.Post("/hard-reset-password", handler.hardResetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/logout-all-devices", handler.logoutAllDevices)
		r.Post("/change-password", handler.changePassword)
		r.Put("/edit-username", handler.editUsername)
		r.Delete("/delete-account", handler.deleteAccount)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type editUsernameRequest struct {
	NewUsername string `json:"new_username"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

type requestPasswordResetRequest struct {
	Email string `json:"email"`
}

type hardResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input, checks for identity conflicts, and persists
a new user profile to the database. The first ever account becomes a
permanent administrator.

Request:
  - Body: registerRequest (Username, Email, Password)

Response:
  - 201: User: Created user profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Username or Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, MinUsernameLength).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, MinPasswordLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, records the access token in the session
ledger, and returns both the access and refresh tokens.

Request:
  - Body: loginRequest (Username, Password) — username field also accepts email

Response:
  - 200: Session: Access token, refresh token, and user profile
  - 401: ErrUnauthorized: Invalid credentials or deactivated account
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Login:    input.Username,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldAccessToken:  session.AccessToken,
		FieldRefreshToken: session.RefreshToken,
		FieldTokenType:    "Bearer",
		FieldExpiresIn:    int64(time.Until(session.AccessTokenExpiresAt) / time.Second),
		FieldUser:         session.User,
	})
}

/*
RefreshToken issues a new access token using a valid refresh token.

POST /api/v1/auth/refresh-token

Description: Validates the refresh credential against its stored row and
mints a fresh access token. The refresh token itself is returned unchanged;
rotation is deliberately not performed.

Request:
  - Body: refreshRequest (RefreshToken)

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing, revoked, or expired refresh token
*/
func (handler *Handler) refreshToken(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "is required"))
		return
	}

	session, err := handler.authService.RefreshAccess(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldAccessToken:  session.AccessToken,
		FieldRefreshToken: session.RefreshToken,
		FieldTokenType:    "Bearer",
		FieldExpiresIn:    int64(time.Until(session.AccessTokenExpiresAt) / time.Second),
	})
}

/*
VerifyToken reports expiry metadata for the presented access token.

GET /api/v1/auth/verify-token

Description: Validates the bearer token against the signature and the session
ledger, and tells the client whether it should refresh soon.

Response:
  - 200: TokenInfo: Expiry metadata with should_refresh hint
  - 401: ErrUnauthorized: Absent header, invalid signature, or revoked session
*/
func (handler *Handler) verifyToken(writer http.ResponseWriter, request *http.Request) {
	token, err := requestutil.BearerToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	info, err := handler.authService.VerifyTokenInfo(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, info)
}

/*
Logout revokes the presented access token.

POST /api/v1/auth/logout

Description: Deletes the session ledger row for the exact token string,
revoking it immediately. Idempotent.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	token, err := requestutil.BearerToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
LogoutAllDevices revokes every refresh token of the authenticated user.

POST /api/v1/auth/logout-all-devices

Response:
  - 204: No Content: All refresh tokens revoked
*/
func (handler *Handler) logoutAllDevices(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RevokeAllRefresh(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password before applying a new one, then
revokes refresh tokens on all devices.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 401: ErrUnauthorized: Current password incorrect
  - 400: ErrInvalidJSON: Weak password or validation failure
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(),
		userID,
		input.CurrentPassword,
		input.NewPassword,
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

/*
EditUsername changes the authenticated user's username.

PUT /api/v1/auth/edit-username

Request:
  - Body: editUsernameRequest (NewUsername)

Response:
  - 200: Success: Username updated
  - 409: ErrConflict: Username already taken
*/
func (handler *Handler) editUsername(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input editUsernameRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldNewUsername, input.NewUsername).
		MinLen(FieldNewUsername, input.NewUsername, MinUsernameLength)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.EditUsername(request.Context(), userID, input.NewUsername); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Username updated successfully",
	})
}

/*
DeleteAccount permanently removes the authenticated user's account.

DELETE /api/v1/auth/delete-account

Description: Demands password re-confirmation before the irreversible delete.

Request:
  - Body: deleteAccountRequest (Password)

Response:
  - 204: No Content: Account removed
  - 401: ErrUnauthorized: Password incorrect
*/
func (handler *Handler) deleteAccount(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input deleteAccountRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Password == "" {
		respond.Error(writer, request, validate.RequiredError(FieldPassword, "is required"))
		return
	}

	if err := handler.authService.DeleteAccount(request.Context(), userID, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RequestPasswordReset initiates the password recovery flow.

POST /api/v1/auth/request-password-reset

Description: Stores a single-use reset token with a one-hour TTL if the
account exists. The response is identical either way.

Request:
  - Body: requestPasswordResetRequest (Email)

Response:
  - 200: Success: Generic acknowledgment
  - 400: ErrInvalidJSON: Invalid email format
*/
func (handler *Handler) requestPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input requestPasswordResetRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	_, err := handler.authService.RequestPasswordReset(request.Context(), input.Email)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "If this email is registered, a reset token has been issued.",
	})
}

/*
HardResetPassword completes the password recovery flow.

POST /api/v1/auth/hard-reset-password

Description: Consumes the reset token (single use) and replaces the password.

Request:
  - Body: hardResetPasswordRequest (Token, NewPassword)

Response:
  - 200: Success: Password updated
  - 404: ErrNotFound: Token unknown or already consumed
  - 400: ErrInvalidJSON: Weak password or validation failure
*/
func (handler *Handler) hardResetPassword(writer http.ResponseWriter, request *http.Request) {
	var input hardResetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.HardResetPassword(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password updated successfully",
	})
}
