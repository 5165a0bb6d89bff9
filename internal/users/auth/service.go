// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the core identity and access management (IAM) system.

It handles everything from user registration and secure password hashing to
the full token lifecycle: HS256 access tokens backed by a server-side session
ledger, non-rotating refresh tokens, and volatile reset tokens in Redis.

Architecture:

  - Service: Orchestrates business logic (Register, Login, Refresh, Reset).
  - Repository: Abstracted interfaces for Postgres (Users, Sessions, Refresh)
    and Redis (Reset tokens).
  - Security: Bcrypt hashing and HMAC-signed JWTs.

The package ensures that identity data remains consistent and secure
throughout the platform's lifecycle.
*/
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for generating and verifying security tokens.
type TokenProvider interface {

	// GenerateAccessToken creates a signed JWT string for the given user,
	// embedding the role, admin flag, and permission snapshot.
	GenerateAccessToken(userID, username, role string, isAdmin bool, permissions map[string][]string, timeToLive time.Duration) (string, error)

	// GenerateRefreshToken creates a signed long-lived refresh JWT.
	GenerateRefreshToken(userID string, timeToLive time.Duration) (string, error)

	// VerifyAccessToken checks signature, expiry, and token type.
	VerifyAccessToken(token string) (*sec.AuthClaims, error)

	// VerifyRefreshToken checks signature, expiry, and token type.
	VerifyRefreshToken(token string) (*sec.AuthClaims, error)
}

// PermissionSource supplies the role and permission snapshot embedded in
// access-token claims. Implemented by the rbac service.
type PermissionSource interface {

	// Snapshot resolves the user's effective role and its resource-type →
	// permission-list map. Users with no role record are viewers.
	Snapshot(ctx context.Context, userID string) (role string, permissions map[string][]string, err error)

	// AssignRole records a role for the user, replacing any previous record.
	AssignRole(ctx context.Context, userID, role string) error
}

// dummyPasswordHash is compared against when the user lookup fails, so that
// authentication takes the same time whether or not the account exists.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or token logic must be reviewed by the security team.
type Service struct {
	userRepository         UserRepository
	sessionRepository      SessionRepository
	refreshTokenRepository RefreshTokenRepository
	resetTokenRepository   ResetTokenRepository
	tokenProvider          TokenProvider
	permissionSource       PermissionSource
	accessTokenTTL         time.Duration
	refreshTokenTTL        time.Duration
}

// NewService constructs a new auth [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	refreshRepo RefreshTokenRepository,
	resetRepo ResetTokenRepository,
	tokenProv TokenProvider,
	permissions PermissionSource,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
) *Service {
	return &Service{
		userRepository:         userRepo,
		sessionRepository:      sessionRepo,
		refreshTokenRepository: refreshRepo,
		resetTokenRepository:   resetRepo,
		tokenProvider:          tokenProv,
		permissionSource:       permissions,
		accessTokenTTL:         accessTokenTTL,
		refreshTokenTTL:        refreshTokenTTL,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Deep-enrollment of a new member. The very first account ever
registered becomes a permanent administrator; every later account starts as
a viewer (no role record).

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - err: Conflict (if identity exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {

	// Verify username uniqueness. Return a client-safe Conflict err.
	_, err := service.userRepository.FindByUsername(context, input.Username)
	if err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// Verify email uniqueness. Return a client-safe Conflict err.
	_, err = service.userRepository.FindByEmail(context, input.Email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// The first account bootstraps the system and must never be locked out.
	total, err := service.userRepository.Count(context)
	if err != nil {
		return nil, fmt.Errorf("auth_service_count_failed: %w", err)
	}
	isFirstUser := total == 0

	// Construct the new User entity. Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:               uuid.New(),
		Username:         input.Username,
		Email:            input.Email,
		PasswordHash:     hashedPassword,
		IsActive:         true,
		IsPermanentAdmin: isFirstUser,
	}

	// Persist the user to the database
	if err := service.userRepository.Create(context, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	// Give the bootstrap account an explicit admin role record
	if isFirstUser {
		if err := service.permissionSource.AssignRole(context, user.ID, string(sec.RoleAdmin)); err != nil {
			return nil, fmt.Errorf("auth_service_bootstrap_role_failed: %w", err)
		}
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login    string // Can be Username or Email
	Password string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	User                 *User
}

/*
AuthenticateByUsername verifies a username/password pair.

Description: A bcrypt comparison always runs, even when the account does not
exist, so response timing cannot be used to enumerate usernames.

Parameters:
  - context: context.Context
  - username: string
  - password: string

Returns:
  - *User: Verified account
  - err: Unauthorized for unknown account, wrong password, or inactive account
*/
func (service *Service) AuthenticateByUsername(context context.Context, username, password string) (*User, error) {
	user, err := service.userRepository.FindByUsername(context, username)
	return service.checkCredentials(user, err, password)
}

/*
AuthenticateByEmail verifies an email/password pair.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - *User: Verified account
  - err: Unauthorized for unknown account, wrong password, or inactive account
*/
func (service *Service) AuthenticateByEmail(context context.Context, email, password string) (*User, error) {
	user, err := service.userRepository.FindByEmail(context, email)
	return service.checkCredentials(user, err, password)
}

// checkCredentials performs the constant-work password verification shared by
// both authentication entry points.
func (service *Service) checkCredentials(user *User, lookupErr error, password string) (*User, error) {

	// Unknown account: burn a hash comparison anyway, then fail generically
	if lookupErr != nil {
		sec.CheckPasswordHash(password, dummyPasswordHash)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Constant-time comparison in bcrypt prevents timing attacks
	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Deactivated accounts keep their rows but cannot authenticate
	if !user.IsActive {
		return nil, apperr.Unauthorized("Account is inactive")
	}

	return user, nil
}

/*
Login validates user credentials and issues security tokens.

Description: Verifies identity, snapshots the user's permissions into the
access-token claims, records the access token in the session ledger, and
issues a long-lived refresh token.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session identifiers
  - err: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {

	// Flexible login: try username first, then email
	user, err := service.AuthenticateByUsername(context, input.Login, input.Password)
	if err != nil {
		var unauthorized error = err
		user, err = service.AuthenticateByEmail(context, input.Login, input.Password)
		if err != nil {
			return nil, unauthorized
		}
	}

	session, err := service.mintSession(context, user)
	if err != nil {
		return nil, err
	}

	// Issue the long-lived refresh credential alongside
	refreshToken, err := service.tokenProvider.GenerateRefreshToken(user.ID, service.refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	refreshRow := &RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(service.refreshTokenTTL),
		IsRevoked: false,
	}

	if err := service.refreshTokenRepository.Create(context, refreshRow); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_row_failed: %w", err)
	}

	session.RefreshToken = refreshToken
	return session, nil
}

// mintSession generates an access token carrying the user's current
// permission snapshot and records it in the session ledger.
func (service *Service) mintSession(context context.Context, user *User) (*LoginSession, error) {

	// Resolve the role-layer grant snapshot for the claims
	role, permissions, err := service.permissionSource.Snapshot(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_snapshot_failed: %w", err)
	}

	isAdmin := user.IsPermanentAdmin || role == string(sec.RoleAdmin)

	accessToken, err := service.tokenProvider.GenerateAccessToken(
		user.ID, user.Username, role, isAdmin, permissions, service.accessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	// Record the exact token string in the ledger; deleting the row later is
	// an immediate server-side revocation
	expiresAt := time.Now().Add(service.accessTokenTTL)
	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     accessToken,
		ExpiresAt: FormatExpiry(expiresAt),
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: expiresAt,
		User:                 user,
	}, nil
}

// # Token Verification

/*
VerifyAccess validates an access token against both its signature and the
session ledger.

Description: A structurally valid JWT is not enough; the exact token string
must still be present in the ledger and unexpired. Ledger rows found expired
during verification are deleted eagerly.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *sec.AuthClaims: Verified claims
  - err: Unauthorized for any signature, ledger, or expiry failure
*/
func (service *Service) VerifyAccess(context context.Context, token string) (*sec.AuthClaims, error) {

	// Cryptographic verification first
	claims, err := service.tokenProvider.VerifyAccessToken(token)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}

	// The ledger is the revocation authority
	session, err := service.sessionRepository.FindByToken(context, token)
	if err != nil {
		return nil, apperr.Unauthorized("Session has been revoked")
	}

	// Rows with unreadable expiries are rejected but never deleted here; the
	// cleanup sweep has the same keep-unparsable rule
	expiresAt, err := ParseExpiry(session.ExpiresAt)
	if err != nil {
		return nil, apperr.Unauthorized("Session expiry is unreadable")
	}

	if time.Now().After(expiresAt) {
		_ = service.sessionRepository.Delete(context, session.ID)
		return nil, apperr.Unauthorized("Session has expired")
	}

	return claims, nil
}

// TokenInfo describes the state of a verified access token.
type TokenInfo struct {
	Valid            bool      `json:"valid"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"time_remaining_seconds"`
	ShouldRefresh    bool      `json:"should_refresh"`
}

/*
VerifyTokenInfo validates an access token and reports its expiry metadata.

Description: Powers the verify-token endpoint. ShouldRefresh turns true once
the remaining lifetime drops to [RefreshWindow] or below.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *TokenInfo: Expiry metadata
  - err: Unauthorized failures from [Service.VerifyAccess]
*/
func (service *Service) VerifyTokenInfo(context context.Context, token string) (*TokenInfo, error) {
	claims, err := service.VerifyAccess(context, token)
	if err != nil {
		return nil, err
	}

	expiresAt := claims.ExpiresAt.Time
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		remaining = 0
	}

	return &TokenInfo{
		Valid:            true,
		UserID:           claims.UserID,
		Username:         claims.Username,
		ExpiresAt:        expiresAt,
		RemainingSeconds: int64(remaining / time.Second),
		ShouldRefresh:    remaining <= RefreshWindow,
	}, nil
}

// # Session Management

/*
RefreshAccess exchanges a valid refresh token for a fresh access token.

Description: Refresh tokens are deliberately NOT rotated: the same refresh
credential stays valid until expiry or revocation, and each exchange mints a
new access token plus ledger row.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *LoginSession: New access credentials (refresh token unchanged)
  - err: Unauthorized or storage failures
*/
func (service *Service) RefreshAccess(context context.Context, refreshToken string) (*LoginSession, error) {

	// Signature and type check
	claims, err := service.tokenProvider.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// The stored row is the revocation authority
	row, err := service.refreshTokenRepository.FindByToken(context, refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Refresh token is not recognized")
	}

	if row.IsRevoked {
		return nil, apperr.Unauthorized("Refresh token has been revoked")
	}

	if time.Now().After(row.ExpiresAt) {
		return nil, apperr.Unauthorized("Refresh token has expired")
	}

	// The account must still exist and be active
	user, err := service.userRepository.FindByID(context, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, apperr.Unauthorized("User not found or deactivated")
	}

	session, err := service.mintSession(context, user)
	if err != nil {
		return nil, err
	}

	session.RefreshToken = refreshToken
	return session, nil
}

/*
Logout revokes a single access token by deleting its ledger row.

Description: Idempotent; logging out an already-revoked token succeeds.

Parameters:
  - context: context.Context
  - accessToken: string

Returns:
  - err: Deletion failures
*/
func (service *Service) Logout(context context.Context, accessToken string) error {
	if err := service.sessionRepository.DeleteByToken(context, accessToken); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

/*
RevokeAllRefresh marks every refresh token of the user as revoked.

Description: Backs the logout-all-devices endpoint. Live access tokens are
left in the ledger; they expire within the short access TTL on their own.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - err: Revocation failures
*/
func (service *Service) RevokeAllRefresh(context context.Context, userID string) error {
	if err := service.refreshTokenRepository.RevokeAllForUser(context, userID); err != nil {
		return fmt.Errorf("auth_service_revoke_all_failed: %w", err)
	}
	return nil
}

// # Account Lifecycle

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, then revokes every refresh token
so other devices must log in again with the new password.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - err: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {

	// Fetch user by ID
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	// Verify the current password before allowing change
	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	// Hash the brand new password
	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	// Update the database with the new hash
	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security Side Effect: force re-login on other devices
	_ = service.refreshTokenRepository.RevokeAllForUser(context, userID)

	return nil
}

/*
EditUsername changes the authenticated user's username.

Parameters:
  - context: context.Context
  - userID: string
  - newUsername: string

Returns:
  - err: Conflict when the name is taken, or storage failures
*/
func (service *Service) EditUsername(context context.Context, userID, newUsername string) error {

	// Reject names already in use by a different account
	existing, err := service.userRepository.FindByUsername(context, newUsername)
	if err == nil && existing.ID != userID {
		return apperr.Conflict("Username is already taken")
	}

	if err := service.userRepository.UpdateUsername(context, userID, newUsername); err != nil {
		return err
	}

	return nil
}

/*
DeleteAccount permanently removes the authenticated user's account.

Description: Requires password re-confirmation. Sessions, refresh tokens,
role records, group memberships, and owned workflows are removed with the
account.

Parameters:
  - context: context.Context
  - userID: string
  - password: string

Returns:
  - err: Unauthorized or deletion failures
*/
func (service *Service) DeleteAccount(context context.Context, userID, password string) error {

	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	// Destructive operation: demand fresh proof of identity
	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return apperr.Unauthorized("Password is incorrect")
	}

	// Revoke live credentials before the row disappears
	_ = service.sessionRepository.DeleteByUser(context, userID)
	_ = service.refreshTokenRepository.RevokeAllForUser(context, userID)

	if err := service.userRepository.Delete(context, userID); err != nil {
		return fmt.Errorf("auth_service_delete_account_failed: %w", err)
	}

	return nil
}

// GetUser returns the account with the given ID.
func (service *Service) GetUser(context context.Context, userID string) (*User, error) {
	return service.userRepository.FindByID(context, userID)
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Generates a secure single-use token and saves it to Redis with
a one-hour TTL.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - string: Reset token (empty when the email is unknown)
  - err: Generation errors
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (string, error) {
	// Look up user.
	// NOTE: We don't return NOT_FOUND if the email doesn't exist to prevent user enumeration.
	user, err := service.userRepository.FindByEmail(context, email)
	if err != nil {
		return "", nil
	}

	// Generate reset token
	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return "", fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	// Save to Redis
	if err := service.resetTokenRepository.Set(context, token, user.ID, ResetTokenTTL); err != nil {
		return "", fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	return token, nil
}

/*
HardResetPassword completes the forgot-password flow.

Description: Consumes the token BEFORE applying the new password so it can
never be replayed, updates the hash, and revokes every live credential.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - err: ValidationError for unknown/consumed tokens, or update failures
*/
func (service *Service) HardResetPassword(context context.Context, token, newPassword string) error {

	// Retrieve the userID associated with the reset token from Redis.
	// A missing key means the token was already consumed or never issued;
	// that is a bad request, not a missing resource.
	userID, err := service.resetTokenRepository.Get(context, token)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.ValidationError("Reset token is invalid or expired")
		}
		return err
	}

	// Single-use: consume the token immediately, a second attempt finds nothing
	if err := service.resetTokenRepository.Delete(context, token); err != nil {
		return fmt.Errorf("auth_service_consume_reset_token_failed: %w", err)
	}

	// Hash the new password securely
	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_password_hash_failed: %w", err)
	}

	// Update the user's password in persistent storage
	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_reset_password_update_failed: %w", err)
	}

	// Security Cleanup: revoke EVERY live credential for this user
	_ = service.sessionRepository.DeleteByUser(context, userID)
	_ = service.refreshTokenRepository.RevokeAllForUser(context, userID)

	return nil
}
