// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the user identity and session management layer.

It defines the core domain entities (User, Session, RefreshToken) and logic
for authentication, token issuance, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import "time"

// # Domain Entities

// User represents a registered member of the Flowra platform.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // Explicitly omitted from JSON for security.
	IsActive         bool      `json:"is_active"`
	IsPermanentAdmin bool      `json:"is_permanent_admin"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Session is one row of the active-access-token ledger. An access JWT is only
// honored while its session row exists and is unexpired; deleting the row is
// an immediate server-side revocation.
//
// ExpiresAt is stored as text because historical writers used several
// encodings (RFC 3339, "YYYY-MM-DD HH:MM:SS", epoch seconds, epoch
// milliseconds). [ParseExpiry] resolves them all.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"` // Exact access-token string. Omitted for security.
	ExpiresAt string    `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken represents a long-lived credential used to mint new access
// tokens. Refresh tokens are never rotated on use; they stay valid until
// expiry or explicit revocation.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"` // Signed refresh JWT. Omitted for security.
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldNewUsername     = "new_username"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldMessage         = "message"
)
