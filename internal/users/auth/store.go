// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByUsername returns the account with the given username.

		Parameters:
		  - context: context.Context
		  - username: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByUsername(context context.Context, username string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdateUsername replaces only the account's username.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - username: string

		Returns:
		  - error: Persistence failures
	*/
	UpdateUsername(context context.Context, userID, username string) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		Delete permanently removes the account and its dependent rows.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, id string) error

	// Count returns the total number of registered accounts.
	Count(context context.Context) (int64, error)
}

// # Session Ledger Access

// SessionRepository defines the data access contract for the active
// access-token ledger.
type SessionRepository interface {

	/*
		Create persists a new session row for a freshly minted access token.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByToken returns the session row matching the exact token string.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByToken(context context.Context, token string) (*Session, error)

	// Delete removes a single session row by ID.
	Delete(context context.Context, id string) error

	// DeleteByToken removes the session row matching the exact token string.
	// Missing rows are not an error; deletion is idempotent.
	DeleteByToken(context context.Context, token string) error

	// DeleteByUser removes every session row belonging to the user.
	DeleteByUser(context context.Context, userID string) error

	// List returns every session row, for the expiry sweep.
	List(context context.Context) ([]*Session, error)
}

// # Refresh Token Access

// RefreshTokenRepository defines the data access contract for long-lived
// refresh credentials.
type RefreshTokenRepository interface {

	/*
		Create persists a newly issued refresh token.

		Parameters:
		  - context: context.Context
		  - token: *RefreshToken

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, token *RefreshToken) error

	/*
		FindByToken returns the refresh row matching the exact token string.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - *RefreshToken: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByToken(context context.Context, token string) (*RefreshToken, error)

	// RevokeAllForUser marks every refresh row of the user as revoked.
	RevokeAllForUser(context context.Context, userID string) error

	// DeleteExpired removes rows whose expiry is before the cutoff and
	// returns the number of rows removed.
	DeleteExpired(context context.Context, cutoff time.Time) (int64, error)
}

// # Volatile Data Access

// ResetTokenRepository defines the contract for storing volatile password
// reset tokens.
type ResetTokenRepository interface {

	/*
		Set stores a reset token associated with a userID for a limited duration.

		Parameters:
		  - context: context.Context
		  - token: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, token string, userID string, ttl time.Duration) error

	/*
		Get retrieves the userID associated with a given reset token.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: UserID
		  - error: Retrieval failures
	*/
	Get(context context.Context, token string) (string, error)

	/*
		Delete removes a reset token after successful use.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, token string) error
}
