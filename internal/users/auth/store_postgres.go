// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// PostgreSQL implementations of the auth data access contracts.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create persists a new user record into the users table.

Description: Deep-persists account metadata, ensuring timestamps are
initialized if not provided.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users (
			id, username, email, password_hash, is_active, is_permanent_admin, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.IsPermanentAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "user")
	}

	return nil
}

/*
FindByID retrieves a user record by their unique ID.

Description: Primary key resolution for user accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT id, username, email, password_hash, is_active, is_permanent_admin, created_at, updated_at
		FROM users
		WHERE id = $1`

	return repository.scanOne(context, query, id, "User not found")
}

/*
FindByUsername retrieves a user record by their unique username.

Description: Standard lookup by username for authentication and profile resolution.

Parameters:
  - context: context.Context
  - username: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	const query = `
		SELECT id, username, email, password_hash, is_active, is_permanent_admin, created_at, updated_at
		FROM users
		WHERE username = $1`

	return repository.scanOne(context, query, username, "User not found with this username")
}

/*
FindByEmail retrieves a user record by their unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	const query = `
		SELECT id, username, email, password_hash, is_active, is_permanent_admin, created_at, updated_at
		FROM users
		WHERE email = $1`

	return repository.scanOne(context, query, email, "User not found with this email")
}

// scanOne executes a single-row user query and hydrates the entity.
func (repository *PostgresUserRepository) scanOne(context context.Context, query, arg, notFoundMsg string) (*User, error) {
	user := &User{}
	err := repository.pool.QueryRow(context, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsPermanentAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(notFoundMsg)
		}
		return nil, fmt.Errorf("postgres_user_repo_find_failed: %w", err)
	}

	return user, nil
}

/*
UpdateUsername replaces the account's username.

Parameters:
  - context: context.Context
  - userID: string
  - username: string

Returns:
  - error: Unique violations mapped to apperr.Conflict, or execution errors
*/
func (repository *PostgresUserRepository) UpdateUsername(context context.Context, userID, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, username, time.Now())
	if err != nil {
		return dberr.Wrap(err, "username")
	}

	return nil
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}

	return nil
}

/*
Delete permanently removes a user account.

Description: Dependent sessions, refresh tokens, role assignments, group
memberships, and owned workflows are removed by FK cascades.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Deletion failures
*/
func (repository *PostgresUserRepository) Delete(context context.Context, id string) error {
	const query = "DELETE FROM users WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_delete_failed: %w", err)
	}
	return nil
}

// IsPermanentAdmin reports whether the account carries the permanent-admin flag.
func (repository *PostgresUserRepository) IsPermanentAdmin(context context.Context, userID string) (bool, error) {
	const query = "SELECT is_permanent_admin FROM users WHERE id = $1"

	var permanent bool
	err := repository.pool.QueryRow(context, query, userID).Scan(&permanent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperr.NotFound("User")
		}
		return false, fmt.Errorf("postgres_user_repo_permanent_admin_failed: %w", err)
	}

	return permanent, nil
}

// SetPermanentAdmin raises the permanent-admin flag. One-way; there is no
// corresponding clear operation.
func (repository *PostgresUserRepository) SetPermanentAdmin(context context.Context, userID string) error {
	const query = "UPDATE users SET is_permanent_admin = TRUE, updated_at = $2 WHERE id = $1"
	_, err := repository.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_set_permanent_admin_failed: %w", err)
	}
	return nil
}

// UserExists reports whether an account with the given ID exists.
func (repository *PostgresUserRepository) UserExists(context context.Context, userID string) (bool, error) {
	const query = "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)"

	var exists bool
	if err := repository.pool.QueryRow(context, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres_user_repo_exists_failed: %w", err)
	}

	return exists, nil
}

// Count returns the total number of registered accounts.
func (repository *PostgresUserRepository) Count(context context.Context) (int64, error) {
	const query = "SELECT COUNT(*) FROM users"

	var total int64
	if err := repository.pool.QueryRow(context, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres_user_repo_count_failed: %w", err)
	}

	return total, nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session row into the ledger.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByToken retrieves a session row by the exact access-token string.

Description: The expiry check deliberately happens in the service layer, not
in SQL, because expires_at is stored as text in mixed encodings.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *Session: Hydrated session metadata
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByToken(context context.Context, token string) (*Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session not found")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// Delete removes a single session row by ID.
func (repository *PostgresSessionRepository) Delete(context context.Context, id string) error {
	const query = "DELETE FROM sessions WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_failed: %w", err)
	}
	return nil
}

// DeleteByToken removes the session row matching the token. Idempotent.
func (repository *PostgresSessionRepository) DeleteByToken(context context.Context, token string) error {
	const query = "DELETE FROM sessions WHERE token = $1"
	_, err := repository.pool.Exec(context, query, token)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_by_token_failed: %w", err)
	}
	return nil
}

// DeleteByUser removes every session row belonging to the user.
func (repository *PostgresSessionRepository) DeleteByUser(context context.Context, userID string) error {
	const query = "DELETE FROM sessions WHERE user_id = $1"
	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_by_user_failed: %w", err)
	}
	return nil
}

/*
List returns every session row in the ledger.

Description: Used exclusively by the cleanup sweep, which must inspect each
textual expiry itself.

Parameters:
  - context: context.Context

Returns:
  - []*Session: All ledger rows
  - error: Retrieval failures
*/
func (repository *PostgresSessionRepository) List(context context.Context) ([]*Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		ORDER BY created_at`

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Token,
			&session.ExpiresAt,
			&session.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_rows_failed: %w", err)
	}

	return sessions, nil
}

// # Refresh Token Repository

// PostgresRefreshTokenRepository implements the RefreshTokenRepository interface.
type PostgresRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository creates a new PostgreSQL implementation of RefreshTokenRepository.
func NewRefreshTokenRepository(pool *pgxpool.Pool) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{pool: pool}
}

/*
Create persists a newly issued refresh token.

Parameters:
  - context: context.Context
  - token: *RefreshToken

Returns:
  - error: Storage failures
*/
func (repository *PostgresRefreshTokenRepository) Create(context context.Context, token *RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, is_revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.IsRevoked,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByToken retrieves a refresh row by the exact token string.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *RefreshToken: Hydrated entity, revoked or not
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresRefreshTokenRepository) FindByToken(context context.Context, token string) (*RefreshToken, error) {
	const query = `
		SELECT id, user_id, token, expires_at, is_revoked, created_at
		FROM refresh_tokens
		WHERE token = $1`

	refresh := &RefreshToken{}
	err := repository.pool.QueryRow(context, query, token).Scan(
		&refresh.ID,
		&refresh.UserID,
		&refresh.Token,
		&refresh.ExpiresAt,
		&refresh.IsRevoked,
		&refresh.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token not found")
		}
		return nil, fmt.Errorf("postgres_refresh_repo_find_failed: %w", err)
	}

	return refresh, nil
}

// RevokeAllForUser marks every refresh row of the user as revoked.
func (repository *PostgresRefreshTokenRepository) RevokeAllForUser(context context.Context, userID string) error {
	const query = "UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE"
	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}
	return nil
}

/*
DeleteExpired permanently removes refresh rows past the cutoff.

Parameters:
  - context: context.Context
  - cutoff: time.Time

Returns:
  - int64: Number of rows removed
  - error: Cleanup failures
*/
func (repository *PostgresRefreshTokenRepository) DeleteExpired(context context.Context, cutoff time.Time) (int64, error) {
	const query = "DELETE FROM refresh_tokens WHERE expires_at <= $1"

	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
