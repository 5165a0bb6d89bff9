// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowra/internal/platform/apperr"
)

// # Matrix Repository

// PostgresRolePermissionRepository implements RolePermissionRepository using pgx.
type PostgresRolePermissionRepository struct {
	pool *pgxpool.Pool
}

// NewRolePermissionRepository creates a new PostgreSQL implementation of
// RolePermissionRepository.
func NewRolePermissionRepository(pool *pgxpool.Pool) *PostgresRolePermissionRepository {
	return &PostgresRolePermissionRepository{pool: pool}
}

/*
List returns every role-permission row, ordered for stable API output.

Parameters:
  - context: context.Context

Returns:
  - []*RolePermission: All matrix rows
  - error: Retrieval failures
*/
func (repository *PostgresRolePermissionRepository) List(context context.Context) ([]*RolePermission, error) {
	const query = `
		SELECT id, role, resource_type, permission, created_at
		FROM role_permissions
		ORDER BY role, resource_type, permission`

	return repository.queryRows(context, query)
}

/*
ListByRole returns the matrix rows for a single role.

Parameters:
  - context: context.Context
  - role: string

Returns:
  - []*RolePermission: Matching rows
  - error: Retrieval failures
*/
func (repository *PostgresRolePermissionRepository) ListByRole(context context.Context, role string) ([]*RolePermission, error) {
	const query = `
		SELECT id, role, resource_type, permission, created_at
		FROM role_permissions
		WHERE role = $1
		ORDER BY resource_type, permission`

	return repository.queryRows(context, query, role)
}

// queryRows executes a matrix query and hydrates all rows.
func (repository *PostgresRolePermissionRepository) queryRows(context context.Context, query string, args ...any) ([]*RolePermission, error) {
	rows, err := repository.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres_rbac_repo_query_failed: %w", err)
	}
	defer rows.Close()

	var result []*RolePermission
	for rows.Next() {
		row := &RolePermission{}
		if err := rows.Scan(&row.ID, &row.Role, &row.Resource, &row.Permission, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres_rbac_repo_scan_failed: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_rbac_repo_rows_failed: %w", err)
	}

	return result, nil
}

/*
Insert adds one matrix row, ignoring duplicates.

Description: ON CONFLICT DO NOTHING lets the startup reconciler re-assert the
admin invariant without first reading the table.

Parameters:
  - context: context.Context
  - row: *RolePermission

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRolePermissionRepository) Insert(context context.Context, row *RolePermission) error {
	const query = `
		INSERT INTO role_permissions (id, role, resource_type, permission, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, resource_type, permission) DO NOTHING`

	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		row.ID,
		row.Role,
		row.Resource,
		row.Permission,
		row.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_rbac_repo_insert_failed: %w", err)
	}

	return nil
}

// Delete removes one matrix row by its natural key.
func (repository *PostgresRolePermissionRepository) Delete(context context.Context, role, resource, permission string) error {
	const query = "DELETE FROM role_permissions WHERE role = $1 AND resource_type = $2 AND permission = $3"
	_, err := repository.pool.Exec(context, query, role, resource, permission)
	if err != nil {
		return fmt.Errorf("postgres_rbac_repo_delete_failed: %w", err)
	}
	return nil
}

// DeleteByRole removes every matrix row of one role.
func (repository *PostgresRolePermissionRepository) DeleteByRole(context context.Context, role string) error {
	const query = "DELETE FROM role_permissions WHERE role = $1"
	_, err := repository.pool.Exec(context, query, role)
	if err != nil {
		return fmt.Errorf("postgres_rbac_repo_delete_by_role_failed: %w", err)
	}
	return nil
}

// Count returns the total number of matrix rows.
func (repository *PostgresRolePermissionRepository) Count(context context.Context) (int64, error) {
	const query = "SELECT COUNT(*) FROM role_permissions"

	var total int64
	if err := repository.pool.QueryRow(context, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres_rbac_repo_count_failed: %w", err)
	}

	return total, nil
}

// # User Role Repository

// PostgresUserRoleRepository implements UserRoleRepository using pgx.
type PostgresUserRoleRepository struct {
	pool *pgxpool.Pool
}

// NewUserRoleRepository creates a new PostgreSQL implementation of UserRoleRepository.
func NewUserRoleRepository(pool *pgxpool.Pool) *PostgresUserRoleRepository {
	return &PostgresUserRoleRepository{pool: pool}
}

/*
Find returns the role recorded for the user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - string: Role name
  - error: apperr.NotFound when no record exists
*/
func (repository *PostgresUserRoleRepository) Find(context context.Context, userID string) (string, error) {
	const query = "SELECT role FROM user_roles WHERE user_id = $1"

	var role string
	err := repository.pool.QueryRow(context, query, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("No role record for user")
		}
		return "", fmt.Errorf("postgres_user_role_repo_find_failed: %w", err)
	}

	return role, nil
}

/*
Upsert records the user's role, replacing any previous record.

Parameters:
  - context: context.Context
  - userID: string
  - role: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresUserRoleRepository) Upsert(context context.Context, userID, role string) error {
	const query = `
		INSERT INTO user_roles (user_id, role, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`

	_, err := repository.pool.Exec(context, query, userID, role, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_role_repo_upsert_failed: %w", err)
	}

	return nil
}

// Delete removes the user's role record.
func (repository *PostgresUserRoleRepository) Delete(context context.Context, userID string) error {
	const query = "DELETE FROM user_roles WHERE user_id = $1"
	_, err := repository.pool.Exec(context, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_user_role_repo_delete_failed: %w", err)
	}
	return nil
}
