// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package group

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowra/internal/platform/dberr"
)

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgreSQL backed group store.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// # Group Retrieval

/*
List returns a paginated list of groups with member counts.

Description: Uses COUNT(*) OVER() for total metadata and a correlated
subquery for per-group member counts.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []*Group: Slice of groups
  - int: Total record count
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) List(context context.Context, limit, offset int) ([]*Group, int, error) {
	const query = `
		SELECT
			g.id, g.name, g.description,
			(SELECT COUNT(*) FROM group_assignments a WHERE a.group_id = g.id) AS member_count,
			g.created_at, g.updated_at,
			COUNT(*) OVER() AS total
		FROM groups g
		ORDER BY g.name ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := repository.db.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, dberr.Wrap(err, "list_groups")
	}
	defer rows.Close()

	var groups []*Group
	var total int
	for rows.Next() {
		group := &Group{}
		err := rows.Scan(
			&group.ID, &group.Name, &group.Description,
			&group.MemberCount, &group.CreatedAt, &group.UpdatedAt, &total,
		)
		if err != nil {
			return nil, 0, dberr.Wrap(err, "scan_group")
		}
		groups = append(groups, group)
	}

	return groups, total, nil
}

/*
FindByID retrieves a single group record by its primary key.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Group: Hydrated entity
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Group, error) {
	const query = `
		SELECT
			g.id, g.name, g.description,
			(SELECT COUNT(*) FROM group_assignments a WHERE a.group_id = g.id) AS member_count,
			g.created_at, g.updated_at
		FROM groups g
		WHERE g.id = $1
	`
	group := &Group{}
	err := repository.db.QueryRow(context, query, id).Scan(
		&group.ID, &group.Name, &group.Description,
		&group.MemberCount, &group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Group")
	}
	return group, nil
}

/*
FindByName retrieves a group by its unique name.

Parameters:
  - context: context.Context
  - name: string

Returns:
  - *Group: Hydrated entity
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) FindByName(context context.Context, name string) (*Group, error) {
	const query = `
		SELECT id, name, description, created_at, updated_at
		FROM groups
		WHERE name = $1
	`
	group := &Group{}
	err := repository.db.QueryRow(context, query, name).Scan(
		&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Group")
	}
	return group, nil
}

// # Group Mutation

/*
Create inserts a new group record.

Parameters:
  - context: context.Context
  - group: *Group

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Create(context context.Context, group *Group) error {
	const query = `
		INSERT INTO groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := repository.db.QueryRow(context, query,
		group.ID, group.Name, group.Description,
	).Scan(&group.CreatedAt, &group.UpdatedAt)

	return dberr.Wrap(err, "Group")
}

/*
Update modifies a group's name and description.

Parameters:
  - context: context.Context
  - group: *Group

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Update(context context.Context, group *Group) error {
	const query = `
		UPDATE groups
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := repository.db.QueryRow(context, query, group.ID, group.Name, group.Description).Scan(&group.UpdatedAt)
	return dberr.Wrap(err, "Group")
}

/*
Delete removes a group record.

Description: group_assignments and workflow_shares rows referencing the
group disappear through ON DELETE CASCADE, which is how a deleted group's
shares stop granting access.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM groups WHERE id = $1`
	_, err := repository.db.Exec(context, query, id)
	return dberr.Wrap(err, "delete_group")
}

// # Membership Implementation

/*
ListMembers retrieves all users assigned to a group.

Parameters:
  - context: context.Context
  - groupID: string

Returns:
  - []*Assignment: Membership rows with denormalized usernames
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListMembers(context context.Context, groupID string) ([]*Assignment, error) {
	const query = `
		SELECT a.group_id, a.user_id, u.username, a.assigned_at
		FROM group_assignments a
		JOIN users u ON a.user_id = u.id
		WHERE a.group_id = $1
		ORDER BY a.assigned_at ASC
	`
	rows, err := repository.db.Query(context, query, groupID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_group_members")
	}
	defer rows.Close()

	var members []*Assignment
	for rows.Next() {
		member := &Assignment{}
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Username, &member.AssignedAt); err != nil {
			return nil, dberr.Wrap(err, "scan_member")
		}
		members = append(members, member)
	}

	return members, nil
}

/*
AddMember assigns a user to a group.

Description: Uses ON CONFLICT DO NOTHING so re-assigning an existing member
is idempotent.

Parameters:
  - context: context.Context
  - groupID: string
  - userID: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) AddMember(context context.Context, groupID, userID string) error {
	const query = `
		INSERT INTO group_assignments (group_id, user_id, assigned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := repository.db.Exec(context, query, groupID, userID)
	return dberr.Wrap(err, "add_group_member")
}

/*
RemoveMember removes one user's assignment.

Parameters:
  - context: context.Context
  - groupID: string
  - userID: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) RemoveMember(context context.Context, groupID, userID string) error {
	const query = `DELETE FROM group_assignments WHERE group_id = $1 AND user_id = $2`
	_, err := repository.db.Exec(context, query, groupID, userID)
	return dberr.Wrap(err, "remove_group_member")
}

/*
GroupIDsForUser returns the IDs of every group the user belongs to.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Group IDs
  - error: Retrieval failures
*/
func (repository *PostgresRepository) GroupIDsForUser(context context.Context, userID string) ([]string, error) {
	const query = `SELECT group_id FROM group_assignments WHERE user_id = $1`

	rows, err := repository.db.Query(context, query, userID)
	if err != nil {
		return nil, dberr.Wrap(err, "groups_for_user")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(err, "scan_group_id")
		}
		ids = append(ids, id)
	}

	return ids, nil
}
