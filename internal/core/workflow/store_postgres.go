// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowra/internal/platform/dberr"
)

// PostgresRepository implements [Repository] using pgx. Steps live in a
// JSONB column on the workflows row; shares are a separate join table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a PostgreSQL backed workflow store.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// encodeSteps marshals the embedded step list for the JSONB column.
// A nil list is stored as an empty array so scans never see SQL NULL.
func encodeSteps(steps []*Step) ([]byte, error) {
	if steps == nil {
		steps = []*Step{}
	}
	payload, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("workflow_steps_encode_failed: %w", err)
	}
	return payload, nil
}

// # Workflow Retrieval

/*
FindByID retrieves a workflow by its primary key, steps included.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Workflow: Hydrated entity
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Workflow, error) {
	const query = `
		SELECT id, owner_user_id, name, description, steps, is_active, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	workflow := &Workflow{}
	var stepsPayload []byte

	err := repository.db.QueryRow(context, query, id).Scan(
		&workflow.ID, &workflow.OwnerID, &workflow.Name, &workflow.Description,
		&stepsPayload, &workflow.IsActive, &workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Workflow")
	}

	if err := json.Unmarshal(stepsPayload, &workflow.Steps); err != nil {
		return nil, fmt.Errorf("workflow_steps_decode_failed: %w", err)
	}

	return workflow, nil
}

/*
ListAll returns a page of every workflow.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []*Workflow: The page
  - int: Total record count
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) ListAll(context context.Context, limit, offset int) ([]*Workflow, int, error) {
	const query = `
		SELECT id, owner_user_id, name, description, steps, is_active,
			created_at, updated_at, COUNT(*) OVER() AS total
		FROM workflows
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return repository.queryPage(context, query, limit, offset)
}

/*
ListVisible returns a page of workflows the user owns or can reach through
a group share.

Description: Visibility is ownership OR a share row whose group the user is
assigned to. DISTINCT collapses workflows reachable through several groups.

Parameters:
  - context: context.Context
  - userID: string
  - limit: int
  - offset: int

Returns:
  - []*Workflow: The page
  - int: Total record count
  - error: Database retrieval failures
*/
func (repository *PostgresRepository) ListVisible(context context.Context, userID string, limit, offset int) ([]*Workflow, int, error) {
	const query = `
		SELECT DISTINCT w.id, w.owner_user_id, w.name, w.description, w.steps,
			w.is_active, w.created_at, w.updated_at, COUNT(*) OVER() AS total
		FROM workflows w
		LEFT JOIN workflow_shares s ON s.workflow_id = w.id
		LEFT JOIN group_assignments a ON a.group_id = s.group_id
		WHERE w.owner_user_id = $1 OR a.user_id = $1
		ORDER BY w.created_at DESC
		LIMIT $2 OFFSET $3
	`
	return repository.queryPage(context, query, userID, limit, offset)
}

// queryPage runs a paginated workflow query whose final column is the
// windowed total count.
func (repository *PostgresRepository) queryPage(context context.Context, query string, args ...any) ([]*Workflow, int, error) {
	rows, err := repository.db.Query(context, query, args...)
	if err != nil {
		return nil, 0, dberr.Wrap(err, "list_workflows")
	}
	defer rows.Close()

	var workflows []*Workflow
	var total int
	for rows.Next() {
		workflow := &Workflow{}
		var stepsPayload []byte

		err := rows.Scan(
			&workflow.ID, &workflow.OwnerID, &workflow.Name, &workflow.Description,
			&stepsPayload, &workflow.IsActive, &workflow.CreatedAt, &workflow.UpdatedAt, &total,
		)
		if err != nil {
			return nil, 0, dberr.Wrap(err, "scan_workflow")
		}

		if err := json.Unmarshal(stepsPayload, &workflow.Steps); err != nil {
			return nil, 0, fmt.Errorf("workflow_steps_decode_failed: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, total, nil
}

// # Workflow Mutation

/*
Create inserts a new workflow record with its embedded steps.

Parameters:
  - context: context.Context
  - workflow: *Workflow

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Create(context context.Context, workflow *Workflow) error {
	payload, err := encodeSteps(workflow.Steps)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO workflows (id, owner_user_id, name, description, steps, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = repository.db.QueryRow(context, query,
		workflow.ID, workflow.OwnerID, workflow.Name, workflow.Description, payload, workflow.IsActive,
	).Scan(&workflow.CreatedAt, &workflow.UpdatedAt)

	return dberr.Wrap(err, "Workflow")
}

/*
Update rewrites a workflow's metadata and full step list.

Parameters:
  - context: context.Context
  - workflow: *Workflow

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Update(context context.Context, workflow *Workflow) error {
	payload, err := encodeSteps(workflow.Steps)
	if err != nil {
		return err
	}

	const query = `
		UPDATE workflows
		SET name = $2, description = $3, steps = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = repository.db.QueryRow(context, query,
		workflow.ID, workflow.Name, workflow.Description, payload, workflow.IsActive,
	).Scan(&workflow.UpdatedAt)

	return dberr.Wrap(err, "Workflow")
}

/*
UpdateSteps rewrites only the embedded step list.

Description: The runner's post-execution write-back; the whole document is
replaced in one statement, so the last writer wins on concurrent runs.

Parameters:
  - context: context.Context
  - workflowID: string
  - steps: []*Step

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) UpdateSteps(context context.Context, workflowID string, steps []*Step) error {
	payload, err := encodeSteps(steps)
	if err != nil {
		return err
	}

	const query = `UPDATE workflows SET steps = $2, updated_at = NOW() WHERE id = $1`
	_, err = repository.db.Exec(context, query, workflowID, payload)
	return dberr.Wrap(err, "update_workflow_steps")
}

/*
Delete removes a workflow record.

Description: workflow_shares rows disappear through ON DELETE CASCADE.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM workflows WHERE id = $1`
	_, err := repository.db.Exec(context, query, id)
	return dberr.Wrap(err, "delete_workflow")
}

// # Share Implementation

/*
UpsertShare records a group share, updating the permission in place when a
row for (workflow, group) already exists.

Parameters:
  - context: context.Context
  - share: *Share

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) UpsertShare(context context.Context, share *Share) error {
	const query = `
		INSERT INTO workflow_shares (workflow_id, group_id, permission, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (workflow_id, group_id)
		DO UPDATE SET permission = EXCLUDED.permission, updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := repository.db.QueryRow(context, query,
		share.WorkflowID, share.GroupID, share.Permission,
	).Scan(&share.CreatedAt, &share.UpdatedAt)

	return dberr.Wrap(err, "upsert_share")
}

/*
DeleteShare removes one group's share row.

Parameters:
  - context: context.Context
  - workflowID: string
  - groupID: string

Returns:
  - error: Persistence failures
*/
func (repository *PostgresRepository) DeleteShare(context context.Context, workflowID, groupID string) error {
	const query = `DELETE FROM workflow_shares WHERE workflow_id = $1 AND group_id = $2`
	_, err := repository.db.Exec(context, query, workflowID, groupID)
	return dberr.Wrap(err, "delete_share")
}

/*
ListShares returns every share row of one workflow.

Parameters:
  - context: context.Context
  - workflowID: string

Returns:
  - []*Share: Share rows
  - error: Retrieval failures
*/
func (repository *PostgresRepository) ListShares(context context.Context, workflowID string) ([]*Share, error) {
	const query = `
		SELECT workflow_id, group_id, permission, created_at, updated_at
		FROM workflow_shares
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`
	rows, err := repository.db.Query(context, query, workflowID)
	if err != nil {
		return nil, dberr.Wrap(err, "list_shares")
	}
	defer rows.Close()

	var shares []*Share
	for rows.Next() {
		share := &Share{}
		if err := rows.Scan(&share.WorkflowID, &share.GroupID, &share.Permission, &share.CreatedAt, &share.UpdatedAt); err != nil {
			return nil, dberr.Wrap(err, "scan_share")
		}
		shares = append(shares, share)
	}

	return shares, nil
}
