// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package group manages user groups and their membership assignments.

Groups are the indirection layer of workflow sharing: a workflow is never
shared with a user directly, only with a group, and every member of that
group inherits the share.

# Core Responsibility

  - Organization: Defines the [Group] entity and its metadata.
  - Membership: Manages many-to-many user assignments.
  - Resolution: Answers "which groups does this user belong to" for the
    authorization engine.
*/
package group

import "time"

// # Core Entities

// Group represents a named collection of users that workflows can be shared with.
type Group struct {
	ID          string    `json:"id"` // UUIDv7
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment links one user to one group.
type Assignment struct {
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"` // Denormalized for member listings
	AssignedAt time.Time `json:"assigned_at"`
}

// # Field Identifiers

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldItems       = "items"
	FieldTotal       = "total"
	FieldMessage     = "message"
)
