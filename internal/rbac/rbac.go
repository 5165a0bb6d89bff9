// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package rbac implements the role-based authorization engine.

It owns the role → permission matrix, the per-user role records, and the
resolution algorithm that combines role-layer grants with workflow group
shares into a single allow/deny decision.

# Architecture

The engine is consulted two ways: at token mint time (the permission snapshot
embedded in access-token claims) and at request time (the [Service.Allow]
resolution, which also considers workflow ownership and shares).
*/
package rbac

import (
	"time"

	"github.com/taibuivan/flowra/internal/platform/sec"
)

// # Domain Entities

// RolePermission is one row of the role → permission matrix.
type RolePermission struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Resource   string    `json:"resource_type"`
	Permission string    `json:"permission"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserRole records the single role assigned to a user. A user with no record
// is a viewer.
type UserRole struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowACL carries the ownership and share facts of one workflow into the
// resolution algorithm. Shares map group ID → granted permission.
type WorkflowACL struct {
	OwnerID string
	Shares  map[string]string
}

// # Default Matrix

// defaultMatrix is the role → resource → permissions table seeded at startup.
// The admin rows are an invariant: the reconciler restores them on every boot
// and the writer API refuses to touch them.
var defaultMatrix = map[string]map[string][]string{
	string(sec.RoleAdmin): {
		sec.ResourceWorkflow: {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute, sec.PermissionDelete},
		sec.ResourceUser:     {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute, sec.PermissionDelete},
		sec.ResourceGroup:    {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute, sec.PermissionDelete},
		sec.ResourceSystem:   {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute, sec.PermissionDelete},
	},
	string(sec.RoleManager): {
		sec.ResourceWorkflow: {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute},
		sec.ResourceUser:     {sec.PermissionRead},
		sec.ResourceGroup:    {sec.PermissionRead, sec.PermissionWrite},
		sec.ResourceSystem:   {sec.PermissionRead},
	},
	string(sec.RoleViewer): {
		sec.ResourceWorkflow: {sec.PermissionRead},
		sec.ResourceUser:     {sec.PermissionRead},
		sec.ResourceGroup:    {sec.PermissionRead},
		sec.ResourceSystem:   {sec.PermissionRead},
	},
}

// DefaultPermissionsForRole returns a fresh copy of the default matrix rows
// for one role, or nil for unknown roles.
func DefaultPermissionsForRole(role string) map[string][]string {
	rows, ok := defaultMatrix[role]
	if !ok {
		return nil
	}

	snapshot := make(map[string][]string, len(rows))
	for resource, permissions := range rows {
		snapshot[resource] = append([]string(nil), permissions...)
	}
	return snapshot
}

// # Share Semantics

// EffectiveSharePermissions expands a granted share permission into the set
// it actually confers on group members.
//
//	read    ⇒ {read, execute}
//	write   ⇒ {read, write, execute}
//	execute ⇒ {read, execute}
func EffectiveSharePermissions(granted string) []string {
	switch granted {
	case sec.PermissionRead:
		return []string{sec.PermissionRead, sec.PermissionExecute}
	case sec.PermissionWrite:
		return []string{sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute}
	case sec.PermissionExecute:
		return []string{sec.PermissionRead, sec.PermissionExecute}
	default:
		return nil
	}
}

// IsSharePermission reports whether the value is grantable through a share.
// Delete is deliberately not shareable.
func IsSharePermission(value string) bool {
	switch value {
	case sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute:
		return true
	}
	return false
}

// # Field Identifiers

const (
	FieldRole       = "role"
	FieldResource   = "resource_type"
	FieldPermission = "permission"
	FieldUserID     = "user_id"
)
