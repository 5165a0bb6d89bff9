// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package rbac_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/rbac"
)

// # Fakes

type matrixKey struct {
	role       string
	resource   string
	permission string
}

type fakeMatrixRepo struct {
	rows map[matrixKey]*rbac.RolePermission
}

func newFakeMatrixRepo() *fakeMatrixRepo {
	return &fakeMatrixRepo{rows: make(map[matrixKey]*rbac.RolePermission)}
}

func (repo *fakeMatrixRepo) List(_ context.Context) ([]*rbac.RolePermission, error) {
	out := make([]*rbac.RolePermission, 0, len(repo.rows))
	for _, row := range repo.rows {
		out = append(out, row)
	}
	return out, nil
}

func (repo *fakeMatrixRepo) ListByRole(_ context.Context, role string) ([]*rbac.RolePermission, error) {
	var out []*rbac.RolePermission
	for key, row := range repo.rows {
		if key.role == role {
			out = append(out, row)
		}
	}
	return out, nil
}

func (repo *fakeMatrixRepo) Insert(_ context.Context, row *rbac.RolePermission) error {
	key := matrixKey{row.Role, row.Resource, row.Permission}
	if _, exists := repo.rows[key]; exists {
		return nil
	}
	repo.rows[key] = row
	return nil
}

func (repo *fakeMatrixRepo) Delete(_ context.Context, role, resource, permission string) error {
	delete(repo.rows, matrixKey{role, resource, permission})
	return nil
}

func (repo *fakeMatrixRepo) DeleteByRole(_ context.Context, role string) error {
	for key := range repo.rows {
		if key.role == role {
			delete(repo.rows, key)
		}
	}
	return nil
}

func (repo *fakeMatrixRepo) Count(_ context.Context) (int64, error) {
	return int64(len(repo.rows)), nil
}

func (repo *fakeMatrixRepo) countByRole(role string) int {
	total := 0
	for key := range repo.rows {
		if key.role == role {
			total++
		}
	}
	return total
}

type fakeUserRoleRepo struct {
	roles map[string]string
}

func newFakeUserRoleRepo() *fakeUserRoleRepo {
	return &fakeUserRoleRepo{roles: make(map[string]string)}
}

func (repo *fakeUserRoleRepo) Find(_ context.Context, userID string) (string, error) {
	role, ok := repo.roles[userID]
	if !ok {
		return "", apperr.NotFound("Role record")
	}
	return role, nil
}

func (repo *fakeUserRoleRepo) Upsert(_ context.Context, userID, role string) error {
	repo.roles[userID] = role
	return nil
}

func (repo *fakeUserRoleRepo) Delete(_ context.Context, userID string) error {
	delete(repo.roles, userID)
	return nil
}

type fakeDirectory struct {
	permanent map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{permanent: make(map[string]bool)}
}

func (directory *fakeDirectory) IsPermanentAdmin(_ context.Context, userID string) (bool, error) {
	return directory.permanent[userID], nil
}

func (directory *fakeDirectory) SetPermanentAdmin(_ context.Context, userID string) error {
	directory.permanent[userID] = true
	return nil
}

type fakeGroups struct {
	memberships map[string][]string
}

func (groups *fakeGroups) GroupIDsForUser(_ context.Context, userID string) ([]string, error) {
	return groups.memberships[userID], nil
}

// # Fixture

type rbacFixture struct {
	service   *rbac.Service
	matrix    *fakeMatrixRepo
	userRoles *fakeUserRoleRepo
	directory *fakeDirectory
	groups    *fakeGroups
}

func newRBACFixture(t *testing.T) *rbacFixture {
	t.Helper()

	fixture := &rbacFixture{
		matrix:    newFakeMatrixRepo(),
		userRoles: newFakeUserRoleRepo(),
		directory: newFakeDirectory(),
		groups:    &fakeGroups{memberships: make(map[string][]string)},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixture.service = rbac.NewService(fixture.matrix, fixture.userRoles, fixture.directory, fixture.groups, logger)

	return fixture
}

func viewerClaims(userID string) *sec.AuthClaims {
	return &sec.AuthClaims{
		UserID: userID,
		Role:   string(sec.RoleViewer),
		Permissions: map[string][]string{
			sec.ResourceWorkflow: {sec.PermissionRead},
			sec.ResourceUser:     {sec.PermissionRead},
			sec.ResourceGroup:    {sec.PermissionRead},
			sec.ResourceSystem:   {sec.PermissionRead},
		},
	}
}

// # Reconciliation

/*
TestReconcile_SeedsEmptyMatrix verifies that a fresh table receives the full
default matrix: sixteen admin rows, seven manager rows, four viewer rows.
*/
func TestReconcile_SeedsEmptyMatrix(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Reconcile(ctx))

	assert.Equal(t, 16, fixture.matrix.countByRole(string(sec.RoleAdmin)))
	assert.Equal(t, 7, fixture.matrix.countByRole(string(sec.RoleManager)))
	assert.Equal(t, 4, fixture.matrix.countByRole(string(sec.RoleViewer)))
}

/*
TestReconcile_RestoresAdminRows verifies that deleted admin rows reappear on
the next boot while customized non-admin roles are left untouched.
*/
func TestReconcile_RestoresAdminRows(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.Reconcile(ctx))

	// Simulate direct table damage and a legitimate customization
	require.NoError(t, fixture.matrix.Delete(ctx, string(sec.RoleAdmin), sec.ResourceWorkflow, sec.PermissionDelete))
	require.NoError(t, fixture.matrix.Delete(ctx, string(sec.RoleViewer), sec.ResourceSystem, sec.PermissionRead))

	require.NoError(t, fixture.service.Reconcile(ctx))

	assert.Equal(t, 16, fixture.matrix.countByRole(string(sec.RoleAdmin)))
	assert.Equal(t, 3, fixture.matrix.countByRole(string(sec.RoleViewer)), "viewer customization must survive reconciliation")
}

// # Matrix Administration

/*
TestMatrixWrites_AdminImmutable verifies that add, remove, and reset all
reject the admin role with the same message.
*/
func TestMatrixWrites_AdminImmutable(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()
	require.NoError(t, fixture.service.Reconcile(ctx))

	_, err := fixture.service.AddPermission(ctx, string(sec.RoleAdmin), sec.ResourceWorkflow, sec.PermissionRead)
	assert.ErrorContains(t, err, "admin role cannot be modified")

	err = fixture.service.RemovePermission(ctx, string(sec.RoleAdmin), sec.ResourceWorkflow, sec.PermissionRead)
	assert.ErrorContains(t, err, "admin role cannot be modified")

	err = fixture.service.ResetRole(ctx, string(sec.RoleAdmin))
	assert.ErrorContains(t, err, "admin role cannot be modified")

	assert.Equal(t, 16, fixture.matrix.countByRole(string(sec.RoleAdmin)))
}

/*
TestMatrixWrites_RoundTrip verifies add, remove, and reset on a non-admin role.
*/
func TestMatrixWrites_RoundTrip(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()
	require.NoError(t, fixture.service.Reconcile(ctx))

	row, err := fixture.service.AddPermission(ctx, string(sec.RoleViewer), sec.ResourceWorkflow, sec.PermissionExecute)
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, 5, fixture.matrix.countByRole(string(sec.RoleViewer)))

	// Duplicate insert is ignored
	_, err = fixture.service.AddPermission(ctx, string(sec.RoleViewer), sec.ResourceWorkflow, sec.PermissionExecute)
	require.NoError(t, err)
	assert.Equal(t, 5, fixture.matrix.countByRole(string(sec.RoleViewer)))

	require.NoError(t, fixture.service.RemovePermission(ctx, string(sec.RoleViewer), sec.ResourceWorkflow, sec.PermissionExecute))
	assert.Equal(t, 4, fixture.matrix.countByRole(string(sec.RoleViewer)))

	require.NoError(t, fixture.service.RemovePermission(ctx, string(sec.RoleViewer), sec.ResourceSystem, sec.PermissionRead))
	require.NoError(t, fixture.service.ResetRole(ctx, string(sec.RoleViewer)))
	assert.Equal(t, 4, fixture.matrix.countByRole(string(sec.RoleViewer)))
}

/*
TestMatrixWrites_RejectsUnknownVocabulary verifies the role, resource, and
permission vocabularies are enforced on writes.
*/
func TestMatrixWrites_RejectsUnknownVocabulary(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	_, err := fixture.service.AddPermission(ctx, "superuser", sec.ResourceWorkflow, sec.PermissionRead)
	assert.ErrorContains(t, err, "Unknown role")

	_, err = fixture.service.AddPermission(ctx, string(sec.RoleViewer), "pipeline", sec.PermissionRead)
	assert.ErrorContains(t, err, "Unknown resource type")

	_, err = fixture.service.AddPermission(ctx, string(sec.RoleViewer), sec.ResourceWorkflow, "own")
	assert.ErrorContains(t, err, "Unknown permission")
}

// # Snapshot

/*
TestSnapshot_DefaultsToViewer verifies that a user without a role record is
treated as a viewer with the viewer's matrix rows.
*/
func TestSnapshot_DefaultsToViewer(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()
	require.NoError(t, fixture.service.Reconcile(ctx))

	role, permissions, err := fixture.service.Snapshot(ctx, "user-without-record")
	require.NoError(t, err)

	assert.Equal(t, string(sec.RoleViewer), role)
	assert.ElementsMatch(t, []string{sec.PermissionRead}, permissions[sec.ResourceWorkflow])
	assert.ElementsMatch(t, []string{sec.PermissionRead}, permissions[sec.ResourceSystem])
}

// # Resolution

/*
TestAllow_AdminBypass verifies that both the admin role and the permanent
flag short-circuit resolution.
*/
func TestAllow_AdminBypass(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	byRole := &sec.AuthClaims{UserID: "u1", Role: string(sec.RoleAdmin)}
	allowed, err := fixture.service.Allow(ctx, byRole, sec.PermissionDelete, sec.ResourceSystem, nil)
	require.NoError(t, err)
	assert.True(t, allowed)

	byFlag := &sec.AuthClaims{UserID: "u2", Role: string(sec.RoleViewer), IsAdmin: true}
	allowed, err = fixture.service.Allow(ctx, byFlag, sec.PermissionDelete, sec.ResourceWorkflow, &rbac.WorkflowACL{OwnerID: "someone-else"})
	require.NoError(t, err)
	assert.True(t, allowed)
}

/*
TestAllow_OwnerFullControl verifies that ownership grants every operation on
the owned workflow, regardless of the role layer.
*/
func TestAllow_OwnerFullControl(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	claims := viewerClaims("owner-1")
	acl := &rbac.WorkflowACL{OwnerID: "owner-1"}

	for _, operation := range sec.Permissions() {
		allowed, err := fixture.service.Allow(ctx, claims, operation, sec.ResourceWorkflow, acl)
		require.NoError(t, err)
		assert.True(t, allowed, "owner should be allowed %s", operation)
	}
}

/*
TestAllow_ShareExpansion verifies that a read share on a group the viewer
belongs to confers read and execute but not write on the shared workflow.
*/
func TestAllow_ShareExpansion(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	fixture.groups.memberships["bob"] = []string{"group-analytics"}

	claims := viewerClaims("bob")
	acl := &rbac.WorkflowACL{
		OwnerID: "alice",
		Shares:  map[string]string{"group-analytics": sec.PermissionRead},
	}

	allowed, err := fixture.service.Allow(ctx, claims, sec.PermissionRead, sec.ResourceWorkflow, acl)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = fixture.service.Allow(ctx, claims, sec.PermissionExecute, sec.ResourceWorkflow, acl)
	require.NoError(t, err)
	assert.True(t, allowed, "read share should expand to execute")

	allowed, err = fixture.service.Allow(ctx, claims, sec.PermissionWrite, sec.ResourceWorkflow, acl)
	require.NoError(t, err)
	assert.False(t, allowed)
}

/*
TestAllow_UnrelatedWorkflowDenied verifies that role-layer grants never reach
a workflow the user neither owns nor received a share for.
*/
func TestAllow_UnrelatedWorkflowDenied(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	claims := viewerClaims("bob")
	acl := &rbac.WorkflowACL{
		OwnerID: "alice",
		Shares:  map[string]string{"group-bob-is-not-in": sec.PermissionWrite},
	}

	allowed, err := fixture.service.Allow(ctx, claims, sec.PermissionRead, sec.ResourceWorkflow, acl)
	require.NoError(t, err)
	assert.False(t, allowed)
}

/*
TestAllow_RoleLayerFallback verifies that non-workflow resources, and
workflow operations without a concrete target, resolve against the claims
permission snapshot.
*/
func TestAllow_RoleLayerFallback(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	claims := viewerClaims("bob")

	allowed, err := fixture.service.Allow(ctx, claims, sec.PermissionRead, sec.ResourceGroup, nil)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = fixture.service.Allow(ctx, claims, sec.PermissionWrite, sec.ResourceGroup, nil)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = fixture.service.Allow(ctx, nil, sec.PermissionRead, sec.ResourceGroup, nil)
	require.NoError(t, err)
	assert.False(t, allowed, "anonymous principals are denied")
}

// # Role State Machine

/*
TestSetRole_StateMachine verifies self-change and permanent-admin-downgrade
rejections plus the plain upsert path.
*/
func TestSetRole_StateMachine(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	err := fixture.service.SetRole(ctx, "admin-1", "admin-1", string(sec.RoleManager))
	assert.ErrorContains(t, err, "Users cannot change their own role")

	require.NoError(t, fixture.directory.SetPermanentAdmin(ctx, "founder"))
	err = fixture.service.SetRole(ctx, "admin-1", "founder", string(sec.RoleViewer))
	assert.ErrorContains(t, err, "Permanent administrators cannot be downgraded")

	// Permanent admins can be re-asserted as admin
	require.NoError(t, fixture.service.SetRole(ctx, "admin-1", "founder", string(sec.RoleAdmin)))

	err = fixture.service.SetRole(ctx, "admin-1", "bob", "superuser")
	assert.ErrorContains(t, err, "Unknown role")

	require.NoError(t, fixture.service.SetRole(ctx, "admin-1", "bob", string(sec.RoleManager)))
	role, err := fixture.userRoles.Find(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, string(sec.RoleManager), role)
}

/*
TestSetRole_TemporaryAdminReversible verifies that an admin role granted via
SetRole, unlike the permanent flag, can be taken back.
*/
func TestSetRole_TemporaryAdminReversible(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.service.SetRole(ctx, "admin-1", "carol", string(sec.RoleAdmin)))
	require.NoError(t, fixture.service.SetRole(ctx, "admin-1", "carol", string(sec.RoleViewer)))

	role, err := fixture.userRoles.Find(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, string(sec.RoleViewer), role)
}

/*
TestPromotePermanentAdmin verifies the one-way escalation raises the flag,
records the admin role, and rejects self-promotion.
*/
func TestPromotePermanentAdmin(t *testing.T) {
	fixture := newRBACFixture(t)
	ctx := context.Background()

	err := fixture.service.PromotePermanentAdmin(ctx, "admin-1", "admin-1")
	assert.ErrorContains(t, err, "Users cannot change their own role")

	require.NoError(t, fixture.service.PromotePermanentAdmin(ctx, "admin-1", "dave"))

	permanent, err := fixture.directory.IsPermanentAdmin(ctx, "dave")
	require.NoError(t, err)
	assert.True(t, permanent)

	role, err := fixture.userRoles.Find(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, string(sec.RoleAdmin), role)

	// Once permanent, the downgrade path is closed
	err = fixture.service.SetRole(ctx, "admin-1", "dave", string(sec.RoleManager))
	assert.ErrorContains(t, err, "Permanent administrators cannot be downgraded")
}
