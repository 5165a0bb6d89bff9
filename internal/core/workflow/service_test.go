// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/core/workflow"
	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/rbac"
)

// # Fakes

type shareKey struct {
	workflowID string
	groupID    string
}

type fakeWorkflowRepo struct {
	workflows map[string]*workflow.Workflow
	shares    map[shareKey]*workflow.Share
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{
		workflows: make(map[string]*workflow.Workflow),
		shares:    make(map[shareKey]*workflow.Share),
	}
}

func (repo *fakeWorkflowRepo) Create(_ context.Context, w *workflow.Workflow) error {
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	repo.workflows[w.ID] = w
	return nil
}

func (repo *fakeWorkflowRepo) FindByID(_ context.Context, id string) (*workflow.Workflow, error) {
	w, ok := repo.workflows[id]
	if !ok {
		return nil, apperr.NotFound("Workflow")
	}
	return w, nil
}

func (repo *fakeWorkflowRepo) ListAll(_ context.Context, limit, offset int) ([]*workflow.Workflow, int, error) {
	all := make([]*workflow.Workflow, 0, len(repo.workflows))
	for _, w := range repo.workflows {
		all = append(all, w)
	}
	return all, len(all), nil
}

func (repo *fakeWorkflowRepo) ListVisible(_ context.Context, userID string, limit, offset int) ([]*workflow.Workflow, int, error) {
	var visible []*workflow.Workflow
	for _, w := range repo.workflows {
		if w.OwnerID == userID {
			visible = append(visible, w)
		}
	}
	return visible, len(visible), nil
}

func (repo *fakeWorkflowRepo) Update(_ context.Context, w *workflow.Workflow) error {
	w.UpdatedAt = time.Now()
	repo.workflows[w.ID] = w
	return nil
}

func (repo *fakeWorkflowRepo) UpdateSteps(_ context.Context, workflowID string, steps []*workflow.Step) error {
	w, ok := repo.workflows[workflowID]
	if !ok {
		return apperr.NotFound("Workflow")
	}
	w.Steps = steps
	w.UpdatedAt = time.Now()
	return nil
}

func (repo *fakeWorkflowRepo) Delete(_ context.Context, id string) error {
	delete(repo.workflows, id)
	for key := range repo.shares {
		if key.workflowID == id {
			delete(repo.shares, key)
		}
	}
	return nil
}

func (repo *fakeWorkflowRepo) UpsertShare(_ context.Context, share *workflow.Share) error {
	key := shareKey{share.WorkflowID, share.GroupID}
	if existing, ok := repo.shares[key]; ok {
		existing.Permission = share.Permission
		existing.UpdatedAt = time.Now()
		*share = *existing
		return nil
	}
	share.CreatedAt = time.Now()
	share.UpdatedAt = share.CreatedAt
	repo.shares[key] = share
	return nil
}

func (repo *fakeWorkflowRepo) DeleteShare(_ context.Context, workflowID, groupID string) error {
	delete(repo.shares, shareKey{workflowID, groupID})
	return nil
}

func (repo *fakeWorkflowRepo) ListShares(_ context.Context, workflowID string) ([]*workflow.Share, error) {
	var shares []*workflow.Share
	for key, share := range repo.shares {
		if key.workflowID == workflowID {
			shares = append(shares, share)
		}
	}
	return shares, nil
}

type fakeStorage struct {
	created []string
	fail    bool
}

func (storage *fakeStorage) EnsureStepDir(workflowID, directoryName string) (string, error) {
	if storage.fail {
		return "", errors.New("disk full")
	}
	storage.created = append(storage.created, workflowID+"/"+directoryName)
	return "/data/" + workflowID + "/" + directoryName, nil
}

// fakeAuthorizer mirrors the engine's concrete-workflow rules closely enough
// for service tests: admin bypass, ownership, share effective sets.
type fakeAuthorizer struct {
	memberships map[string][]string
}

func (authorizer *fakeAuthorizer) Allow(_ context.Context, claims *sec.AuthClaims, operation, resource string, acl *rbac.WorkflowACL) (bool, error) {
	if claims == nil {
		return false, nil
	}
	if claims.IsAdmin || claims.Role == string(sec.RoleAdmin) {
		return true, nil
	}
	if acl != nil {
		if acl.OwnerID == claims.UserID {
			return true, nil
		}
		for _, groupID := range authorizer.memberships[claims.UserID] {
			if granted, ok := acl.Shares[groupID]; ok {
				for _, permission := range rbac.EffectiveSharePermissions(granted) {
					if permission == operation {
						return true, nil
					}
				}
			}
		}
		return false, nil
	}
	for _, permission := range claims.Permissions[resource] {
		if permission == operation {
			return true, nil
		}
	}
	return false, nil
}

type fakeGroups struct {
	known map[string]bool
}

func (groups *fakeGroups) GroupExists(_ context.Context, groupID string) (bool, error) {
	return groups.known[groupID], nil
}

// # Fixture

type workflowFixture struct {
	service    *workflow.Service
	repo       *fakeWorkflowRepo
	storage    *fakeStorage
	authorizer *fakeAuthorizer
	groups     *fakeGroups
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	fixture := &workflowFixture{
		repo:       newFakeWorkflowRepo(),
		storage:    &fakeStorage{},
		authorizer: &fakeAuthorizer{memberships: make(map[string][]string)},
		groups:     &fakeGroups{known: make(map[string]bool)},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixture.service = workflow.NewService(fixture.repo, fixture.storage, fixture.authorizer, fixture.groups, logger)

	return fixture
}

func ownerClaims(userID string) *sec.AuthClaims {
	return &sec.AuthClaims{
		UserID: userID,
		Role:   string(sec.RoleManager),
		Permissions: map[string][]string{
			sec.ResourceWorkflow: {sec.PermissionRead, sec.PermissionWrite, sec.PermissionExecute},
		},
	}
}

// seedWorkflow creates a workflow with n appended steps named s1..sn.
func seedWorkflow(t *testing.T, fixture *workflowFixture, owner string, stepCount int) *workflow.Workflow {
	t.Helper()
	ctx := context.Background()
	claims := ownerClaims(owner)

	created, err := fixture.service.Create(ctx, claims, "nightly-report", "")
	require.NoError(t, err)

	for index := 0; index < stepCount; index++ {
		_, err := fixture.service.AppendStep(ctx, claims, created.ID, workflow.StepInput{
			Name:       "step-" + string(rune('a'+index)),
			ScriptType: "python",
		})
		require.NoError(t, err)
	}

	return created
}

// currentOrders returns ids keyed by order for the stored workflow.
func currentOrders(t *testing.T, fixture *workflowFixture, workflowID string) map[int]string {
	t.Helper()
	stored, err := fixture.repo.FindByID(context.Background(), workflowID)
	require.NoError(t, err)

	orders := make(map[int]string, len(stored.Steps))
	for _, step := range stored.Steps {
		orders[step.Order] = step.ID
	}
	return orders
}

// # Step Ordering

/*
TestAppendStep_AutoOrder verifies appended steps land at max+1 with
server-generated IDs and derived directory names.
*/
func TestAppendStep_AutoOrder(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 3)

	stored, err := fixture.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)

	workflow.SortByOrder(stored.Steps)
	for index, step := range stored.Steps {
		assert.Equal(t, index+1, step.Order)
		assert.NotEmpty(t, step.ID)
		assert.NotEmpty(t, step.DirectoryName)
	}
	assert.Len(t, fixture.storage.created, 3)
}

/*
TestAppendStep_ExplicitOrder verifies a supplied order is honored and a
colliding order is rejected.
*/
func TestAppendStep_ExplicitOrder(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 2)
	ctx := context.Background()
	claims := ownerClaims("alice")

	five := 5
	step, err := fixture.service.AppendStep(ctx, claims, created.ID, workflow.StepInput{
		Name: "late-step", ScriptType: "python", Order: &five,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, step.Order)

	two := 2
	_, err = fixture.service.AppendStep(ctx, claims, created.ID, workflow.StepInput{
		Name: "collider", ScriptType: "python", Order: &two,
	})
	assert.ErrorContains(t, err, "already taken")
}

/*
TestAppendStep_StorageFailureNonFatal verifies a failed directory creation
does not fail the append.
*/
func TestAppendStep_StorageFailureNonFatal(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 0)
	fixture.storage.fail = true

	step, err := fixture.service.AppendStep(context.Background(), ownerClaims("alice"), created.ID, workflow.StepInput{
		Name: "fetch", ScriptType: "python",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, step.Order)
}

/*
TestReorder verifies that reordering [1,2,3,4] with the sequence [3,1,4,2]
renumbers to a contiguous 1..4 in the new order with IDs unchanged.
*/
func TestReorder(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 4)
	before := currentOrders(t, fixture, created.ID)

	steps, err := fixture.service.Reorder(context.Background(), ownerClaims("alice"), created.ID, []int{3, 1, 4, 2})
	require.NoError(t, err)
	require.Len(t, steps, 4)

	after := currentOrders(t, fixture, created.ID)
	assert.Equal(t, before[3], after[1])
	assert.Equal(t, before[1], after[2])
	assert.Equal(t, before[4], after[3])
	assert.Equal(t, before[2], after[4])

	for index, step := range steps {
		assert.Equal(t, index+1, step.Order)
	}
}

/*
TestReorder_Rejections verifies non-permutation sequences are refused and
leave the workflow untouched.
*/
func TestReorder_Rejections(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 3)
	ctx := context.Background()
	claims := ownerClaims("alice")

	_, err := fixture.service.Reorder(ctx, claims, created.ID, []int{1, 2})
	assert.ErrorContains(t, err, "must list all")

	_, err = fixture.service.Reorder(ctx, claims, created.ID, []int{1, 2, 9})
	assert.ErrorContains(t, err, "No step has order")

	_, err = fixture.service.Reorder(ctx, claims, created.ID, []int{1, 2, 2})
	assert.ErrorContains(t, err, "listed twice")

	orders := currentOrders(t, fixture, created.ID)
	assert.Len(t, orders, 3)
	for order := 1; order <= 3; order++ {
		assert.Contains(t, orders, order)
	}
}

/*
TestDeleteStep_Compacts verifies removal renumbers remaining steps to a
contiguous 1..N preserving relative order.
*/
func TestDeleteStep_Compacts(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 4)
	before := currentOrders(t, fixture, created.ID)

	require.NoError(t, fixture.service.DeleteStepByOrder(context.Background(), ownerClaims("alice"), created.ID, 2))

	after := currentOrders(t, fixture, created.ID)
	require.Len(t, after, 3)
	assert.Equal(t, before[1], after[1])
	assert.Equal(t, before[3], after[2])
	assert.Equal(t, before[4], after[3])

	err := fixture.service.DeleteStepByOrder(context.Background(), ownerClaims("alice"), created.ID, 9)
	assert.ErrorContains(t, err, "Step not found")
}

/*
TestUpdateStep_OrderMove verifies moving a step to a free order succeeds and
moving onto an occupied order fails.
*/
func TestUpdateStep_OrderMove(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 3)
	ctx := context.Background()
	claims := ownerClaims("alice")

	free := 7
	moved, err := fixture.service.UpdateStepByOrder(ctx, claims, created.ID, 3, workflow.StepInput{Order: &free})
	require.NoError(t, err)
	assert.Equal(t, 7, moved.Order)

	occupied := 1
	_, err = fixture.service.UpdateStepByOrder(ctx, claims, created.ID, 2, workflow.StepInput{Order: &occupied})
	assert.ErrorContains(t, err, "already taken")

	// Update by ID reaches the same step regardless of its order
	renamed, err := fixture.service.UpdateStepByID(ctx, claims, created.ID, moved.ID, workflow.StepInput{Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
	assert.Equal(t, moved.ID, renamed.ID)
}

// # Sharing

/*
TestShare_UpsertSingleRow verifies sharing the same (workflow, group) twice
keeps one row with the latest permission.
*/
func TestShare_UpsertSingleRow(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 0)
	ctx := context.Background()
	claims := ownerClaims("alice")

	fixture.groups.known["g1"] = true

	first, err := fixture.service.ShareWithGroup(ctx, claims, created.ID, "g1", sec.PermissionRead)
	require.NoError(t, err)
	assert.Equal(t, sec.PermissionRead, first.Permission)

	second, err := fixture.service.ShareWithGroup(ctx, claims, created.ID, "g1", sec.PermissionWrite)
	require.NoError(t, err)
	assert.Equal(t, sec.PermissionWrite, second.Permission)

	view, err := fixture.service.Permissions(ctx, claims, created.ID)
	require.NoError(t, err)
	require.Len(t, view.Shares, 1)
	assert.Equal(t, sec.PermissionWrite, view.Shares[0].Permission)

	require.NoError(t, fixture.service.Unshare(ctx, claims, created.ID, "g1"))
	view, err = fixture.service.Permissions(ctx, claims, created.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Shares)
}

/*
TestShare_Rejections verifies unshareable permissions and unknown groups.
*/
func TestShare_Rejections(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 0)
	ctx := context.Background()
	claims := ownerClaims("alice")

	_, err := fixture.service.ShareWithGroup(ctx, claims, created.ID, "g1", sec.PermissionDelete)
	assert.ErrorContains(t, err, "cannot be shared")

	_, err = fixture.service.ShareWithGroup(ctx, claims, created.ID, "missing-group", sec.PermissionRead)
	assert.ErrorContains(t, err, "Group not found")
}

/*
TestShare_GrantsAccess verifies a read share lets a group member read and
execute the workflow but not modify it.
*/
func TestShare_GrantsAccess(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 1)
	ctx := context.Background()

	fixture.groups.known["g1"] = true
	fixture.authorizer.memberships["bob"] = []string{"g1"}

	_, err := fixture.service.ShareWithGroup(ctx, ownerClaims("alice"), created.ID, "g1", sec.PermissionRead)
	require.NoError(t, err)

	bob := &sec.AuthClaims{
		UserID: "bob",
		Role:   string(sec.RoleViewer),
		Permissions: map[string][]string{
			sec.ResourceWorkflow: {sec.PermissionRead},
		},
	}

	_, err = fixture.service.Get(ctx, bob, created.ID)
	require.NoError(t, err)

	_, err = fixture.service.AuthorizeExecute(ctx, bob, created.ID)
	require.NoError(t, err, "read share expands to execute")

	name := "renamed"
	_, err = fixture.service.Update(ctx, bob, created.ID, workflow.UpdateInput{Name: &name})
	assert.ErrorContains(t, err, "permission")
}

// # Lifecycle

/*
TestDelete_RemovesShares verifies workflow deletion takes its share rows along.
*/
func TestDelete_RemovesShares(t *testing.T) {
	fixture := newWorkflowFixture(t)
	created := seedWorkflow(t, fixture, "alice", 0)
	ctx := context.Background()

	fixture.groups.known["g1"] = true
	_, err := fixture.service.ShareWithGroup(ctx, ownerClaims("alice"), created.ID, "g1", sec.PermissionRead)
	require.NoError(t, err)

	require.NoError(t, fixture.service.Delete(ctx, ownerClaims("alice"), created.ID))
	assert.Empty(t, fixture.repo.shares)

	_, err = fixture.service.Get(ctx, ownerClaims("alice"), created.ID)
	assert.ErrorContains(t, err, "not found")
}
