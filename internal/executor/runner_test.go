// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/core/workflow"
	"github.com/taibuivan/flowra/internal/executor"
	"github.com/taibuivan/flowra/internal/platform/sec"
)

// # Fakes

type fakeSource struct {
	target     *workflow.Workflow
	savedSteps []*workflow.Step
	saveCalls  int
}

func (source *fakeSource) AuthorizeExecute(_ context.Context, _ *sec.AuthClaims, _ string) (*workflow.Workflow, error) {
	workflow.SortByOrder(source.target.Steps)
	return source.target, nil
}

func (source *fakeSource) SaveExecutionState(_ context.Context, _ string, steps []*workflow.Step) error {
	source.savedSteps = steps
	source.saveCalls++
	return nil
}

func (source *fakeSource) StepDirectory(workflowID string, step *workflow.Step) string {
	return "/data/" + workflowID + "/" + step.DirectoryName
}

// scriptedRunner returns canned results keyed by step ID.
type scriptedRunner struct {
	outcomes map[string]*executor.Result
	ran      []string
}

func (runner *scriptedRunner) Run(_ context.Context, spec executor.RunSpec) *executor.Result {
	runner.ran = append(runner.ran, spec.StepID)
	if result, ok := runner.outcomes[spec.StepID]; ok {
		return result
	}
	return okResult()
}

func okResult() *executor.Result {
	now := time.Now()
	return &executor.Result{
		Success: true, Status: executor.StatusCompleted, ReturnCode: 0,
		Output: "ok", StartTime: now, EndTime: now,
	}
}

func failedResult() *executor.Result {
	now := time.Now()
	return &executor.Result{
		Success: false, Status: executor.StatusFailed, ReturnCode: 1,
		Output: "boom", Error: "exit status 1", StartTime: now, EndTime: now,
	}
}

// # Fixture

func newRunnerFixture(t *testing.T, steps ...*workflow.Step) (*executor.Runner, *fakeSource, *scriptedRunner) {
	t.Helper()

	source := &fakeSource{target: &workflow.Workflow{
		ID:      "wf1",
		OwnerID: "alice",
		Name:    "nightly-report",
		Steps:   steps,
	}}
	scripted := &scriptedRunner{outcomes: make(map[string]*executor.Result)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return executor.NewRunner(source, scripted, scripted, logger), source, scripted
}

func activeStep(id string, order int) *workflow.Step {
	return &workflow.Step{ID: id, Name: id, Order: order, ScriptType: "python", IsActive: true}
}

// # Failure Policy

/*
TestExecute_BreakOnFailure verifies the default policy: a failing step stops
the run, the untouched step keeps its previous metadata, and the overall
status is failed.
*/
func TestExecute_BreakOnFailure(t *testing.T) {
	s3 := activeStep("s3", 3)
	s3.LastStatus = "completed" // from an earlier run

	runner, source, scripted := newRunnerFixture(t, activeStep("s1", 1), activeStep("s2", 2), s3)
	scripted.outcomes["s2"] = failedResult()

	report, err := runner.Execute(context.Background(), &sec.AuthClaims{UserID: "alice"}, "wf1", executor.ModeLocal, false)
	require.NoError(t, err)

	assert.Equal(t, executor.RunFailed, report.Status)
	assert.Equal(t, 2, report.StepsExecuted)
	assert.Equal(t, 1, report.StepsFailed)
	assert.Equal(t, 0, report.StepsSkipped)
	assert.Equal(t, []string{"s1", "s2"}, scripted.ran)

	// s3 never ran and keeps its earlier metadata
	assert.Equal(t, "completed", s3.LastStatus)
	assert.Nil(t, s3.LastReturnCode)

	// Persistence happens even on a broken run
	assert.Equal(t, 1, source.saveCalls)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, executor.StatusFailed, report.Steps[1].Result.Status)
}

/*
TestExecute_ContinueOnFailure verifies all steps run past a failure and the
overall status is partial_failed.
*/
func TestExecute_ContinueOnFailure(t *testing.T) {
	runner, _, scripted := newRunnerFixture(t, activeStep("s1", 1), activeStep("s2", 2), activeStep("s3", 3))
	scripted.outcomes["s2"] = failedResult()

	report, err := runner.Execute(context.Background(), &sec.AuthClaims{UserID: "alice"}, "wf1", executor.ModeLocal, true)
	require.NoError(t, err)

	assert.Equal(t, executor.RunPartialFailed, report.Status)
	assert.Equal(t, 3, report.StepsExecuted)
	assert.Equal(t, 1, report.StepsFailed)
	assert.Equal(t, []string{"s1", "s2", "s3"}, scripted.ran)
}

/*
TestExecute_SkipsInactive verifies inactive steps are recorded as skipped
and an otherwise clean run reports completed_with_skips.
*/
func TestExecute_SkipsInactive(t *testing.T) {
	dormant := activeStep("s2", 2)
	dormant.IsActive = false

	runner, source, scripted := newRunnerFixture(t, activeStep("s1", 1), dormant, activeStep("s3", 3))

	report, err := runner.Execute(context.Background(), &sec.AuthClaims{UserID: "alice"}, "wf1", executor.ModeLocal, false)
	require.NoError(t, err)

	assert.Equal(t, executor.RunCompletedWithSkips, report.Status)
	assert.Equal(t, 2, report.StepsExecuted)
	assert.Equal(t, 1, report.StepsSkipped)
	assert.Equal(t, 0, report.StepsFailed)
	assert.Equal(t, []string{"s1", "s3"}, scripted.ran)
	assert.Equal(t, executor.StatusSkipped, dormant.LastStatus)

	require.NotNil(t, source.savedSteps)
	assert.Len(t, report.Steps, 3)
}

/*
TestExecute_AllClean verifies a fully successful run reports completed with
metadata written back on every step.
*/
func TestExecute_AllClean(t *testing.T) {
	first := activeStep("s1", 1)
	runner, _, _ := newRunnerFixture(t, first, activeStep("s2", 2))

	report, err := runner.Execute(context.Background(), &sec.AuthClaims{UserID: "alice"}, "wf1", executor.ModeLocal, false)
	require.NoError(t, err)

	assert.Equal(t, executor.RunCompleted, report.Status)
	assert.Equal(t, 2, report.StepsExecuted)

	assert.Equal(t, executor.StatusCompleted, first.LastStatus)
	require.NotNil(t, first.LastReturnCode)
	assert.Equal(t, 0, *first.LastReturnCode)
	assert.NotNil(t, first.LastRunStartedAt)
	assert.NotNil(t, first.LastRunEndedAt)
}

/*
TestExecute_UnknownMode verifies an unrecognized execution type is rejected
before anything runs.
*/
func TestExecute_UnknownMode(t *testing.T) {
	runner, source, scripted := newRunnerFixture(t, activeStep("s1", 1))

	_, err := runner.Execute(context.Background(), &sec.AuthClaims{UserID: "alice"}, "wf1", "podman", false)
	assert.ErrorContains(t, err, "Unknown execution type")
	assert.Empty(t, scripted.ran)
	assert.Equal(t, 0, source.saveCalls)
}

// # Output Bounds

/*
TestTruncateOutput verifies oversized output is capped at 4000 characters
and ends with the truncation marker.
*/
func TestTruncateOutput(t *testing.T) {
	huge := strings.Repeat("x", 10*1024*1024)

	truncated := executor.TruncateOutput(huge)
	assert.Len(t, []rune(truncated), executor.MaxOutputChars)
	assert.True(t, strings.HasSuffix(truncated, executor.TruncationMarker))

	small := "tiny output"
	assert.Equal(t, small, executor.TruncateOutput(small))

	exact := strings.Repeat("y", executor.MaxOutputChars)
	assert.Equal(t, exact, executor.TruncateOutput(exact))
}
