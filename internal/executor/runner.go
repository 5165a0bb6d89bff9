// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/taibuivan/flowra/internal/core/workflow"
	"github.com/taibuivan/flowra/internal/platform/apperr"
	"github.com/taibuivan/flowra/internal/platform/sec"
)

// Execution modes accepted on the execute endpoint.
const (
	ModeLocal  = "local"
	ModeDocker = "docker"
)

// WorkflowSource provides the runner's view of the workflow store.
// Implemented by the workflow service.
type WorkflowSource interface {

	// AuthorizeExecute checks the execute permission and returns the
	// workflow with steps sorted by order.
	AuthorizeExecute(ctx context.Context, claims *sec.AuthClaims, workflowID string) (*workflow.Workflow, error)

	// SaveExecutionState persists post-run step metadata.
	SaveExecutionState(ctx context.Context, workflowID string, steps []*workflow.Step) error

	// StepDirectory resolves the filesystem area of one step.
	StepDirectory(workflowID string, step *workflow.Step) string
}

// StepResult pairs one step with its execution outcome.
type StepResult struct {
	StepID string  `json:"step_id"`
	Name   string  `json:"name"`
	Order  int     `json:"order"`
	Result *Result `json:"result"`
}

// RunReport is the aggregate outcome of one workflow execution.
type RunReport struct {
	WorkflowID    string        `json:"workflow_id"`
	Status        string        `json:"status"`
	Steps         []*StepResult `json:"steps"`
	StepsExecuted int           `json:"steps_executed"`
	StepsSkipped  int           `json:"steps_skipped"`
	StepsFailed   int           `json:"steps_failed"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
}

// Runner composes single-step sandboxes into whole-workflow execution.
type Runner struct {
	source  WorkflowSource
	runners map[string]StepRunner
	logger  *slog.Logger
}

// NewRunner constructs a workflow [Runner] over the given sandboxes.
func NewRunner(source WorkflowSource, local, container StepRunner, logger *slog.Logger) *Runner {
	return &Runner{
		source: source,
		runners: map[string]StepRunner{
			ModeLocal:  local,
			ModeDocker: container,
		},
		logger: logger,
	}
}

/*
Execute runs every active step of a workflow in order.

Description: Steps run sequentially, sorted by order. Inactive steps are
recorded as skipped. Each step's metadata is written back in memory whether
it succeeds or not, and the full list is persisted once the loop finishes —
also when it broke early. A failure stops the loop unless continueOnFailure
is set.

Overall status: any failure without continueOnFailure yields "failed"; with
it, "partial_failed". All-success runs report "completed", or
"completed_with_skips" when inactive steps were passed over.

Parameters:
  - ctx: context.Context
  - claims: *sec.AuthClaims
  - workflowID: string
  - mode: string (local|docker)
  - continueOnFailure: bool

Returns:
  - *RunReport: Per-step results in execution order plus aggregate counts
  - err: Authorization, validation, or persistence failures
*/
func (runner *Runner) Execute(ctx context.Context, claims *sec.AuthClaims, workflowID, mode string, continueOnFailure bool) (*RunReport, error) {

	stepRunner, ok := runner.runners[mode]
	if !ok {
		return nil, apperr.ValidationError(fmt.Sprintf("Unknown execution type %q", mode))
	}

	target, err := runner.source.AuthorizeExecute(ctx, claims, workflowID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		WorkflowID: workflowID,
		StartedAt:  time.Now(),
	}

	for _, step := range target.Steps {

		// Inactive steps are passed over but still recorded
		if !step.IsActive {
			step.LastStatus = StatusSkipped
			report.StepsSkipped++
			report.Steps = append(report.Steps, &StepResult{
				StepID: step.ID,
				Name:   step.Name,
				Order:  step.Order,
				Result: &Result{Status: StatusSkipped},
			})
			continue
		}

		result := stepRunner.Run(ctx, runner.specFor(target, step, mode))
		writeBack(step, result)

		report.Steps = append(report.Steps, &StepResult{
			StepID: step.ID,
			Name:   step.Name,
			Order:  step.Order,
			Result: result,
		})
		report.StepsExecuted++

		if !result.Success {
			report.StepsFailed++

			runner.logger.WarnContext(ctx, "executor_step_failed",
				slog.String("workflow_id", workflowID),
				slog.String("step_id", step.ID),
				slog.String("status", result.Status),
				slog.Int("return_code", result.ReturnCode),
			)

			if !continueOnFailure {
				break
			}
		}
	}

	report.EndedAt = time.Now()
	report.Status = overallStatus(report, continueOnFailure)

	// Metadata write-back happens regardless of how the loop ended
	if err := runner.source.SaveExecutionState(ctx, workflowID, target.Steps); err != nil {
		return nil, err
	}

	runner.logger.InfoContext(ctx, "executor_run_finished",
		slog.String("workflow_id", workflowID),
		slog.String("status", report.Status),
		slog.Int("executed", report.StepsExecuted),
		slog.Int("skipped", report.StepsSkipped),
		slog.Int("failed", report.StepsFailed),
	)

	return report, nil
}

// specFor assembles the sandbox input for one step.
func (runner *Runner) specFor(target *workflow.Workflow, step *workflow.Step, mode string) RunSpec {
	workingDir := runner.source.StepDirectory(target.ID, step)

	scriptPath := ""
	if step.ScriptFilename != "" {
		scriptPath = filepath.Join(workingDir, step.ScriptFilename)
	}

	return RunSpec{
		WorkflowID:   target.ID,
		StepID:       step.ID,
		ScriptType:   step.ScriptType,
		ScriptPath:   scriptPath,
		RunCommand:   step.RunCommand,
		WorkingDir:   workingDir,
		Parameters:   step.Parameters,
		Dependencies: step.Dependencies,
	}
}

// writeBack copies an execution result into the step's Last* metadata.
func writeBack(step *workflow.Step, result *Result) {
	returnCode := result.ReturnCode
	executionTime := result.ExecutionTime
	startedAt := result.StartTime
	endedAt := result.EndTime

	step.LastStatus = result.Status
	step.LastReturnCode = &returnCode
	step.LastOutput = result.Output
	step.LastError = result.Error
	step.LastRunStartedAt = &startedAt
	step.LastRunEndedAt = &endedAt
	step.LastExecutionTime = &executionTime
}

// overallStatus folds the aggregate counts into the workflow-level status.
func overallStatus(report *RunReport, continueOnFailure bool) string {
	switch {
	case report.StepsFailed > 0 && !continueOnFailure:
		return RunFailed
	case report.StepsFailed > 0:
		return RunPartialFailed
	case report.StepsSkipped > 0:
		return RunCompletedWithSkips
	default:
		return RunCompleted
	}
}
