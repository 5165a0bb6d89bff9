// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// interpreters maps script types to local interpreter binaries.
var interpreters = map[string]string{
	"python": "python3",
	"nodejs": "node",
	"bash":   "bash",
	"sh":     "sh",
}

// LocalRunner executes steps as child processes on the host.
//
// The child inherits the service's environment merged with the step's
// parameters; parameters win on key collisions. stdout and stderr are
// captured together. On timeout the process is killed.
type LocalRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewLocalRunner constructs a local sandbox with the given per-step timeout.
// A zero timeout falls back to [DefaultTimeout].
func NewLocalRunner(timeout time.Duration, logger *slog.Logger) *LocalRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalRunner{timeout: timeout, logger: logger}
}

/*
Run executes one step as a subprocess.

Description: A step with a run command executes it through the shell;
otherwise the script type's interpreter is invoked on the script path.
The hard timeout kills the process and yields status "timeout".

Parameters:
  - ctx: context.Context
  - spec: RunSpec

Returns:
  - *Result: Structured outcome; never nil
*/
func (runner *LocalRunner) Run(ctx context.Context, spec RunSpec) *Result {
	start := time.Now()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = runner.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command, err := runner.buildCommand(runCtx, spec)
	if err != nil {
		return newResult(StatusFailed, -1, "", err.Error(), start)
	}

	command.Dir = spec.WorkingDir
	command.Env = mergedEnvironment(spec.Parameters)

	output, runErr := command.CombinedOutput()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		runner.logger.WarnContext(ctx, "executor_step_timeout",
			slog.String("workflow_id", spec.WorkflowID),
			slog.String("step_id", spec.StepID),
			slog.Duration("timeout", timeout),
		)
		return newResult(StatusTimeout, -1, string(output),
			fmt.Sprintf("step exceeded the %s execution limit", timeout), start)
	}

	if runErr != nil {
		returnCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returnCode = exitErr.ExitCode()
		}
		return newResult(StatusFailed, returnCode, string(output), runErr.Error(), start)
	}

	return newResult(StatusCompleted, 0, string(output), "", start)
}

// buildCommand picks the child process: an explicit run command through the
// shell, or the script type's interpreter on the script file.
func (runner *LocalRunner) buildCommand(ctx context.Context, spec RunSpec) (*exec.Cmd, error) {
	if spec.RunCommand != "" {
		return exec.CommandContext(ctx, "sh", "-c", spec.RunCommand), nil
	}

	interpreter, ok := interpreters[spec.ScriptType]
	if !ok {
		return nil, fmt.Errorf("no interpreter registered for script type %q", spec.ScriptType)
	}
	if spec.ScriptPath == "" {
		return nil, errors.New("step has neither a run command nor a script file")
	}

	return exec.CommandContext(ctx, interpreter, spec.ScriptPath), nil
}

// mergedEnvironment layers step parameters over the process environment.
func mergedEnvironment(parameters map[string]string) []string {
	environment := os.Environ()
	for key, value := range parameters {
		environment = append(environment, key+"="+value)
	}
	return environment
}
