// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// workspaceMount is where the step directory appears inside the container.
const workspaceMount = "/workspace"

// defaultImages maps script types to sandbox images when storage carries no
// override.
var defaultImages = map[string]string{
	"python": "python:3.12-slim",
	"nodejs": "node:20-alpine",
	"bash":   "bash:5.2",
	"sh":     "alpine:3.20",
}

// installCommands maps script types to dependency install invocations run
// inside the pre-step container. The dependency list is appended.
var installCommands = map[string][]string{
	"python": {"pip", "install", "--no-cache-dir"},
	"nodejs": {"npm", "install", "--no-save"},
}

// ContainerRunner executes steps inside locked-down containers via the
// docker CLI.
//
// # Sandbox Profile
//
//   - no network
//   - read-only root filesystem
//   - 512 MiB memory, half a CPU
//   - no-new-privileges
//   - step directory mounted read-only at /workspace
type ContainerRunner struct {
	binary  string
	images  map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// NewContainerRunner constructs a container sandbox. binary is the container
// runtime CLI ("docker" when empty, "podman" also works); imageOverrides maps
// script types to images and takes precedence over the built-in defaults;
// a zero timeout falls back to [DefaultTimeout].
func NewContainerRunner(binary string, imageOverrides map[string]string, timeout time.Duration, logger *slog.Logger) *ContainerRunner {
	if binary == "" {
		binary = "docker"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ContainerRunner{binary: binary, images: imageOverrides, timeout: timeout, logger: logger}
}

// imageFor resolves the sandbox image of one script type.
func (runner *ContainerRunner) imageFor(scriptType string) (string, error) {
	if image, ok := runner.images[scriptType]; ok && image != "" {
		return image, nil
	}
	if image, ok := defaultImages[scriptType]; ok {
		return image, nil
	}
	return "", fmt.Errorf("no container image registered for script type %q", scriptType)
}

/*
Run executes one step inside a container.

Description: Declared dependencies are installed first in a separate, more
restrictive container; install failures are logged and the step proceeds.
The step container is awaited up to the timeout and then killed.

Parameters:
  - ctx: context.Context
  - spec: RunSpec

Returns:
  - *Result: Structured outcome; never nil
*/
func (runner *ContainerRunner) Run(ctx context.Context, spec RunSpec) *Result {
	start := time.Now()

	image, err := runner.imageFor(spec.ScriptType)
	if err != nil {
		return newResult(StatusFailed, -1, "", err.Error(), start)
	}

	if len(spec.Dependencies) > 0 {
		runner.installDependencies(ctx, spec, image)
	}

	stepCommand, err := containerCommand(spec)
	if err != nil {
		return newResult(StatusFailed, -1, "", err.Error(), start)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = runner.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	arguments := []string{
		"run", "--rm",
		"--network", "none",
		"--read-only",
		"--memory", "512m",
		"--cpus", "0.5",
		"--security-opt", "no-new-privileges",
		"--workdir", workspaceMount,
		"--volume", spec.WorkingDir + ":" + workspaceMount + ":ro",
	}
	for key, value := range spec.Parameters {
		arguments = append(arguments, "--env", key+"="+value)
	}
	arguments = append(arguments, image)
	arguments = append(arguments, stepCommand...)

	output, runErr := exec.CommandContext(runCtx, runner.binary, arguments...).CombinedOutput()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		runner.logger.WarnContext(ctx, "executor_container_timeout",
			slog.String("workflow_id", spec.WorkflowID),
			slog.String("step_id", spec.StepID),
			slog.Duration("timeout", timeout),
		)
		return newResult(StatusTimeout, -1, string(output),
			fmt.Sprintf("container exceeded the %s execution limit", timeout), start)
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

// installDependencies runs the pre-step install container: quarter CPU,
// 256 MiB, still no network (installs must come from a baked-in cache or
// vendored wheels). Failure never blocks the step.
func (runner *ContainerRunner) installDependencies(ctx context.Context, spec RunSpec, image string) {
	install, ok := installCommands[spec.ScriptType]
	if !ok {
		runner.logger.WarnContext(ctx, "executor_install_unsupported",
			slog.String("step_id", spec.StepID),
			slog.String("script_type", spec.ScriptType),
		)
		return
	}

	arguments := []string{
		"run", "--rm",
		"--network", "none",
		"--memory", "256m",
		"--cpus", "0.25",
		"--security-opt", "no-new-privileges",
		"--workdir", workspaceMount,
		"--volume", spec.WorkingDir + ":" + workspaceMount,
		image,
	}
	arguments = append(arguments, install...)
	arguments = append(arguments, spec.Dependencies...)

	output, err := exec.CommandContext(ctx, runner.binary, arguments...).CombinedOutput()
	if err != nil {
		runner.logger.WarnContext(ctx, "executor_install_failed",
			slog.String("workflow_id", spec.WorkflowID),
			slog.String("step_id", spec.StepID),
			slog.String("error", err.Error()),
			slog.String("output", TruncateOutput(string(output))),
		)
	}
}

// containerCommand derives the in-container invocation: the explicit run
// command through the shell, or the interpreter on the mounted script.
func containerCommand(spec RunSpec) ([]string, error) {
	if spec.RunCommand != "" {
		return []string{"sh", "-c", spec.RunCommand}, nil
	}

	interpreter, ok := interpreters[spec.ScriptType]
	if !ok {
		return nil, fmt.Errorf("no interpreter registered for script type %q", spec.ScriptType)
	}
	if spec.ScriptPath == "" {
		return nil, errors.New("step has neither a run command nor a script file")
	}

	// The host script path is remapped under the workspace mount
	scriptName := filepath.Base(spec.ScriptPath)
	return []string{interpreter, strings.TrimSuffix(workspaceMount, "/") + "/" + scriptName}, nil
}
