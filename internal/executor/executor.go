// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package executor runs workflow steps in isolated sandboxes and composes
multi-step execution with a failure policy.

Two sandboxes exist: a local subprocess with a merged environment, and a
container with no network, a read-only root filesystem, and hard resource
caps. Both enforce the same wall-clock timeout by killing the work.

Script failures are not service errors. A non-zero exit lands in the step's
result and metadata; only infrastructure problems (storage, authorization)
surface as errors from this package.
*/
package executor

import (
	"context"
	"time"
)

// # Execution Outcomes

// Step-level statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusTimeout   = "timeout"
)

// Workflow-level statuses.
const (
	RunCompleted          = "completed"
	RunCompletedWithSkips = "completed_with_skips"
	RunPartialFailed      = "partial_failed"
	RunFailed             = "failed"
)

const (
	// DefaultTimeout is the hard wall-clock limit per step.
	DefaultTimeout = 5 * time.Minute

	// MaxOutputChars bounds the stored script output.
	MaxOutputChars = 4000

	// TruncationMarker terminates output that exceeded [MaxOutputChars].
	TruncationMarker = "…<truncated>"
)

// Result is the structured outcome of one step execution.
type Result struct {
	Success       bool      `json:"success"`
	Status        string    `json:"status"`
	ReturnCode    int       `json:"return_code"`
	Output        string    `json:"output"`
	Error         string    `json:"error,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ExecutionTime float64   `json:"execution_time_seconds"`
}

// RunSpec carries everything a sandbox needs to run one step.
type RunSpec struct {
	WorkflowID   string
	StepID       string
	ScriptType   string
	ScriptPath   string
	RunCommand   string
	WorkingDir   string
	Parameters   map[string]string
	Dependencies []string
	Timeout      time.Duration
}

// StepRunner executes a single step inside one sandbox flavor.
type StepRunner interface {
	Run(ctx context.Context, spec RunSpec) *Result
}

// TruncateOutput bounds script output before persistence. Output over the
// cap keeps the leading characters and ends with the truncation marker.
func TruncateOutput(output string) string {
	runes := []rune(output)
	if len(runes) <= MaxOutputChars {
		return output
	}
	keep := MaxOutputChars - len([]rune(TruncationMarker))
	return string(runes[:keep]) + TruncationMarker
}

// newResult stamps the timing fields of a finished execution.
func newResult(status string, returnCode int, output, errText string, start time.Time) *Result {
	end := time.Now()
	return &Result{
		Success:       status == StatusCompleted,
		Status:        status,
		ReturnCode:    returnCode,
		Output:        TruncateOutput(output),
		Error:         errText,
		StartTime:     start,
		EndTime:       end,
		ExecutionTime: end.Sub(start).Seconds(),
	}
}
