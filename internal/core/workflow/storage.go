// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/taibuivan/flowra/pkg/slug"
)

// StepStorage provisions filesystem areas for step scripts.
type StepStorage interface {

	// EnsureStepDir creates (if needed) the directory for one step and
	// returns its absolute path.
	EnsureStepDir(workflowID, directoryName string) (string, error)
}

// DirectoryNameFor derives the filesystem-safe directory name of a step
// from its order and name, e.g. "3-fetch-daily-report".
func DirectoryNameFor(order int, name string) string {
	return fmt.Sprintf("%d-%s", order, slug.From(name))
}

// LocalStepStorage implements [StepStorage] on the local filesystem under a
// configured data root: <root>/<workflow_id>/<directory_name>.
type LocalStepStorage struct {
	root string
}

// NewLocalStepStorage constructs a step storage rooted at the given directory.
func NewLocalStepStorage(root string) *LocalStepStorage {
	return &LocalStepStorage{root: root}
}

// EnsureStepDir creates the step directory with owner-only permissions.
func (storage *LocalStepStorage) EnsureStepDir(workflowID, directoryName string) (string, error) {
	path := filepath.Join(storage.root, workflowID, directoryName)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("step_storage_mkdir_failed: %w", err)
	}
	return path, nil
}

// StepDir returns the path a step's directory would occupy without creating it.
func (storage *LocalStepStorage) StepDir(workflowID, directoryName string) string {
	return filepath.Join(storage.root, workflowID, directoryName)
}
