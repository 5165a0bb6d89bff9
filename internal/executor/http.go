// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package executor

import (
	"net/http"

	"github.com/taibuivan/flowra/internal/platform/ctxutil"
	"github.com/taibuivan/flowra/internal/platform/respond"

	requestutil "github.com/taibuivan/flowra/internal/platform/request"
)

// Handler implements the HTTP layer for workflow execution. Its single
// endpoint is registered on the workflow route tree by the server, so it
// carries no router of its own.
type Handler struct {
	runner *Runner
}

// NewHandler constructs a new executor [Handler].
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

/*
ExecuteWorkflow runs every active step of a workflow.

POST /api/v1/workflow/{id}/execute?execution_type=local|docker&continue_on_failure=true|false

Description: execution_type defaults to local; continue_on_failure defaults
to false. Script failures are reported inside the 200 response body, not as
HTTP errors.

Response:
  - 200: RunReport: Workflow status, per-step results, aggregate counts
  - 400: Unknown execution type
  - 403: Execute permission missing
  - 404: Workflow not found
*/
func (handler *Handler) ExecuteWorkflow(writer http.ResponseWriter, request *http.Request) {
	claims := ctxutil.GetAuthUser(request.Context())
	query := request.URL.Query()

	mode := query.Get("execution_type")
	if mode == "" {
		mode = ModeLocal
	}
	continueOnFailure := query.Get("continue_on_failure") == "true"

	report, err := handler.runner.Execute(request.Context(), claims, requestutil.Param(request, "id"), mode, continueOnFailure)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, report)
}
