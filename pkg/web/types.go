// Package web exposes the invocation endpoint that runs queue batches and dry runs.
package web

import "github.com/dukex/autoflow/pkg/worker"

// DryRunHeader switches POST /run into dry-run mode.
const DryRunHeader = "X-Dry-Run"

// DryRunRequest is the body of a dry-run invocation.
type DryRunRequest struct {
	FlowID      string         `json:"flow_id"      validate:"required"`
	MockPayload map[string]any `json:"mock_payload"`
}

// BatchResponse is returned by a batch invocation.
type BatchResponse struct {
	Success bool `json:"success"`
	worker.Stats
}
