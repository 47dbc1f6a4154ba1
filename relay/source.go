package relay

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"goa.design/docchat/stream"
)

// Querier is the slice of the Temporal client the workflow source needs.
type Querier interface {
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// WorkflowSource reads stream snapshots from a running workflow via query.
type WorkflowSource struct {
	querier    Querier
	workflowID string
}

// NewWorkflowSource returns a source over the given workflow execution.
func NewWorkflowSource(querier Querier, workflowID string) *WorkflowSource {
	return &WorkflowSource{querier: querier, workflowID: workflowID}
}

// SnapshotSince implements Source.
func (s *WorkflowSource) SnapshotSince(ctx context.Context, since int) (stream.Snapshot, error) {
	val, err := s.querier.QueryWorkflow(ctx, s.workflowID, "", stream.QuerySnapshot, since)
	if err != nil {
		return stream.Snapshot{}, fmt.Errorf("query %s on %s: %w", stream.QuerySnapshot, s.workflowID, err)
	}
	var snap stream.Snapshot
	if err := val.Get(&snap); err != nil {
		return stream.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

var _ Querier = (client.Client)(nil)
