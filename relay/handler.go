package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"goa.design/clue/log"
	goahttp "goa.design/goa/v3/http"

	"goa.design/docchat/chatflow"
	"goa.design/docchat/stream"
	"goa.design/docchat/telemetry"
)

// StreamPath is the SSE endpoint the browser connects to.
const StreamPath = "/api/chat/stream"

// Starter is the slice of the Temporal client the handler needs to launch
// and follow workflows.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	Querier
}

// Handler serves the chat streaming endpoint: it starts a workflow per
// request and relays its token stream over SSE until terminal.
type Handler struct {
	temporal      Starter
	taskQueue     string
	pollInterval  time.Duration
	maxStreamTime time.Duration
	metrics       *telemetry.StreamMetrics
}

// NewHandler returns the streaming endpoint handler. metrics may be nil.
func NewHandler(temporal Starter, taskQueue string, pollInterval, maxStreamTime time.Duration, metrics *telemetry.StreamMetrics) *Handler {
	return &Handler{
		temporal:      temporal,
		taskQueue:     taskQueue,
		pollInterval:  pollInterval,
		maxStreamTime: maxStreamTime,
		metrics:       metrics,
	}
}

// Mount registers the handler routes on mux.
func (h *Handler) Mount(mux goahttp.Muxer) {
	mux.Handle("GET", StreamPath, h.ServeHTTP)
}

// ServeHTTP handles GET /api/chat/stream?query=...&doc_path=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	docPath := strings.TrimSpace(r.URL.Query().Get("doc_path"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	workflowID := "chat-" + uuid.NewString()
	ctx = log.With(ctx, log.KV{K: "workflow_id", V: workflowID})

	run, err := h.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             h.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, chatflow.WorkflowName, chatflow.ChatRequest{
		Query:        query,
		DocumentPath: docPath,
	})
	if err != nil {
		log.Errorf(ctx, err, "start chat workflow")
		writeError(w, http.StatusBadGateway, "could not start chat workflow")
		return
	}
	log.Print(ctx, log.KV{K: "msg", V: "chat workflow started"}, log.KV{K: "run_id", V: run.GetRunID()})

	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counting := &countingSink{next: sink}
	source := NewWorkflowSource(h.temporal, workflowID)
	bridge := NewBridge(source, h.pollInterval, h.maxStreamTime)

	started := time.Now()
	runErr := bridge.Run(ctx, counting)
	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
		log.Errorf(ctx, runErr, "relay ended")
	}
	h.metrics.RecordSession(ctx, counting.tokens, time.Since(started), outcome)
	log.Print(ctx,
		log.KV{K: "msg", V: "relay finished"},
		log.KV{K: "tokens", V: counting.tokens},
		log.KV{K: "outcome", V: outcome})
}

// countingSink counts content frames on their way to the client.
type countingSink struct {
	next   Sink
	tokens int
}

func (c *countingSink) Send(f stream.Frame) error {
	if err := c.next.Send(f); err != nil {
		return err
	}
	if f.Type == stream.FrameContent {
		c.tokens++
	}
	return nil
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
