// Package chatflow holds the document chat workflow: it orchestrates the
// scan, read, prompt and streaming activities and hosts the append-only
// token buffer that relay queries read from.
package chatflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"goa.design/docchat/activities"
	"goa.design/docchat/stream"
)

// WorkflowName registers the chat workflow.
const WorkflowName = "DocChatWorkflow"

// Request knob defaults, applied when the caller leaves a field zero.
const (
	defaultMaxFiles        = 10
	defaultMaxCharsPerFile = 2000
	defaultMaxTokens       = 4096
	defaultTemperature     = 0.7
)

// terminalGrace bounds how long the workflow waits after the streaming
// activity returns for its complete or fail signal to land.
const terminalGrace = 30 * time.Second

// ChatRequest starts one question-answering run over local documents.
type ChatRequest struct {
	Query           string  `json:"query"`
	DocumentPath    string  `json:"document_path"`
	MaxFiles        int     `json:"max_files"`
	MaxCharsPerFile int     `json:"max_chars_per_file"`
	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
}

func (r *ChatRequest) applyDefaults() {
	if r.MaxFiles <= 0 {
		r.MaxFiles = defaultMaxFiles
	}
	if r.MaxCharsPerFile <= 0 {
		r.MaxCharsPerFile = defaultMaxCharsPerFile
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = defaultTemperature
	}
}

// ChatResult is the workflow's final answer.
type ChatResult struct {
	Response       string        `json:"response"`
	TokenCount     int           `json:"token_count"`
	FilesFound     int           `json:"files_found"`
	FilesProcessed int           `json:"files_processed"`
	FinishReason   string        `json:"finish_reason"`
	Model          string        `json:"model,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	Status         stream.Status `json:"status"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// DocChat answers a query over the documents under the requested path. All
// token state lives in an in-workflow buffer fed by activity signals and
// exposed through the snapshot query, so relays can follow the stream while
// the run is in flight and replay it afterwards.
func DocChat(ctx workflow.Context, req ChatRequest) (ChatResult, error) {
	req.applyDefaults()
	logger := workflow.GetLogger(ctx)
	state := stream.NewState()

	if err := workflow.SetQueryHandler(ctx, stream.QuerySnapshot, func(since int) (stream.Snapshot, error) {
		return state.SnapshotSince(since), nil
	}); err != nil {
		return ChatResult{}, fmt.Errorf("register snapshot query: %w", err)
	}
	drainSignals(ctx, state)

	if strings.TrimSpace(req.Query) == "" {
		return failResult(state, "query must not be empty"), nil
	}

	// Scan.
	state.SetPhase("Scanning directory...")
	var scan activities.ScanResult
	scanCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		HeartbeatTimeout:    20 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	if err := workflow.ExecuteActivity(scanCtx, activities.ScanDirectoryName, activities.ScanInput{
		Path: req.DocumentPath,
	}).Get(ctx, &scan); err != nil {
		logger.Error("directory scan failed", "path", req.DocumentPath, "error", err)
		return failResult(state, fmt.Sprintf("could not scan documents: %v", err)), nil
	}
	files := scan.Files
	if len(files) == 0 {
		return failResult(state, fmt.Sprintf("no supported documents found under %q", req.DocumentPath)), nil
	}
	if len(files) > req.MaxFiles {
		logger.Info("capping scanned files", "found", len(files), "max", req.MaxFiles)
		files = files[:req.MaxFiles]
	}

	// Read, in parallel.
	state.SetPhase(fmt.Sprintf("Reading %d files...", len(files)))
	readCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	futures := make([]workflow.Future, len(files))
	for i, f := range files {
		futures[i] = workflow.ExecuteActivity(readCtx, activities.ReadDocumentName, activities.ReadInput{Path: f})
	}
	docs := make([]activities.Document, 0, len(files))
	readable := 0
	for i, fut := range futures {
		var doc activities.Document
		if err := fut.Get(ctx, &doc); err != nil {
			logger.Warn("document read failed", "path", files[i], "error", err)
			doc = activities.Document{Path: files[i], Error: err.Error()}
		}
		if doc.Error == "" {
			readable++
		}
		docs = append(docs, doc)
	}
	if readable == 0 {
		return failResult(state, "none of the documents could be read"), nil
	}

	// Prompt.
	state.SetPhase("Building prompt...")
	var prompt activities.PromptResult
	promptCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(promptCtx, activities.BuildSafePromptName, activities.PromptInput{
		Documents:       docs,
		Query:           req.Query,
		MaxCharsPerFile: req.MaxCharsPerFile,
	}).Get(ctx, &prompt); err != nil {
		logger.Error("prompt assembly failed", "error", err)
		return failResult(state, promptFailureMessage(err)), nil
	}

	// Stream. The activity signals tokens back as it receives them.
	state.SetPhase("Generating response...")
	var stats activities.StreamStats
	streamCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	streamErr := workflow.ExecuteActivity(streamCtx, activities.StreamCompletionName, activities.StreamInput{
		Prompt:      prompt.Prompt,
		WorkflowID:  workflow.GetInfo(ctx).WorkflowExecution.ID,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}).Get(ctx, &stats)

	// The terminal signal races the activity result; give it a moment.
	_, _ = workflow.AwaitWithTimeout(ctx, terminalGrace, state.Terminal)
	if !state.Terminal() {
		if streamErr != nil {
			state.Fail(fmt.Sprintf("streaming failed: %v", streamErr))
		} else {
			state.Complete()
		}
	}
	if streamErr != nil {
		logger.Error("streaming completion failed", "error", streamErr)
	}

	snap := state.SnapshotSince(0)
	return ChatResult{
		Response:       strings.Join(snap.Tokens, ""),
		TokenCount:     snap.TokenCount,
		FilesFound:     len(scan.Files),
		FilesProcessed: prompt.DocumentCount,
		FinishReason:   stats.FinishReason,
		Model:          stats.Model,
		Provider:       stats.Provider,
		Status:         snap.Status,
		ErrorMessage:   snap.ErrorMessage,
	}, nil
}

// drainSignals consumes the four stream signals into state for the lifetime
// of the workflow.
func drainSignals(ctx workflow.Context, state *stream.State) {
	workflow.Go(ctx, func(gctx workflow.Context) {
		logger := workflow.GetLogger(gctx)
		appendCh := workflow.GetSignalChannel(gctx, stream.SignalAppend)
		phaseCh := workflow.GetSignalChannel(gctx, stream.SignalSetPhase)
		completeCh := workflow.GetSignalChannel(gctx, stream.SignalComplete)
		failCh := workflow.GetSignalChannel(gctx, stream.SignalFail)

		for {
			sel := workflow.NewSelector(gctx)
			sel.AddReceive(appendCh, func(c workflow.ReceiveChannel, _ bool) {
				var batch stream.Batch
				c.Receive(gctx, &batch)
				if err := state.Append(batch); err != nil {
					logger.Debug("dropped redelivered batch", "seq", batch.Seq, "error", err)
				}
			})
			sel.AddReceive(phaseCh, func(c workflow.ReceiveChannel, _ bool) {
				var phase string
				c.Receive(gctx, &phase)
				if err := state.SetPhase(phase); err != nil {
					logger.Debug("dropped phase update", "phase", phase, "error", err)
				}
			})
			sel.AddReceive(completeCh, func(c workflow.ReceiveChannel, _ bool) {
				c.Receive(gctx, nil)
				if err := state.Complete(); err != nil {
					logger.Debug("dropped complete signal", "error", err)
				}
			})
			sel.AddReceive(failCh, func(c workflow.ReceiveChannel, _ bool) {
				var msg string
				c.Receive(gctx, &msg)
				if err := state.Fail(msg); err != nil {
					logger.Debug("dropped fail signal", "error", err)
				}
			})
			sel.Select(gctx)
			if gctx.Err() != nil {
				return
			}
		}
	})
}

func failResult(state *stream.State, msg string) ChatResult {
	state.Fail(msg)
	return ChatResult{Status: stream.StatusFailed, ErrorMessage: msg}
}

// promptFailureMessage keeps safety rejections distinguishable from plumbing
// failures in what the user sees.
func promptFailureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == "PromptInjection" {
		return "query rejected by safety filter"
	}
	return fmt.Sprintf("could not build prompt: %v", err)
}
