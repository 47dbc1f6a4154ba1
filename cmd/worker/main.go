// Command worker hosts the document chat workflow and its activities:
// directory scanning, document reading, prompt assembly and the streaming
// LLM producer.
package main

import (
	"context"
	"flag"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"goa.design/clue/log"

	"goa.design/docchat/activities"
	"goa.design/docchat/chatflow"
	"goa.design/docchat/config"
	"goa.design/docchat/llm"
	"goa.design/docchat/security"
	"goa.design/docchat/temporalx"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load configuration")
	}

	validator, err := security.NewPathValidator(cfg.Documents.Root)
	if err != nil {
		log.Fatalf(ctx, err, "validate documents root %q", cfg.Documents.Root)
	}

	model, err := llm.New(ctx, cfg.LLMOptions())
	if err != nil {
		log.Fatalf(ctx, err, "configure LLM provider")
	}
	log.Print(ctx,
		log.KV{K: "msg", V: "LLM provider configured"},
		log.KV{K: "provider", V: model.Provider()},
		log.KV{K: "model", V: model.Model()})

	tc, err := temporalx.Dial(ctx, cfg.Temporal)
	if err != nil {
		log.Fatalf(ctx, err, "connect to temporal")
	}
	defer tc.Close()

	w, err := temporalx.NewWorker(tc, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf(ctx, err, "create worker")
	}

	docs := activities.NewDocumentActivities(validator, cfg.Documents.MaxFileSizeMB, cfg.Documents.MaxTotalScanMB)
	prompts := activities.NewPromptActivities(security.NewPromptGuard())
	streams := activities.NewLLMActivities(tc, model, cfg.Stream.BatchSize)

	w.RegisterWorkflowWithOptions(chatflow.DocChat, workflow.RegisterOptions{Name: chatflow.WorkflowName})
	w.RegisterActivityWithOptions(docs.ScanDirectory, activity.RegisterOptions{Name: activities.ScanDirectoryName})
	w.RegisterActivityWithOptions(docs.ReadDocument, activity.RegisterOptions{Name: activities.ReadDocumentName})
	w.RegisterActivityWithOptions(prompts.BuildSafePrompt, activity.RegisterOptions{Name: activities.BuildSafePromptName})
	w.RegisterActivityWithOptions(streams.StreamCompletion, activity.RegisterOptions{Name: activities.StreamCompletionName})

	log.Printf(ctx, "worker polling task queue %q", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf(ctx, err, "worker exited")
	}
	log.Printf(ctx, "exited")
}
