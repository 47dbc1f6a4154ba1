// Package temporalx wires the Temporal SDK the way the rest of the service
// expects it: clue-backed logging and OpenTelemetry instrumentation on both
// the client and the worker.
package temporalx

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"goa.design/docchat/config"
	"goa.design/docchat/telemetry"
)

// instrumentation bundles the tracing interceptor and metrics handler shared
// by client and worker options.
type instrumentation struct {
	tracer  interceptor.Interceptor
	metrics client.MetricsHandler
}

func configureInstrumentation() (*instrumentation, error) {
	tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
	if err != nil {
		return nil, fmt.Errorf("configure tracing interceptor: %w", err)
	}
	return &instrumentation{
		tracer:  tracer,
		metrics: temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{}),
	}, nil
}

// Dial connects to the Temporal frontend described by cfg. The context
// carries the clue logger settings used for all SDK logging.
func Dial(ctx context.Context, cfg config.Temporal) (client.Client, error) {
	inst, err := configureInstrumentation()
	if err != nil {
		return nil, err
	}
	opts := client.Options{
		HostPort:       cfg.HostPort,
		Namespace:      cfg.Namespace,
		Logger:         telemetry.NewTemporalLogger(ctx),
		Interceptors:   []interceptor.ClientInterceptor{inst.tracer},
		MetricsHandler: inst.metrics,
	}
	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// NewWorker returns a worker on the configured task queue with tracing
// enabled. Callers register workflows and activities then call Run.
func NewWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	inst, err := configureInstrumentation()
	if err != nil {
		return nil, err
	}
	return worker.New(c, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{inst.tracer},
	}), nil
}
