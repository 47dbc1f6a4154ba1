// Command api serves the chat streaming endpoint: it starts document chat
// workflows on Temporal and relays their token streams to browsers over SSE.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"
	goahttp "goa.design/goa/v3/http"

	"goa.design/docchat/config"
	"goa.design/docchat/relay"
	"goa.design/docchat/telemetry"
	"goa.design/docchat/temporalx"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		addrF   = flag.String("http-addr", "", "HTTP listen address (overrides configuration)")
		dbgF    = flag.Bool("debug", false, "Log request and response bodies")
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
	if *addrF != "" {
		cfg.HTTP.Addr = *addrF
	}

	tc, err := temporalx.Dial(ctx, cfg.Temporal)
	if err != nil {
		log.Fatalf(ctx, err, "connect to temporal")
	}
	defer tc.Close()

	metrics, err := telemetry.NewStreamMetrics()
	if err != nil {
		log.Fatalf(ctx, err, "register relay metrics")
	}

	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
		if *dbgF {
			debug.MountPprofHandlers(debug.Adapt(mux))
			debug.MountDebugLogEnabler(debug.Adapt(mux))
		}
	}

	handler := relay.NewHandler(tc, cfg.Temporal.TaskQueue,
		cfg.Stream.PollInterval.Std(), cfg.Stream.MaxStreamTime.Std(), metrics)
	handler.Mount(mux)
	log.Printf(ctx, "HTTP %q mounted on GET %s", "chat stream", relay.StreamPath)

	checker := health.NewChecker(temporalPinger{tc})
	mux.Handle("GET", "/healthz", health.Handler(checker).ServeHTTP)
	mux.Handle("GET", "/livez", health.Handler(checker).ServeHTTP)

	var h http.Handler = mux
	if *dbgF {
		h = debug.HTTP()(h)
	}
	h = log.HTTP(ctx)(h)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: h, ReadHeaderTimeout: 60 * time.Second}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			log.Printf(ctx, "HTTP server listening on %q", cfg.HTTP.Addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", cfg.HTTP.Addr)
		sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	log.Printf(ctx, "exited")
}

// temporalPinger reports Temporal frontend reachability for health checks.
type temporalPinger struct {
	client client.Client
}

func (p temporalPinger) Name() string { return "temporal" }

func (p temporalPinger) Ping(ctx context.Context) error {
	_, err := p.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}
