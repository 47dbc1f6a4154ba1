// Command chat asks one question over local documents from the terminal and
// prints the answer as it streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"goa.design/clue/log"

	"goa.design/docchat/client"
)

func main() {
	var (
		apiF  = flag.String("api", "http://localhost:8000", "Chat API base URL")
		docsF = flag.String("docs", "", "Document path relative to the server's documents root")
		dbgF  = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: chat [flags] <question>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.NewConsumer(*apiF, nil)
	var (
		printed   int
		lastPhase string
	)
	final, err := c.Ask(ctx, query, *docsF, func(m client.Message) {
		if m.Progress != "" && m.Progress != lastPhase {
			fmt.Fprintf(os.Stderr, "[%s]\n", m.Progress)
			lastPhase = m.Progress
		}
		if len(m.Content) > printed {
			fmt.Print(m.Content[printed:])
			printed = len(m.Content)
		}
	})
	fmt.Println()
	if err != nil {
		log.Fatalf(ctx, err, "chat stream failed")
	}
	if final.Error != "" {
		log.Errorf(ctx, fmt.Errorf("%s", final.Error), "assistant reported an error")
		os.Exit(1)
	}
}
