// Command wanikani reads a user's WaniKani data: the user record, subjects,
// assignments and the vocabulary learned so far. The serve subcommand
// exposes the vocabulary over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/wanikani-client/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(config.New()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wanikani: %v\n", err)
		os.Exit(1)
	}
}
