// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/revisit-cli/cmd"
)

// main is the entry point for the revisit CLI application.
func main() {
	// SIGINT/SIGTERM cancel the run context; in-flight views unwind through
	// normal cancellation paths before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
