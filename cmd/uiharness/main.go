// File: cmd/uiharness/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/uiharness/cmd"
)

func main() {
	// Cancel in-flight scenarios on SIGINT or SIGTERM; contexts are still
	// released and failure screenshots still written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
