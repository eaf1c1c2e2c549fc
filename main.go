package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"devicegateway/cli"
)

func main() {
	// setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
