package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vsnap/src/runner"
)

func main() {
	// the engine stops helpers with SIGKILL; SIGTERM comes from docker stop
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runner.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
