// Command cachepipectl inspects and manages a cachepipe deployment: it
// reads entries, deletes keys, invalidates tags, inspects and resets
// circuit breakers, and reports health.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}
