package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/zoff-tech/go-messenger/pkg/cli"
)

func main() {
	// A signal ends a running receiver the same way a closed subscription does
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
