package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var halt *haltError
	if errors.As(err, &halt) {
		fmt.Fprintln(os.Stderr, halt.Render())
	} else {
		fmt.Fprintf(os.Stderr, "replybot: %v\n", err)
	}
	cancel()
	os.Exit(1)
}
