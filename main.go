package main

import (
	"context"
	"os/signal"
	"syscall"
)

func main() {
	globalContext, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := settings()
	logger := newLogger(v)

	application := newApp(globalContext, WithLogger(logger), WithConfig(v))
	go application.Worker(globalContext)
	go application.Serve(globalContext)
	application.Wait()

	_ = logger.Sync()
}
