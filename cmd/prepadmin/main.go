package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/prepadmin/internal/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = application.Run(ctx, os.Args[1:])
	stop()

	if cerr := application.Close(); cerr != nil && err == nil {
		err = cerr
	}

	switch {
	case err == nil:
	case errors.Is(err, app.ErrUsage):
		fmt.Fprintf(os.Stderr, "prepadmin: %v\n", err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "prepadmin: %v\n", err)
		os.Exit(1)
	}
}
