package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mew/greeter/internal/bot"
	"mew/greeter/internal/config"
	"mew/greeter/internal/runtime"
)

func main() {
	runtime.LoadDotEnv("[greeter]")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[greeter] config: %v", err)
	}

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatalf("[greeter] init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[greeter] run: %v", err)
	}
	log.Printf("[greeter] shutdown complete")
}
