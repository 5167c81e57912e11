// Command lotto-cli is a terminal client for the lottery backend: it logs in,
// lists the active tickets, shows the draw countdown and follows a payment
// order until it settles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if os.Getenv("LOTTO_DEBUG") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(ctx, lg, os.Args[1:], os.Stdout); err != nil {
		lg.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}
