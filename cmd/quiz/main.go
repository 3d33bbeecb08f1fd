package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"slagie/internal/client"
	"slagie/internal/config"
	"slagie/internal/logger"
	"slagie/internal/runner"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	examID := flag.String("exam", "", "exam id (ULID); pick from the published list when empty")
	server := flag.String("server", cfg.Client.BaseURL, "API base URL including /api")
	token := flag.String("token", cfg.Client.Token, "bearer token; attempts are anonymous without one")
	timeout := flag.Duration("timeout", cfg.Client.Timeout, "HTTP timeout")
	flag.Parse()

	// Keep the terminal readable: only warnings and errors are logged.
	if err := logger.Initialize(config.LoggerConfig{Level: "warn", Env: cfg.Logger.Env}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	api := client.New(*server,
		client.WithToken(*token),
		client.WithTimeout(*timeout),
		client.WithLogger(logger.Named("client")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx, os.Stdin, os.Stdout, api, runner.Config{ExamID: *examID, ReportTimeout: *timeout}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
