package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sinain/sinain-core/internal/config"
	"github.com/sinain/sinain-core/internal/logging"
	"github.com/sinain/sinain-core/internal/orchestrator"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("fatal: config", "error", err)
		os.Exit(1)
	}

	logging.PrintBanner(version, cfg.Addr())

	app, err := orchestrator.New(cfg)
	if err != nil {
		slog.Error("fatal: startup", "error", err)
		os.Exit(1)
	}

	logging.PrintAccessURL(cfg.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		slog.Error("fatal: runtime", "error", err)
		os.Exit(2)
	}
}
