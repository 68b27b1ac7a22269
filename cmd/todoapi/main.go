package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wisbric/todoapi/internal/app"
	"github.com/wisbric/todoapi/internal/config"
)

func main() {
	mode := flag.String("mode", "", "run mode: api, migrate or seed (overrides APP_MODE)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("todoapi", app.Version)
		return
	}
	os.Exit(run(*mode))
}

func run(mode string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "todoapi: %v\n", err)
		return 2
	}
	if mode != "" {
		cfg.Mode = mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("todoapi exited", "mode", cfg.Mode, "error", err)
		return 1
	}
	return 0
}
