package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lawknot/legal-assistant/internal/config"
	"github.com/lawknot/legal-assistant/internal/infrastructure/repository/postgres"
	"github.com/lawknot/legal-assistant/internal/observability/logging"
)

const usage = "usage: migrate [up|status]"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("migrate", cfg.LogLevel)
	slog.SetDefault(logger)

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, command); err != nil {
		logger.Error("migrate_failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("migrate_done", "command", command)
}

func run(ctx context.Context, cfg config.Config, command string) error {
	var action func(context.Context, *sql.DB) error
	switch command {
	case "up":
		action = postgres.RunMigrations
	case "status":
		action = postgres.MigrationStatus
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()
	return action(ctx, db)
}
