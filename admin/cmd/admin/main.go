package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/wifilab/perfdash/api/config"
	"github.com/wifilab/perfdash/store/postgres"
	"github.com/wifilab/perfdash/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	databaseURLFlag := flag.String("database-url", "", "PostgreSQL connection URL (or set DATABASE_URL env var)")

	migrateFlag := flag.Bool("migrate", false, "Run database migrations using goose")
	migrateStatusFlag := flag.Bool("migrate-status", false, "Show database migration status")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// godotenv doesn't override existing env vars
	_ = godotenv.Load()

	url := *databaseURLFlag
	if url == "" {
		url = config.DatabaseURL()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *migrateFlag:
		return postgres.RunMigrations(ctx, log, url)
	case *migrateStatusFlag:
		return postgres.MigrationStatus(ctx, log, url)
	default:
		flag.Usage()
		return fmt.Errorf("no command specified (use --migrate or --migrate-status)")
	}
}
