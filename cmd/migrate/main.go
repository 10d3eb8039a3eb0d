package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/wolfman30/leadflow/migrations"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const usage = "usage: migrate [up | down <steps> | force <version> | version]"

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL")).Component("migrate")

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if err := run(databaseURL, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL string, args []string, logger *logging.Logger) error {
	cmd, arg, err := parseArgs(args)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-arg)
	case "force":
		err = m.Force(arg)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return fmt.Errorf("read version: %w", verr)
		}
		logger.Info("schema version", "version", version, "dirty", dirty)
		return nil
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations complete", "command", cmd, "version", version, "dirty", dirty)
	return nil
}

func parseArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "up", 0, nil
	}
	switch args[0] {
	case "up", "version":
		return args[0], 0, nil
	case "down", "force":
		if len(args) < 2 {
			return "", 0, errors.New(usage)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || (args[0] == "down" && n <= 0) {
			return "", 0, fmt.Errorf("invalid %s argument %q: %s", args[0], args[1], usage)
		}
		return args[0], n, nil
	default:
		return "", 0, errors.New(usage)
	}
}
