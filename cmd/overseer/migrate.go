package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/overseer/config"
	"github.com/BaSui01/overseer/internal/migration"
)

// =============================================================================
// Schema Migration Commands
// =============================================================================

// runMigrate dispatches the migrate subcommands.
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	sub, subargs := args[0], args[1:]
	switch sub {
	case "up":
		migrateCommand(sub, subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Apply(ctx)
		})
	case "down":
		var all *bool
		migrateCommand(sub, subargs, func(ctx context.Context, cli *migration.CLI) error {
			if *all {
				return cli.Reset(ctx)
			}
			return cli.Rollback(ctx)
		}, func(fs *flag.FlagSet) {
			all = fs.Bool("all", false, "Rollback all migrations")
		})
	case "reset":
		migrateCommand(sub, subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Reset(ctx)
		})
	case "status":
		migrateCommand(sub, subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Status(ctx)
		})
	case "version":
		migrateCommand(sub, subargs, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Version(ctx)
		})
	case "goto":
		version, rest := takeVersionArg(subargs, "overseer migrate goto <version>")
		migrateCommand(sub, rest, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Goto(ctx, uint(version))
		})
	case "force":
		version, rest := takeVersionArg(subargs, "overseer migrate force <version>")
		migrateCommand(sub, rest, func(ctx context.Context, cli *migration.CLI) error {
			return cli.Force(ctx, int(version))
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage()
		os.Exit(1)
	}
}

// migrateCommand parses the shared connection flags, builds a migrator
// and runs one CLI action against it. Extra flag registrations go
// through the optional extras hooks.
func migrateCommand(name string, args []string, run func(context.Context, *migration.CLI) error, extras ...func(*flag.FlagSet)) {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	for _, extra := range extras {
		extra(fs)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	migrator, err := openMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := run(context.Background(), migration.NewCLI(migrator)); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// openMigrator prefers the explicit --db-type/--db-url pair and falls
// back to the application config.
func openMigrator(configPath, dbType, dbURL string) (*migration.Migrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.FromURL(dbType, dbURL)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.FromDatabaseConfig(cfg.Database)
}

// takeVersionArg pops the leading numeric argument from args.
func takeVersionArg(args []string, usage string) (uint64, []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}
	return version, args[1:]
}

// printMigrateUsage prints help for the migrate command.
func printMigrateUsage() {
	fmt.Println(`Checkpoint Schema Migration

Usage:
  overseer migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all rolls back everything)
  reset     Rollback all migrations
  status    Show each migration and a summary
  version   Show the recorded schema version
  goto      Migrate to an exact version
  force     Overwrite the recorded version (recovers a dirty schema)
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  overseer migrate up
  overseer migrate up --config /etc/overseer/config.yaml
  overseer migrate status --db-type sqlite --db-url "file:overseer.db?mode=rwc"
  overseer migrate goto 1
  overseer migrate force 0`)
}
