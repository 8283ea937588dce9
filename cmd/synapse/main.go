// Synapse — event-mediated assistant server.
// Task 9.2: Entry point. Subcommands: serve (HTTP server), migrate (schema).

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synapselabs/synapse/internal/infra/config"
	"github.com/synapselabs/synapse/internal/infra/logging"
	"github.com/synapselabs/synapse/internal/infra/sqlite"
	"github.com/synapselabs/synapse/internal/server"
	"github.com/synapselabs/synapse/internal/version"
)

const shutdownGrace = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("synapse", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	switch fs.Arg(0) {
	case "serve":
		return runServe(out)
	case "migrate":
		return runMigrate(out)
	case "":
		// No command: print version, matching --version.
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	default:
		fmt.Fprintf(out, "unknown command: %s\n", fs.Arg(0)) //nolint:errcheck
		printHelp(out)
		return 2
	}
}

// runServe assembles the server from env config and blocks until SIGINT or
// SIGTERM, then shuts down with a grace period.
func runServe(out io.Writer) int {
	cfg := config.Load()
	log := logging.NewDefault(cfg.LogLevel, cfg.LogFormat)

	srv, err := server.New(cfg, log)
	if err != nil {
		fmt.Fprintf(out, "failed to start: %v\n", err) //nolint:errcheck
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return 1
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		return 1
	}
	return 0
}

// runMigrate applies pending migrations against the configured database.
func runMigrate(out io.Writer) int {
	cfg := config.Load()

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(out, "open database: %v\n", err) //nolint:errcheck
		return 1
	}
	defer db.Close()

	if err := sqlite.MigrateUp(db); err != nil {
		fmt.Fprintf(out, "migrate: %v\n", err) //nolint:errcheck
		return 1
	}

	v, err := sqlite.MigrationVersion(db)
	if err != nil {
		fmt.Fprintf(out, "migration version: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintf(out, "migrated to version %d\n", v) //nolint:errcheck
	return 0
}

func printHelp(out io.Writer) {
	helpText := `Synapse - event-mediated assistant server

Usage:
  synapse [options] [command]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve        Start the HTTP server
  migrate      Run database migrations

Examples:
  synapse --version
  synapse serve
  synapse migrate`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
