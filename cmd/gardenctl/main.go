// Package main is gardenctl, the operator CLI for the garden decision engine.
//
// Usage:
//
//	gardenctl process
//	gardenctl cleanup-snapshots [--dry-run] [--older-than=12] [--archive=FILE]
//	gardenctl diagnostics [--json]
//	gardenctl migrate up|down [N]|version
//	gardenctl --version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gardenwatch/internal/app"
	"gardenwatch/internal/config"
	"gardenwatch/internal/daily"
	"gardenwatch/internal/db"
	"gardenwatch/internal/scheduler"
)

const usage = `gardenctl: operate the garden decision engine

Commands:
  process              run the daily pass now, ignoring the run lease
  cleanup-snapshots    delete old decision snapshots
  diagnostics          print notification counts and run state
  migrate              apply or roll back schema migrations (up, down [N], version)

Flags:
  --version            print build information
`

type processor interface {
	RunNow(ctx context.Context) (daily.Summary, error)
}

type cleaner interface {
	Cleanup(ctx context.Context, olderThanMonths int, dryRun bool, archive io.Writer) (scheduler.CleanupResult, error)
}

type diagnoser interface {
	Collect(ctx context.Context) (*scheduler.Report, error)
}

type migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gardenctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	showVersion := fs.Bool("version", false, "print build information")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, config.NewBuildInfo().String())
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "process", "cleanup-snapshots", "diagnostics", "migrate":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "error: loading configuration: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg.LogLevel)

	if command == "migrate" {
		m, err := db.NewMigrator(cfg.Database.URL.Unmask())
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer m.Close()
		return exit(stderr, cmdMigrate(stdout, rest, m))
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	switch command {
	case "process":
		err = cmdProcess(ctx, stdout, a.Job)
	case "cleanup-snapshots":
		err = cmdCleanup(ctx, stdout, stderr, rest, a.Cleaner, cfg.Scheduler.CleanupMonths)
	case "diagnostics":
		err = cmdDiagnostics(ctx, stdout, stderr, rest, a.Diagnostics)
	}
	if err != nil {
		logger.Error("command failed", slog.String("command", command), slog.Any("error", err))
	}
	return exit(stderr, err)
}

func exit(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

func cmdProcess(ctx context.Context, out io.Writer, p processor) error {
	s, err := p.RunNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Processed %d plantations, created %d notifications (%d pushed) in %s\n",
		s.Processed, s.Notifications, s.Pushed, s.Duration.Round(time.Millisecond))
	if s.WeatherErrors > 0 || s.RuleErrors > 0 {
		fmt.Fprintf(out, "Warnings: %d weather errors, %d rule errors\n", s.WeatherErrors, s.RuleErrors)
	}
	return nil
}

func cmdCleanup(ctx context.Context, out, stderr io.Writer, args []string, c cleaner, defaultMonths int) (err error) {
	fs := flag.NewFlagSet("cleanup-snapshots", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dryRun := fs.Bool("dry-run", false, "count matching snapshots without deleting")
	months := fs.Int("older-than", defaultMonths, "delete snapshots older than this many months")
	archivePath := fs.String("archive", "", "write deleted snapshots to FILE as zstd-compressed JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var archive io.Writer
	if *archivePath != "" && !*dryRun {
		f, err := os.Create(*archivePath)
		if err != nil {
			return fmt.Errorf("creating archive: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("closing archive: %w", closeErr)
			}
		}()
		archive = f
	}

	res, err := c.Cleanup(ctx, *months, *dryRun, archive)
	if err != nil {
		return err
	}
	if res.DryRun {
		fmt.Fprintf(out, "Dry run: %d snapshots older than %s would be deleted\n",
			res.Matched, res.Cutoff.Format("2006-01-02"))
		return nil
	}
	fmt.Fprintf(out, "Deleted %d snapshots older than %s\n", res.Deleted, res.Cutoff.Format("2006-01-02"))
	if archive != nil {
		fmt.Fprintf(out, "Archived %d snapshots to %s\n", res.Archived, *archivePath)
	}
	return nil
}

func cmdDiagnostics(ctx context.Context, out, stderr io.Writer, args []string, d diagnoser) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := d.Collect(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return r.WriteText(out)
}

func cmdMigrate(out io.Writer, args []string, m migrator) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate needs a direction: up, down [N] or version")
	}
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := m.Down(steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate direction %q", args[0])
	}

	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	fmt.Fprintf(out, "Schema version %d (dirty: %t)\n", v, dirty)
	return nil
}
