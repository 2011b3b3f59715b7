// Command ingest loads a crashes, people or vehicles CSV export through the
// same validation and identity rules as the API.
//
// Usage:
//
//	ingest -kind crashes -file crashes.csv [-dry-run] [-failed-out failed.csv]
//
// Logs go to stderr and the run summary is printed to stdout as JSON. The
// exit status is 1 when the run could not complete and 2 when it completed
// with storage failures.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
	_ "github.com/JonMunkholm/crashdb/internal/core/tables" // Register detail tables
	"github.com/JonMunkholm/crashdb/internal/ingest"
	"github.com/JonMunkholm/crashdb/internal/logging"
	"github.com/JonMunkholm/crashdb/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	kindFlag := flag.String("kind", "", "record kind: crashes, people or vehicles")
	file := flag.String("file", "", "CSV file to load, or - for stdin")
	dryRun := flag.Bool("dry-run", false, "parse and validate fields without writing")
	failedOut := flag.String("failed-out", "", "write rejected and failed rows to this CSV file")
	runID := flag.String("run-id", "", "run id for log correlation (default: random uuid)")
	flag.Parse()

	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return 1
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	kind, err := ingest.ParseKind(*kindFlag)
	if err != nil {
		slog.Error("invalid -kind", "error", err)
		flag.Usage()
		return 1
	}
	if *file == "" {
		slog.Error("-file is required")
		flag.Usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openInput(*file)
	if err != nil {
		slog.Error("failed to open input", "file", *file, "error", err)
		return 1
	}
	defer closeSrc()

	opts := ingest.Options{
		Kind:        kind,
		DryRun:      *dryRun,
		RowTimeout:  cfg.Ingest.RowTimeout,
		MaxFileSize: cfg.Ingest.MaxFileSize,
		RunID:       *runID,
	}
	if *failedOut != "" {
		f, err := os.Create(*failedOut)
		if err != nil {
			slog.Error("failed to create failed-rows file", "file", *failedOut, "error", err)
			return 1
		}
		defer f.Close()
		opts.FailedOut = f
	}

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		return 1
	}
	defer backend.Close()
	if cfg.Store.AutoMigrate {
		if err := backend.Migrate(ctx); err != nil {
			slog.Error("failed to migrate store", "error", err)
			return 1
		}
	}

	service := core.NewService(backend, cfg.ServiceOptions())
	sum, runErr := ingest.NewRunner(service, opts).Run(ctx, src)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		slog.Error("failed to write summary", "error", err)
	}

	switch {
	case runErr != nil:
		msg := core.MapError(runErr)
		slog.Error("ingest aborted", "error", runErr, "code", msg.Code, "action", msg.Action)
		return 1
	case !sum.OK():
		return 2
	}
	return 0
}

// openInput opens path, treating "-" as stdin.
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
