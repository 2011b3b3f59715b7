// Package ingest loads crash, person and vehicle CSV exports through the
// core service, one transaction per row.
//
// Rows are independent. A rejected row is counted and optionally written
// to a failed-rows file with its status in front. It never stops the run;
// only read errors and cancellation do.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crashdb/internal/core"
	"github.com/JonMunkholm/crashdb/internal/logging"
)

// Creator is the part of *core.Service the runner drives.
type Creator interface {
	CreateCrashWithDate(ctx context.Context, in core.CrashInput) (core.CrashRecord, error)
	CreatePerson(ctx context.Context, in core.PersonInput) (core.Person, error)
	CreateVehicle(ctx context.Context, in core.VehicleInput) (core.Vehicle, error)
}

// Options configures a run.
type Options struct {
	Kind Kind
	// DryRun parses every row without writing anything.
	DryRun bool
	// RowTimeout bounds each row's transaction. Zero means no bound.
	RowTimeout time.Duration
	// MaxFileSize rejects inputs larger than this many bytes. Zero means
	// no limit.
	MaxFileSize int64
	// FailedOut receives rejected and failed rows as CSV when non-nil.
	FailedOut io.Writer
	// RunID tags log lines; a random uuid is used when empty.
	RunID string
}

// Summary counts row outcomes.
type Summary struct {
	RunID     string         `json:"run_id"`
	Kind      Kind           `json:"kind"`
	DryRun    bool           `json:"dry_run"`
	Rows      int            `json:"rows"`
	Created   int            `json:"created"`
	Valid     int            `json:"valid,omitempty"`
	Duplicate int            `json:"duplicate"`
	Rejected  int            `json:"rejected"`
	Failed    int            `json:"failed"`
	Reasons   map[string]int `json:"reasons,omitempty"`
	Bytes     int64          `json:"bytes"`
	Duration  time.Duration  `json:"duration_ns"`
}

// OK reports whether no row hit a storage failure.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Runner streams one CSV file into the service.
type Runner struct {
	creator Creator
	opts    Options
}

// NewRunner creates a Runner.
func NewRunner(creator Creator, opts Options) *Runner {
	return &Runner{creator: creator, opts: opts}
}

// Run reads src to the end. The returned Summary is valid even when err
// is non-nil and covers the rows processed before the error.
func (r *Runner) Run(ctx context.Context, src io.Reader) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		RunID:   r.opts.RunID,
		Kind:    r.opts.Kind,
		DryRun:  r.opts.DryRun,
		Reasons: make(map[string]int),
	}
	if sum.RunID == "" {
		sum.RunID = uuid.NewString()
	}
	log := logging.WithFields(ctx, "run_id", sum.RunID, "kind", sum.Kind)
	ctx = core.ContextWithSource(ctx, "ingest "+sum.RunID)

	reader, counter := wrap(src, r.opts.MaxFileSize)
	defer func() {
		sum.Bytes = counter.BytesRead()
		sum.Duration = time.Since(start)
	}()

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return sum, errors.New("empty file")
	}
	if err != nil {
		return sum, readError(err)
	}
	idx := core.MakeHeaderIndex(header)
	if err := checkHeader(r.opts.Kind, idx); err != nil {
		return sum, err
	}

	var failed *csv.Writer
	if r.opts.FailedOut != nil {
		failed = csv.NewWriter(r.opts.FailedOut)
		defer failed.Flush()
		if err := failed.Write(append([]string{"status"}, header...)); err != nil {
			return sum, fmt.Errorf("write failed rows: %w", err)
		}
	}

	log.Info("ingest started", "dry_run", r.opts.DryRun, "columns", len(header))

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)

		var pe *csv.ParseError
		if errors.As(err, &pe) {
			sum.Rows++
			r.reject(sum, failed, &sum.Rejected, record, fmt.Errorf("invalid csv: %w", err))
			log.Warn("row rejected", "line", pe.Line, "error", err)
			continue
		}
		if err != nil {
			return sum, readError(err)
		}
		if isEmptyRow(record) {
			continue
		}
		sum.Rows++

		err = r.processRow(ctx, idx, record)
		switch {
		case err == nil:
			if r.opts.DryRun {
				sum.Valid++
			} else {
				sum.Created++
			}
		case errors.Is(err, core.ErrDuplicateRecord):
			sum.Duplicate++
			log.Debug("row already recorded", "line", line)
		case ctx.Err() != nil:
			return sum, ctx.Err()
		case isRejection(err):
			r.reject(sum, failed, &sum.Rejected, record, err)
			log.Warn("row rejected", "line", line, "error", err)
		default:
			r.reject(sum, failed, &sum.Failed, record, err)
			log.Error("row failed", "line", line, "error", err)
		}
	}

	if failed != nil {
		failed.Flush()
		if err := failed.Error(); err != nil {
			return sum, fmt.Errorf("write failed rows: %w", err)
		}
	}

	log.Info("ingest finished",
		"rows", sum.Rows,
		"created", sum.Created,
		"duplicate", sum.Duplicate,
		"rejected", sum.Rejected,
		"failed", sum.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func (r *Runner) processRow(ctx context.Context, idx core.HeaderIndex, record []string) error {
	if r.opts.RowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RowTimeout)
		defer cancel()
	}

	switch r.opts.Kind {
	case KindCrashes:
		in, err := crashFromRow(idx, record)
		if err != nil || r.opts.DryRun {
			return err
		}
		_, err = r.creator.CreateCrashWithDate(ctx, in)
		return err

	case KindPeople:
		in, err := personFromRow(idx, record)
		if err != nil || r.opts.DryRun {
			return err
		}
		_, err = r.creator.CreatePerson(ctx, in)
		return err

	case KindVehicles:
		in, err := vehicleFromRow(idx, record)
		if err != nil || r.opts.DryRun {
			return err
		}
		_, err = r.creator.CreateVehicle(ctx, in)
		return err
	}
	return fmt.Errorf("unknown kind %q", r.opts.Kind)
}

// reject counts err under its message code and copies the row to the
// failed-rows output.
func (r *Runner) reject(sum *Summary, failed *csv.Writer, counter *int, record []string, err error) {
	*counter++
	msg := core.MapError(err)
	sum.Reasons[msg.Code]++

	if failed == nil {
		return
	}
	status := msg.Code + ": " + err.Error()
	if werr := failed.Write(append([]string{status}, record...)); werr != nil {
		slog.Warn("write failed row", "error", werr)
	}
}

// isRejection reports whether err is a problem with the row itself rather
// than with storage. Rejected rows fail the same way on every retry.
func isRejection(err error) bool {
	f, ok := core.AsFailure(err)
	if !ok {
		return false
	}
	switch f.Kind {
	case core.KindValidation, core.KindReferenceNotFound, core.KindCapacityExhausted:
		return true
	}
	return false
}

func readError(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("invalid csv: %w", err)
	}
	return fmt.Errorf("read csv: %w", err)
}
