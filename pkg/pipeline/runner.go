// Package pipeline drives rows from a reader through enrichment and
// validation into a sink, quarantining rejects.
//
// Rows are processed by a pool of workers and written back in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unijord/cdmcheck/pkg/enrich"
	"github.com/unijord/cdmcheck/pkg/quarantine"
	"github.com/unijord/cdmcheck/pkg/reader"
	"github.com/unijord/cdmcheck/pkg/schema"
	"github.com/unijord/cdmcheck/pkg/sink"
	"github.com/unijord/cdmcheck/pkg/validate"
)

// ErrNoValidator is returned by New when Config.Validator is nil.
var ErrNoValidator = errors.New("pipeline needs a validator")

// quarantineBatch is the number of reports buffered per quarantine transaction.
const quarantineBatch = 256

// Config configures a Runner.
type Config struct {
	Validator *validate.Validator

	// Enricher is optional; without it rows go straight to validation.
	Enricher *enrich.Enricher

	// Workers defaults to GOMAXPROCS.
	Workers int

	// Quarantine is optional; when set every rejected row is stored in it.
	Quarantine *quarantine.Store

	// RunID tags quarantine reports. A random one is used when zero.
	RunID uuid.UUID

	// OnOutcome, when set, is called from the writing goroutine for every row
	// in input order.
	OnOutcome func(Outcome)

	Logger *slog.Logger
}

// Runner validates whole inputs. It is safe to call Run concurrently.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Runner, error) {
	if cfg.Validator == nil {
		return nil, ErrNoValidator
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.RunID == uuid.Nil {
		cfg.RunID = quarantine.NewRunID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger.With("component", "pipeline", "run_id", cfg.RunID.String()),
	}, nil
}

// RunID returns the id quarantine reports are tagged with.
func (r *Runner) RunID() uuid.UUID {
	return r.cfg.RunID
}

type job struct {
	seq int
	row reader.Row
}

type result struct {
	seq int
	Outcome
}

// Run reads every row of in, validates it against table and writes valid
// records to out in input order. Rejected rows are counted and quarantined;
// they never stop the run. Run returns early on a read, write or quarantine
// error, or with ctx.Err() when ctx is cancelled. out is not closed.
func (r *Runner) Run(ctx context.Context, table string, in reader.Reader, out sink.Writer) (Stats, error) {
	ts, err := r.cfg.Validator.Registry().Get(table)
	if err != nil {
		return Stats{}, err
	}
	logger := r.logger.With("table", table)
	logger.Info("run started", "workers", r.cfg.Workers, "policy", r.cfg.Validator.Policy().String())
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)

	jobs := make(chan job, r.cfg.Workers*2)
	results := make(chan result, r.cfg.Workers*2)
	readErr := make(chan error, 1)

	// Run must not return while anything still touches in or out.
	var producer, workers sync.WaitGroup
	defer func() {
		cancel()
		producer.Wait()
		workers.Wait()
	}()

	producer.Add(1)
	go func() {
		defer producer.Done()
		defer close(jobs)
		for seq := 0; ctx.Err() == nil; seq++ {
			row, err := in.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case jobs <- job{seq: seq, row: row}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < r.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := range jobs {
				res := result{seq: j.seq, Outcome: r.process(table, ts, j.row)}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	stats, err := r.collect(ctx, logger, table, out, results)
	if err != nil {
		logger.Error("run aborted", "error", err, "read", stats.Read)
		return stats, err
	}
	select {
	case err := <-readErr:
		logger.Error("run aborted", "error", err, "read", stats.Read)
		return stats, fmt.Errorf("read row %d: %w", stats.Read+1, err)
	default:
	}

	logger.Info("run finished",
		"read", stats.Read,
		"valid", stats.Valid,
		"rejected", stats.Rejected,
		"filtered", stats.Filtered,
		"elapsed", time.Since(start).String(),
	)
	return stats, nil
}

// collect restores input order and emits each outcome.
func (r *Runner) collect(ctx context.Context, logger *slog.Logger, table string, out sink.Writer, results <-chan result) (Stats, error) {
	var (
		stats   Stats
		next    int
		pending = make(map[int]Outcome)
		reports []quarantine.Report
	)

	flush := func() error {
		if r.cfg.Quarantine == nil || len(reports) == 0 {
			return nil
		}
		if err := r.cfg.Quarantine.PutBatch(reports); err != nil {
			return fmt.Errorf("quarantine: %w", err)
		}
		reports = reports[:0]
		return nil
	}
	// rows already emitted as rejected stay quarantined when the run aborts
	abort := func(err error) (Stats, error) {
		return stats, errors.Join(err, flush())
	}

	for {
		select {
		case <-ctx.Done():
			return abort(ctx.Err())
		case res, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return abort(err)
				}
				return stats, flush()
			}
			pending[res.seq] = res.Outcome

			for {
				o, ready := pending[next]
				if !ready {
					break
				}
				delete(pending, next)
				next++

				switch o.Status {
				case StatusOK:
					if err := out.Write(o.Record); err != nil {
						return abort(fmt.Errorf("write row %d: %w", o.Row.Index, err))
					}
				case StatusFiltered:
					logger.Debug("row filtered", "row", o.Row.Index, "id", o.Row.ID)
				case StatusRejected:
					logger.Debug("row rejected", "row", o.Row.Index, "id", o.Row.ID, "violations", o.Result.Violations)
					if r.cfg.Quarantine != nil {
						reports = append(reports, quarantine.NewReport(r.cfg.RunID, o.Result, o.Row.Index, o.Row.ID, o.Row.Values))
						if len(reports) >= quarantineBatch {
							if err := flush(); err != nil {
								return stats, err
							}
						}
					}
				}
				stats.add(o.Status)
				if r.cfg.OnOutcome != nil {
					r.cfg.OnOutcome(o)
				}
			}
		}
	}
}

// process runs one row through enrichment and validation.
func (r *Runner) process(table string, ts *schema.TableSchema, row reader.Row) Outcome {
	values := row.Values
	if r.cfg.Enricher != nil {
		enriched, keep, err := r.cfg.Enricher.Apply(table, values)
		if err != nil {
			return Outcome{
				Status: StatusRejected,
				Row:    row,
				Result: &validate.Result{Table: table, Violations: []validate.ColumnViolation{ruleViolation(err)}},
			}
		}
		if !keep {
			return Outcome{Status: StatusFiltered, Row: row}
		}
		values = enriched
	}

	res := r.cfg.Validator.ValidateSchema(ts, values)
	if !res.Valid() {
		return Outcome{Status: StatusRejected, Row: row, Result: res}
	}
	return Outcome{Status: StatusOK, Row: row, Record: res.Record}
}
