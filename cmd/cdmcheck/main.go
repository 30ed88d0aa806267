// Command cdmcheck validates and normalizes OMOP CDM table files against
// per-table field definitions.
//
// Usage:
//
//	cdmcheck [flags] <input>
//	cdmcheck -list
//
// Valid rows are written to -out (stdout by default); rejected rows are
// logged and, with -quarantine, stored for later inspection. The exit status
// is 1 on setup errors and 2 when any row was rejected.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/unijord/cdmcheck/internal/config"
	"github.com/unijord/cdmcheck/internal/logging"
	"github.com/unijord/cdmcheck/pkg/enrich"
	"github.com/unijord/cdmcheck/pkg/pipeline"
	"github.com/unijord/cdmcheck/pkg/quarantine"
	"github.com/unijord/cdmcheck/pkg/reader"
	"github.com/unijord/cdmcheck/pkg/schema"
	"github.com/unijord/cdmcheck/pkg/sink"
	"github.com/unijord/cdmcheck/pkg/validate"
)

const (
	exitOK       = 0
	exitSetup    = 1
	exitRejected = 2
)

type flags struct {
	config      string
	schemas     string
	table       string
	format      string
	out         string
	outFormat   string
	policy      string
	workers     int
	rules       string
	quarantine  string
	idColumn    string
	logLevel    string
	allNullable bool
	list        bool
	version     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cdmcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f flags
	fs.StringVar(&f.config, "config", "", "YAML config file")
	fs.StringVar(&f.schemas, "schemas", "", "directory of table field definitions (.json, .yaml)")
	fs.StringVar(&f.table, "table", "", "table to validate against (default: input file name)")
	fs.StringVar(&f.format, "format", "", "input format: csv, jsonl or avro (default: by extension)")
	fs.StringVar(&f.out, "out", "", "output file (default: stdout)")
	fs.StringVar(&f.outFormat, "out-format", "", "output format: jsonl, sql, arrow or avro")
	fs.StringVar(&f.policy, "policy", "", "unknown column policy: lenient or strict")
	fs.IntVar(&f.workers, "workers", 0, "validation workers (default: GOMAXPROCS)")
	fs.StringVar(&f.rules, "rules", "", "YAML file of default and filter rules")
	fs.StringVar(&f.quarantine, "quarantine", "", "bbolt file receiving rejected rows")
	fs.StringVar(&f.idColumn, "id-column", "", "column reported as the row id (default: first column)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.allNullable, "all-nullable", false, "treat every column as nullable")
	fs.BoolVar(&f.list, "list", false, "list known tables and exit")
	fs.BoolVar(&f.version, "version", false, "show version information")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: cdmcheck [flags] <input>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitSetup
	}
	if f.version {
		printVersion(stdout)
		return exitOK
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(stderr, "cdmcheck: %v\n", err)
		return exitSetup
	}
	applyFlags(fs, &f, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "cdmcheck: %v\n", err)
		return exitSetup
	}

	opts := cfg.LogOptions()
	opts.Output = stderr
	logger, cleanup, err := logging.Setup(opts)
	if err != nil {
		fmt.Fprintf(stderr, "cdmcheck: %v\n", err)
		return exitSetup
	}
	defer cleanup()

	var loadOpts []schema.Option
	if cfg.AllNullable {
		loadOpts = append(loadOpts, schema.WithAllNullable())
	}
	reg, err := schema.LoadDir(cfg.Schemas, loadOpts...)
	if err != nil {
		logger.Error("load schemas", "dir", cfg.Schemas, "error", err)
		return exitSetup
	}
	logger.Debug("schemas loaded", "dir", cfg.Schemas, "tables", reg.Len())

	if f.list {
		for _, name := range reg.Tables() {
			ts, _ := reg.Get(name)
			fmt.Fprintf(stdout, "%s\t%d columns\t%d required\n", name, ts.Len(), len(ts.Required()))
		}
		return exitOK
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return exitSetup
	}
	input := fs.Arg(0)

	stats, err := check(ctx, logger, cfg, f, reg, input, stdout)
	if err != nil {
		logger.Error("check failed", "input", input, "error", err)
		return exitSetup
	}
	fmt.Fprintf(stderr, "read=%d valid=%d rejected=%d filtered=%d\n", stats.Read, stats.Valid, stats.Rejected, stats.Filtered)
	if stats.Rejected > 0 {
		return exitRejected
	}
	return exitOK
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(fs *flag.FlagSet, f *flags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "schemas":
			cfg.Schemas = f.schemas
		case "out-format":
			cfg.OutFormat = f.outFormat
		case "policy":
			cfg.Policy = f.policy
		case "workers":
			cfg.Workers = f.workers
		case "rules":
			cfg.Rules = f.rules
		case "quarantine":
			cfg.Quarantine = f.quarantine
		case "id-column":
			cfg.IDColumn = f.idColumn
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "all-nullable":
			cfg.AllNullable = f.allNullable
		}
	})
}

// tableFromPath derives a table name from an input file name: person.csv -> person.
func tableFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func check(ctx context.Context, logger *slog.Logger, cfg *config.Config, f flags, reg *schema.Registry, input string, stdout io.Writer) (pipeline.Stats, error) {
	table := f.table
	if table == "" {
		table = tableFromPath(input)
	}
	ts, err := reg.Get(table)
	if err != nil {
		return pipeline.Stats{}, err
	}

	policy, err := validate.ParsePolicy(cfg.Policy)
	if err != nil {
		return pipeline.Stats{}, err
	}
	runCfg := pipeline.Config{
		Validator: validate.New(reg, policy),
		Workers:   cfg.Workers,
		Logger:    logger,
	}

	if cfg.Rules != "" {
		rules, err := enrich.ReadRules(cfg.Rules)
		if err != nil {
			return pipeline.Stats{}, err
		}
		if runCfg.Enricher, err = enrich.Compile(rules, reg); err != nil {
			return pipeline.Stats{}, err
		}
	}

	if cfg.Quarantine != "" {
		store, err := quarantine.Open(cfg.Quarantine)
		if err != nil {
			return pipeline.Stats{}, err
		}
		defer store.Close()
		runCfg.Quarantine = store
	}

	idColumn := cfg.IDColumn
	if idColumn == "" {
		idColumn = ts.At(0).Name
	}
	in, err := reader.Open(input, f.format, idColumn)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer in.Close()

	out := stdout
	if f.out != "" && f.out != "-" {
		file, err := os.Create(f.out)
		if err != nil {
			return pipeline.Stats{}, fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}
	w, err := sink.New(cfg.OutFormat, out, ts)
	if err != nil {
		return pipeline.Stats{}, err
	}

	runner, err := pipeline.New(runCfg)
	if err != nil {
		return pipeline.Stats{}, err
	}
	stats, runErr := runner.Run(ctx, table, in, w)
	if err := w.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	if runErr != nil {
		return stats, runErr
	}
	if runCfg.Quarantine != nil && stats.Rejected > 0 {
		logger.Info("rejected rows quarantined", "file", cfg.Quarantine, "run_id", runner.RunID().String(), "count", stats.Rejected)
	}
	return stats, nil
}
