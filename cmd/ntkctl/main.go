// Command ntkctl runs maintenance tasks against the configured store:
//
//	ntkctl [-config path] migrate
//	ntkctl [-config path] optimize
//	ntkctl [-config path] clear -yes
//	ntkctl [-config path] fill [-days 60] [-seed n]
//	ntkctl [-config path] export [-format json|csv] > backup.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/export"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/server"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/postgres"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

var errUsage = errors.New("usage: ntkctl [-config path] migrate|optimize|clear|fill|export [flags]")

type env struct {
	cfg   *config.Config
	store storage.Store
	norm  *timezone.Normalizer
	clock clock.Clock
	out   io.Writer
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ntkctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, cmdArgs := args[0], args[1:]
	commands := map[string]func(context.Context, *env, []string) error{
		"migrate":  migrate,
		"optimize": optimize,
		"clear":    clearStore,
		"fill":     fill,
		"export":   exportAll,
	}
	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so export output stays clean.
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console", Output: os.Stderr})

	norm, err := timezone.New(cfg.Timezone.Name)
	if err != nil {
		return err
	}
	clk := clock.Real{}
	store, err := server.OpenStore(ctx, cfg, clk, norm)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	return fn(ctx, &env{cfg: cfg, store: store, norm: norm, clock: clk, out: out}, cmdArgs)
}

// migrate creates the schema. OpenStore already migrates Postgres; other
// backends have no schema.
func migrate(_ context.Context, e *env, _ []string) error {
	if _, ok := e.store.(*postgres.Storage); !ok {
		fmt.Fprintf(e.out, "%s backend has no schema to migrate\n", e.cfg.Storage.Driver)
		return nil
	}
	fmt.Fprintln(e.out, "migration complete: occupancy_log is ready")
	return nil
}

// optimize rebuilds Postgres indexes, or runs value-log GC on badger until
// nothing is left to rewrite.
func optimize(ctx context.Context, e *env, _ []string) error {
	switch s := e.store.(type) {
	case *postgres.Storage:
		info, err := s.Optimize(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "optimization complete: %d rows, table size %s\n", info.TotalRows, info.TableSize)
		if info.Oldest != nil && info.Newest != nil {
			fmt.Fprintf(e.out, "oldest %s, newest %s\n", e.norm.Timestamp(*info.Oldest), e.norm.Timestamp(*info.Newest))
		}
		return nil
	case interface{ RunGC(float64) error }:
		passes := 0
		for {
			err := s.RunGC(config.BadgerGCDiscardRatio)
			if errors.Is(err, badgerdb.ErrNoRewrite) {
				break
			}
			if err != nil {
				return err
			}
			passes++
		}
		fmt.Fprintf(e.out, "value log GC complete after %d rewrite(s)\n", passes)
		return nil
	default:
		fmt.Fprintf(e.out, "%s backend needs no optimization\n", e.cfg.Storage.Driver)
		return nil
	}
}

func clearStore(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm deleting every reading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("clear deletes every reading; pass -yes to confirm")
	}
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "store cleared")
	return nil
}

func fill(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("fill", flag.ContinueOnError)
	days := fs.Int("days", 60, "days of history to generate")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("days must be non-negative, got %d", *days)
	}

	readings := sampleReadings(e.clock.Now(), e.norm, *days, rand.New(rand.NewPCG(*seed, *seed>>1)))
	stored := 0
	for i := 0; i < len(readings); i += config.ImportBatchSize {
		end := min(i+config.ImportBatchSize, len(readings))
		n, err := e.store.InsertBatch(ctx, readings[i:end])
		if err != nil {
			return fmt.Errorf("insert batch at %d: %w", i, err)
		}
		stored += n
	}
	fmt.Fprintf(e.out, "inserted %d sample readings covering %d days\n", stored, *days+1)

	daily, err := e.store.DailyAverages(ctx, 10)
	if err != nil {
		return err
	}
	for i := len(daily) - 1; i >= 0; i-- {
		d := daily[i]
		fmt.Fprintf(e.out, "%s: %d records, avg %.1f people\n", d.Date, d.SampleCount, d.Average)
	}
	return nil
}

func exportAll(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "json", "json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exp := export.NewExporter(e.store, e.norm, e.clock)
	var (
		meta *export.Metadata
		err  error
	)
	switch *format {
	case "json":
		meta, err = exp.ExportJSON(ctx, e.out)
	case "csv":
		meta, err = exp.ExportCSV(ctx, e.out)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		return err
	}
	logging.Info().Int("records", meta.TotalRecords).Int64("duration_ms", meta.ExportDurationMs).Msg("export complete")
	return nil
}
