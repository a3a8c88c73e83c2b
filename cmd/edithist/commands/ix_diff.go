package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/edithist/am"
	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/display"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/filter"
	"github.com/teranos/edithist/ixgest/wikidump"
	"github.com/teranos/edithist/logger"
	"github.com/teranos/edithist/sink"
	"github.com/teranos/edithist/staging"
)

// IxDiffCmd represents the ix diff command
var IxDiffCmd = &cobra.Command{
	Use:   "diff [input-dir] [output-dir]",
	Short: "Parse history dumps and write per-revision JSON diffs",
	Long: `Parse every dump file in the input directory and write the tracked items
with their revisions as JSON diffs.

Each revision whose declared format is application/json is diffed against the
previous diffed revision of the same item (the first one against {}). Items
are flushed in batches once more than --bulk-size of them are buffered; with
the file sink every batch becomes <dump-name>_<n>.json in the output directory.

Compressed dumps (.bz2, .gz, .7z) are decompressed first with the commands in
the staging.commands configuration.

Examples:
  edithist ix diff ./dumps ./diffs
  edithist ix diff ./dumps ./diffs --entities entities.txt --bulk-size 500
  edithist ix diff ./dumps --sink sqlite --db history.db --workers 4
  edithist ix diff ./dumps ./diffs --watch          # keep running, pick up new dumps`,
	Args: cobra.MaximumNArgs(2),
	RunE: runIxDiff,
}

func init() {
	IxDiffCmd.Flags().Int("bulk-size", am.DefaultBulkSize, "Flush once more than this many items are buffered")
	IxDiffCmd.Flags().String("entities", "", "File with one item identifier per line; only these items are kept")
	IxDiffCmd.Flags().Int("workers", 1, "Dump files processed in parallel")
	IxDiffCmd.Flags().String("sink", am.SinkFile, "Where batches go: file or sqlite")
	IxDiffCmd.Flags().String("db", "", "SQLite database for the sqlite sink (default: database.path)")
	IxDiffCmd.Flags().String("classes", "", "CSV entity_id,class_id used by the sqlite sink")
	IxDiffCmd.Flags().Bool("drop-invalid-revisions", false, "Omit revisions that could not be diffed instead of keeping them with a null diff")
	IxDiffCmd.Flags().Bool("verify-patches", false, "Re-apply every diff and log mismatches")
	IxDiffCmd.Flags().Bool("watch", false, "After the initial pass, keep watching the input directory for new dumps")
	IxDiffCmd.Flags().Duration("settle", wikidump.DefaultSettlePeriod, "With --watch, how long a new file must stay unchanged")
}

// diffConfig applies positional arguments and explicitly set flags on top of
// the loaded configuration.
func diffConfig(cmd *cobra.Command, args []string) (am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return am.Config{}, errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded

	if len(args) > 0 {
		cfg.Dump.InputDir = args[0]
	}
	if len(args) > 1 {
		cfg.Dump.OutputDir = args[1]
	}

	flags := cmd.Flags()
	if flags.Changed("bulk-size") {
		cfg.Dump.BulkSize, _ = flags.GetInt("bulk-size")
	}
	if flags.Changed("entities") {
		cfg.Dump.EntitiesFile, _ = flags.GetString("entities")
	}
	if flags.Changed("workers") {
		cfg.Dump.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("sink") {
		cfg.Sink.Kind, _ = flags.GetString("sink")
	}
	if flags.Changed("db") {
		cfg.Database.Path, _ = flags.GetString("db")
	}
	if flags.Changed("classes") {
		cfg.Index.ClassesFile, _ = flags.GetString("classes")
	}
	if flags.Changed("drop-invalid-revisions") {
		drop, _ := flags.GetBool("drop-invalid-revisions")
		cfg.Dump.KeepInvalidRevisions = !drop
	}
	if flags.Changed("verify-patches") {
		cfg.Dump.VerifyPatches, _ = flags.GetBool("verify-patches")
	}

	if err := cfg.Validate(); err != nil {
		return am.Config{}, err
	}
	return cfg, nil
}

// diffTarget is the sink chain for one run plus the store, when there is one.
type diffTarget struct {
	retrying *sink.Retrying
	store    *sink.SQLStore
	close    func()
}

func openDiffTarget(cfg am.Config, log *zap.SugaredLogger) (*diffTarget, error) {
	var inner batch.Sink
	t := &diffTarget{close: func() {}}

	switch cfg.Sink.Kind {
	case am.SinkSQLite:
		database, err := openDatabase(cfg.GetDatabasePath())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		classes, err := sink.LoadClasses(cfg.Index.ClassesFile)
		if err != nil {
			database.Close()
			return nil, err
		}
		t.store = sink.NewSQLStore(database, classes, log)
		t.close = func() { database.Close() }
		inner = t.store
	default:
		fs, err := sink.NewFileSink(cfg.Dump.OutputDir, log)
		if err != nil {
			return nil, err
		}
		inner = fs
	}

	t.retrying = sink.NewRetrying(inner, sink.RetryOptions{
		Attempts:            cfg.Sink.RetryAttempts,
		InitialInterval:     time.Duration(cfg.Sink.RetryInitialMS) * time.Millisecond,
		MaxBatchesPerSecond: cfg.Sink.MaxBatchesPerSecond,
	}, log)
	return t, nil
}

func runIxDiff(cmd *cobra.Command, args []string) error {
	cfg, err := diffConfig(cmd, args)
	if err != nil {
		return err
	}
	useJSON := display.ShouldOutputJSON(cmd)
	log := logger.Logger.Named("ix-diff")

	ids, err := filter.Load(cfg.Dump.EntitiesFile)
	if err != nil {
		return err
	}
	stager, err := staging.New(cfg.Staging.Commands, cfg.Staging.TempDir, log)
	if err != nil {
		return err
	}
	target, err := openDiffTarget(cfg, log)
	if err != nil {
		return err
	}
	defer target.close()

	processor := wikidump.NewProcessor(wikidump.Options{
		BulkSize:             cfg.GetBulkSize(),
		Filter:               ids,
		PayloadFormat:        cfg.GetPayloadFormat(),
		KeepInvalidRevisions: cfg.Dump.KeepInvalidRevisions,
		VerifyPatches:        cfg.Dump.VerifyPatches,
	}, target.retrying, stager, log)
	pool := wikidump.NewPool(processor, cfg.GetWorkers(), log)

	files, err := wikidump.ListDumpFiles(cfg.Dump.InputDir, cfg.Dump.Extensions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !useJSON {
		pterm.DefaultHeader.WithFullWidth().Printf("IX Diff - Edit History")
	}
	if !useJSON && logger.ShouldOutput(logger.Verbosity, logger.OutputStartup) {
		pterm.Println()
		pterm.Info.Printf("Input:   %s (%d files)\n", cfg.Dump.InputDir, len(files))
		if cfg.Sink.Kind == am.SinkSQLite {
			pterm.Info.Printf("Sink:    sqlite %s\n", cfg.GetDatabasePath())
		} else {
			pterm.Info.Printf("Sink:    %s\n", cfg.Dump.OutputDir)
		}
		if ids.AcceptsAll() {
			pterm.Info.Println("Filter:  all items")
		} else {
			pterm.Info.Printf("Filter:  %d items from %s\n", ids.Len(), cfg.Dump.EntitiesFile)
		}
		if logger.ShouldOutput(logger.Verbosity, logger.OutputConfig) {
			pterm.Info.Printf("Config:  %s\n", cfg.String())
		}
		pterm.Println()
	}

	var spinner *pterm.SpinnerPrinter
	if !useJSON && len(files) > 0 {
		spinner, _ = pterm.DefaultSpinner.Start(fmt.Sprintf("Diffing %d dump files with %d workers...", len(files), cfg.GetWorkers()))
	}
	run, runErr := pool.Run(ctx, files)
	if spinner != nil {
		spinner.Stop()
	}
	recordRun(ctx, target, "ix diff", cfg.Dump.InputDir, run, log)

	if useJSON {
		if err := display.OutputJSON(run); err != nil {
			return err
		}
	} else {
		printRun(run)
	}
	if runErr != nil {
		return runErr
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		settle, _ := cmd.Flags().GetDuration("settle")
		if err := watchDumps(ctx, cfg, pool, target, settle, files, useJSON, log); err != nil {
			return err
		}
	}

	if run.FilesFailed > 0 {
		return errors.Newf("%d of %d dump files failed", run.FilesFailed, len(files))
	}
	return nil
}

func watchDumps(ctx context.Context, cfg am.Config, pool *wikidump.Pool, target *diffTarget, settle time.Duration, done []string, useJSON bool, log *zap.SugaredLogger) error {
	w := wikidump.NewWatcher(cfg.Dump.InputDir, cfg.Dump.Extensions, settle, log)
	w.MarkSeen(done...)
	if !useJSON {
		pterm.Info.Printf("Watching %s for new dumps (Ctrl-C to stop)\n", cfg.Dump.InputDir)
	}
	return w.Run(ctx, func(ctx context.Context, path string) {
		run, err := pool.Run(ctx, []string{path})
		recordRun(ctx, target, "ix diff --watch", path, run, log)
		if err != nil {
			return
		}
		if useJSON {
			_ = display.OutputJSON(run)
		} else {
			printRun(run)
		}
	})
}

func recordRun(ctx context.Context, target *diffTarget, command, input string, run *wikidump.RunResult, log *zap.SugaredLogger) {
	if target.store == nil || run == nil {
		return
	}
	// record even when ctx was canceled
	ctx = context.WithoutCancel(ctx)
	err := target.store.RecordRun(ctx, sink.Run{
		ID:             run.RunID,
		Command:        command,
		Input:          input,
		StartedAt:      run.StartTime,
		FinishedAt:     run.EndTime,
		FilesProcessed: run.FilesProcessed,
		FilesFailed:    run.FilesFailed,
		ItemsWritten:   run.ItemsWritten,
		ItemsDropped:   target.retrying.Dropped(),
	})
	if err != nil {
		log.Warnw("Failed to record run", logger.FieldRunID, run.RunID, logger.FieldError, err)
	}
}

func printRun(run *wikidump.RunResult) {
	if run == nil {
		return
	}
	timing := logger.ShouldOutput(logger.Verbosity, logger.OutputTiming)
	header := []string{"File", "Items", "Revisions", "Diffed", "Batches", "Status"}
	if timing {
		header = append(header, "Time")
	}
	data := pterm.TableData{header}
	for _, f := range run.Files {
		status := pterm.Green("ok")
		if !f.Success {
			status = pterm.Red(f.Message)
		}
		row := []string{
			filepath.Base(f.File),
			fmt.Sprintf("%d", f.ItemsWritten),
			fmt.Sprintf("%d", f.Stats.Revisions),
			fmt.Sprintf("%d", f.Stats.RevisionsDiffed),
			fmt.Sprintf("%d", f.Batches),
			status,
		}
		if timing {
			row = append(row, f.Duration().Round(time.Millisecond).String())
		}
		data = append(data, row)
	}
	if len(run.Files) > 0 && (run.FilesFailed > 0 || logger.ShouldOutput(logger.Verbosity, logger.OutputFileResults)) {
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		pterm.Println()
	}

	summary := fmt.Sprintf("Run %s: %d files processed, %d failed, %d items written in %s",
		run.RunID, run.FilesProcessed, run.FilesFailed, run.ItemsWritten,
		run.EndTime.Sub(run.StartTime).Round(time.Millisecond))
	if run.FilesFailed > 0 {
		pterm.Warning.Println(summary)
	} else {
		pterm.Success.Println(summary)
	}
}
