package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/edithist/am"
	"github.com/teranos/edithist/display"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/index"
	"github.com/teranos/edithist/logger"
	"github.com/teranos/edithist/sink"
)

// IxIndexCmd represents the ix index command
var IxIndexCmd = &cobra.Command{
	Use:   "index <diff-dir>",
	Short: "Load diff batches into the SQLite store",
	Long: `Read every .json batch written by 'ix diff' and store entities, revisions
and diff operations in SQLite. Entities are tagged with their class from the
classes CSV (header entity_id,class_id) when one is given.

Re-indexing the same files is safe: rows are replaced, not duplicated.

Examples:
  edithist ix index ./diffs
  edithist ix index ./diffs --classes classes.csv --db history.db
  edithist ix index ./diffs --reset                 # clear tables first`,
	Args: cobra.ExactArgs(1),
	RunE: runIxIndex,
}

func init() {
	IxIndexCmd.Flags().String("classes", "", "CSV entity_id,class_id (default: index.classes_file)")
	IxIndexCmd.Flags().Int("bulk-size", 0, "Write once more than this many files are read (default: index.bulk_size)")
	IxIndexCmd.Flags().String("db", "", "SQLite database (default: database.path)")
	IxIndexCmd.Flags().Bool("reset", false, "Delete all indexed entities and revisions before loading")
}

func runIxIndex(cmd *cobra.Command, args []string) error {
	loaded, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded
	flags := cmd.Flags()
	if flags.Changed("classes") {
		cfg.Index.ClassesFile, _ = flags.GetString("classes")
	}
	if flags.Changed("bulk-size") {
		cfg.Index.BulkSize, _ = flags.GetInt("bulk-size")
	}
	if flags.Changed("db") {
		cfg.Database.Path, _ = flags.GetString("db")
	}
	if err := cfg.ValidateIndex(); err != nil {
		return err
	}

	useJSON := display.ShouldOutputJSON(cmd)
	log := logger.Logger.Named("ix-index")

	classes, err := sink.LoadClasses(cfg.Index.ClassesFile)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg.GetDatabasePath())
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := sink.NewSQLStore(database, classes, log)
	if reset, _ := flags.GetBool("reset"); reset {
		if err := store.Reset(ctx); err != nil {
			return err
		}
		if !useJSON {
			pterm.Warning.Println("Cleared previously indexed entities and revisions")
		}
	}

	retrying := sink.NewRetrying(store, sink.RetryOptions{
		Attempts:            cfg.Sink.RetryAttempts,
		InitialInterval:     time.Duration(cfg.Sink.RetryInitialMS) * time.Millisecond,
		MaxBatchesPerSecond: cfg.Sink.MaxBatchesPerSecond,
	}, log)

	var spinner *pterm.SpinnerPrinter
	if !useJSON {
		spinner, _ = pterm.DefaultSpinner.Start("Indexing " + args[0] + "...")
	}
	res, indexErr := index.New(retrying, cfg.Index.BulkSize, log).IndexDir(ctx, args[0])
	if spinner != nil {
		spinner.Stop()
	}

	if res != nil {
		runErr := store.RecordRun(context.WithoutCancel(ctx), sink.Run{
			ID:             uuid.New().String(),
			Command:        "ix index",
			Input:          args[0],
			StartedAt:      res.Start,
			FinishedAt:     res.End,
			FilesProcessed: res.Files,
			ItemsWritten:   res.Items,
			ItemsDropped:   retrying.Dropped(),
		})
		if runErr != nil {
			log.Warnw("Failed to record run", logger.FieldError, runErr)
		}
	}

	if useJSON {
		if err := display.OutputJSON(res); err != nil {
			return err
		}
		return indexErr
	}
	if indexErr != nil {
		pterm.Error.Printf("Indexing failed: %v\n", indexErr)
		return indexErr
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Indexed %d entities from %d files in %d bulks (%s)\n",
		res.Items, res.Files, res.Batches, res.End.Sub(res.Start).Round(time.Millisecond))
	if dropped := retrying.Dropped(); dropped > 0 {
		pterm.Warning.Printf("%d entities were rejected by the store and skipped\n", dropped)
	}
	pterm.Info.Printf("Store now holds %d entities, %d revisions, %d diff operations\n",
		counts.Entities, counts.Revisions, counts.RevisionOps)
	return nil
}
