package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/edithist/display"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/sink"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the edit history database",
	Long: `db — Inspect the SQLite store filled by 'ix index' and the sqlite sink

Examples:
  edithist db stats                   # Row counts and recent runs
  edithist db stats --limit 5         # Show the last 5 runs`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and recent runs",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().Int("limit", 10, "Number of recent runs to show")
	dbStatsCmd.Flags().String("db", "", "SQLite database (default: database.path)")
}

type runRow struct {
	ID             string    `json:"id"`
	Command        string    `json:"command"`
	Input          string    `json:"input"`
	StartedAt      time.Time `json:"started_at"`
	FilesProcessed int       `json:"files_processed"`
	FilesFailed    int       `json:"files_failed"`
	ItemsWritten   int       `json:"items_written"`
	ItemsDropped   int       `json:"items_dropped"`
}

type dbStats struct {
	Counts sink.Counts `json:"counts"`
	Runs   []runRow    `json:"runs"`
}

func runDbStats(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("db")
	limit, _ := cmd.Flags().GetInt("limit")

	database, err := openDatabase(path)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	ctx := cmd.Context()
	counts, err := sink.NewSQLStore(database, nil, nil).Counts(ctx)
	if err != nil {
		return err
	}
	stats := dbStats{Counts: counts}

	rows, err := database.QueryContext(ctx, `
		SELECT id, command, input, started_at, files_processed, files_failed, items_written, items_dropped
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()
	for rows.Next() {
		var r runRow
		if err := rows.Scan(&r.ID, &r.Command, &r.Input, &r.StartedAt,
			&r.FilesProcessed, &r.FilesFailed, &r.ItemsWritten, &r.ItemsDropped); err != nil {
			return errors.Wrap(err, "failed to scan run")
		}
		stats.Runs = append(stats.Runs, r)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to read runs")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(stats)
	}

	pterm.DefaultSection.Println("Edit history")
	pterm.Printf("Entities:      %d\n", counts.Entities)
	pterm.Printf("Revisions:     %d\n", counts.Revisions)
	pterm.Printf("Diff ops:      %d\n", counts.RevisionOps)
	pterm.Println()

	if len(stats.Runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}
	pterm.DefaultSection.Println("Recent runs")
	data := pterm.TableData{{"Started", "Command", "Input", "Files", "Failed", "Items", "Dropped"}}
	for _, r := range stats.Runs {
		data = append(data, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Command,
			r.Input,
			fmt.Sprintf("%d", r.FilesProcessed),
			fmt.Sprintf("%d", r.FilesFailed),
			fmt.Sprintf("%d", r.ItemsWritten),
			fmt.Sprintf("%d", r.ItemsDropped),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
