package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/edithist/cmd/edithist/commands"
	"github.com/teranos/edithist/logger"
)

var rootCmd = &cobra.Command{
	Use:   "edithist",
	Short: "edithist - Wikidata edit history as JSON diffs",
	Long: `edithist - Wikidata edit history as JSON diffs.

Streams MediaWiki XML history dumps, reconstructs each tracked entity's
revisions and stores every revision as a JSON patch against the previous one.

Available commands:
  am      - Show and validate configuration ("I am")
  ix      - Ingest dumps (diff) and load diff files into SQLite (index)
  db      - Inspect the SQLite store
  version - Show build information

Examples:
  edithist am show                              # Show current configuration
  edithist ix diff ./dumps ./diffs              # Diff every dump in ./dumps
  edithist ix diff ./dumps ./diffs --entities ids.txt --workers 4
  edithist ix index ./diffs --classes classes.csv
  edithist db stats                             # Row counts and recent runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return commands.LoadConfigFlag(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results in JSON format")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines to stderr")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this TOML file instead of the default cascade")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.IxCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
