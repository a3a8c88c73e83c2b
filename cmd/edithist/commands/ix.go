package commands

import (
	"github.com/spf13/cobra"
)

// IxCmd represents the ix command - ingestion operations
var IxCmd = &cobra.Command{
	Use:   "ix",
	Short: "Ingest dumps and diff files",
	Long: `Ingestion (ix) - turn history dumps into per-revision JSON diffs.

Commands:
  edithist ix diff <input-dir> [output-dir]   # Parse dumps and write diff batches
  edithist ix index <diff-dir>                # Load diff batches into SQLite`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	IxCmd.AddCommand(IxDiffCmd)
	IxCmd.AddCommand(IxIndexCmd)
}
