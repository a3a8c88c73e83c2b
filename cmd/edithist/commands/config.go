package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/edithist/am"
	"github.com/teranos/edithist/db"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// LoadConfigFlag switches the am package to the file named by --config.
func LoadConfigFlag(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	return am.UseConfigFile(path)
}

// openDatabase opens and migrates the store at path, or at the configured
// database.path when path is empty.
func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		path = cfg.GetDatabasePath()
	}
	return db.OpenWithMigrations(path, logger.Logger)
}
