// Package db opens the SQLite store used by the sqlite sink and the indexer.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database.
// Pool workers share one store, so this needs headroom for a full batch
// transaction.
const SQLiteBusyTimeoutMS = 5000

// dsn carries the pragmas as connection parameters so that every pooled
// connection gets them, not only the first.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, sep, SQLiteBusyTimeoutMS)
}

// Open opens a SQLite database at the specified path.
// If log is provided, logs database operations; otherwise operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("Opening database", logger.FieldPath, path)
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	// sql.Open is lazy; surface unreachable paths here
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to database %s", path)
	}

	if log != nil {
		log.Infow("Database opened",
			logger.FieldPath, path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}
	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to date.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, errors.Wrap(err, "open with migrations")
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return db, nil
}
