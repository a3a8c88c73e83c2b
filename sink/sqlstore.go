package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/jsondiff"
	"github.com/teranos/edithist/logger"
)

const (
	upsertEntitySQL = `INSERT INTO entities (id, entity_id, class_id, entity_json, source)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(entity_id) DO UPDATE SET
    id = excluded.id,
    class_id = excluded.class_id,
    entity_json = excluded.entity_json,
    source = excluded.source,
    indexed_at = CURRENT_TIMESTAMP`

	upsertRevisionSQL = `INSERT INTO revisions (id, entity_id, class_id, parent_id, timestamp, username, comment, diffed, op_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    entity_id = excluded.entity_id,
    class_id = excluded.class_id,
    parent_id = excluded.parent_id,
    timestamp = excluded.timestamp,
    username = excluded.username,
    comment = excluded.comment,
    diffed = excluded.diffed,
    op_count = excluded.op_count`

	deleteOpsSQL = `DELETE FROM revision_ops WHERE revision_id = ?`

	insertOpSQL = `INSERT INTO revision_ops (revision_id, seq, op, path, value) VALUES (?, ?, ?, ?, ?)`

	insertRunSQL = `INSERT INTO runs (id, command, input, started_at, finished_at, files_processed, files_failed, items_written, items_dropped)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// Run summarizes one CLI invocation for the runs table.
type Run struct {
	ID             string
	Command        string
	Input          string
	StartedAt      time.Time
	FinishedAt     time.Time
	FilesProcessed int
	FilesFailed    int
	ItemsWritten   int
	ItemsDropped   int
}

// SQLStore writes batches into the entities, revisions and revision_ops
// tables. One batch is one transaction. Safe for concurrent use.
type SQLStore struct {
	db      *sql.DB
	classes Classes
	logger  *zap.SugaredLogger
}

// NewSQLStore wraps a migrated database. classes may be nil.
func NewSQLStore(db *sql.DB, classes Classes, log *zap.SugaredLogger) *SQLStore {
	if classes == nil {
		classes = Classes{}
	}
	return &SQLStore{db: db, classes: classes, logger: logger.Named(log, "sink.sqlite")}
}

// WriteBatch stores every item of b or none of them.
func (s *SQLStore) WriteBatch(ctx context.Context, b batch.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapSinkError(err, "begin batch transaction")
	}
	for _, item := range b.Items {
		if err := s.insertItem(ctx, tx, b.Source, item); err != nil {
			tx.Rollback()
			return errors.WrapSinkError(err, "insert "+item.EntityID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapSinkError(err, "commit batch transaction")
	}

	s.logger.Debugw("Stored batch",
		logger.FieldFile, b.Source,
		logger.FieldBatchSeq, b.Seq,
		logger.FieldBatchSize, len(b.Items))
	return nil
}

func (s *SQLStore) insertItem(ctx context.Context, tx *sql.Tx, source string, item *types.Item) error {
	class, ok := s.classes.Lookup(item.EntityID)
	if !ok && len(s.classes) > 0 {
		s.logger.Debugw("No class for entity", logger.FieldItem, item.EntityID)
	}

	entityJSON, err := json.Marshal(item.EntityJSON)
	if err != nil {
		return errors.Wrap(err, "marshal entity json")
	}
	if _, err := tx.ExecContext(ctx, upsertEntitySQL,
		item.ID, item.EntityID, nullable(class), string(entityJSON), source); err != nil {
		return errors.Wrap(err, "upsert entity")
	}

	for _, rev := range item.Revisions {
		if _, err := tx.ExecContext(ctx, upsertRevisionSQL,
			rev.ID, item.EntityID, nullable(class), rev.ParentID,
			rev.Timestamp, rev.Username, rev.Comment, rev.Valid, len(rev.Diff)); err != nil {
			return errors.Wrapf(err, "upsert revision %d", rev.ID)
		}
		if _, err := tx.ExecContext(ctx, deleteOpsSQL, rev.ID); err != nil {
			return errors.Wrapf(err, "clear ops of revision %d", rev.ID)
		}
		for seq, op := range rev.Diff {
			value, err := opValue(op)
			if err != nil {
				return errors.Wrapf(err, "marshal op %d of revision %d", seq, rev.ID)
			}
			if _, err := tx.ExecContext(ctx, insertOpSQL, rev.ID, seq, op.Op, op.Path, value); err != nil {
				return errors.Wrapf(err, "insert op %d of revision %d", seq, rev.ID)
			}
		}
	}
	return nil
}

// opValue is the JSON text of the operation's value, NULL when the op has none.
func opValue(op jsondiff.Operation) (interface{}, error) {
	switch op.Op {
	case jsondiff.OpAdd, jsondiff.OpReplace, jsondiff.OpTest:
		data, err := json.Marshal(op.Value)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, nil
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Reset empties the edit history tables. Runs are kept.
func (s *SQLStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin reset")
	}
	for _, table := range []string{"revision_ops", "revisions", "entities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "clear %s", table)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit reset")
	}
	s.logger.Infow("Cleared edit history tables")
	return nil
}

// Counts holds table sizes.
type Counts struct {
	Entities    int `json:"entities"`
	Revisions   int `json:"revisions"`
	RevisionOps int `json:"revision_ops"`
}

// Counts reports how many rows each edit history table holds.
func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM entities), (SELECT COUNT(*) FROM revisions), (SELECT COUNT(*) FROM revision_ops)`,
	).Scan(&c.Entities, &c.Revisions, &c.RevisionOps)
	if err != nil {
		return Counts{}, errors.Wrap(err, "count rows")
	}
	return c, nil
}

// RecordRun stores a run summary.
func (s *SQLStore) RecordRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, insertRunSQL,
		r.ID, r.Command, r.Input,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
		r.FilesProcessed, r.FilesFailed, r.ItemsWritten, r.ItemsDropped)
	if err != nil {
		return errors.Wrapf(err, "record run %s", r.ID)
	}
	return nil
}
