// Package index loads diff output files into a batch sink, typically the
// SQLite store.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/logger"
)

// Indexer reads diff files and writes their items in bulks. A bulk is
// flushed once more than bulkSize files have been read into it.
type Indexer struct {
	sink     batch.Sink
	bulkSize int
	logger   *zap.SugaredLogger
}

// Result represents the outcome of one indexing run
type Result struct {
	InputDir string    `json:"input_dir"`
	Files    int       `json:"files"`
	Items    int       `json:"items"`
	Batches  int       `json:"batches"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
}

// New creates an indexer.
func New(sink batch.Sink, bulkSize int, log *zap.SugaredLogger) *Indexer {
	if bulkSize < 0 {
		bulkSize = 0
	}
	return &Indexer{sink: sink, bulkSize: bulkSize, logger: logger.Named(log, "index")}
}

// ListDiffFiles returns the .json files in dir, sorted by name.
func ListDiffFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read diff dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") && filepath.Ext(e.Name()) == ".json" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadDiffFile decodes one output file. Numbers are kept as json.Number so
// entity payloads survive a round trip unchanged.
func ReadDiffFile(path string) ([]*types.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	var items []*types.Item
	if err := dec.Decode(&items); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	for _, it := range items {
		for i := range it.Revisions {
			// only diffed revisions carry a (possibly empty) diff list
			it.Revisions[i].Valid = it.Revisions[i].Diff != nil
		}
	}
	return items, nil
}

// IndexDir indexes every diff file in dir.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (*Result, error) {
	res := &Result{InputDir: dir, Start: time.Now()}
	defer func() { res.End = time.Now() }()

	files, err := ListDiffFiles(dir)
	if err != nil {
		res.Message = err.Error()
		return res, err
	}
	if err := ix.index(ctx, dir, files, res); err != nil {
		res.Message = err.Error()
		return res, err
	}
	res.Success = true
	res.Message = "completed"
	return res, nil
}

func (ix *Indexer) index(ctx context.Context, dir string, files []string, res *Result) error {
	var pending []*types.Item
	inBulk := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := ix.sink.WriteBatch(ctx, batch.Batch{Source: dir, Seq: res.Batches, Items: pending}); err != nil {
			return errors.Wrapf(err, "write bulk %d", res.Batches)
		}
		ix.logger.Infow("Indexed bulk",
			logger.FieldBatchSeq, res.Batches,
			logger.FieldBatchSize, len(pending),
			logger.FieldTotalCount, res.Items+len(pending))
		res.Items += len(pending)
		res.Batches++
		pending = nil
		inBulk = 0
		return nil
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := ReadDiffFile(path)
		if err != nil {
			return err
		}
		ix.logger.Debugw("Read diff file", logger.FieldFile, path, logger.FieldCount, len(items))
		pending = append(pending, items...)
		res.Files++
		inBulk++
		if inBulk > ix.bulkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
