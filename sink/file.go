// Package sink persists batches of diffed items.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/edithist/am"
	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// archiveExts are stripped from input names before the .xml suffix.
var archiveExts = []string{".bz2", ".gz", ".7z"}

// OutputName names the output file for flush seq of source:
// "dumps/wikidata-p1.xml.bz2", 3 -> "wikidata-p1_3.json".
func OutputName(source string, seq int) string {
	base := filepath.Base(source)
	for _, ext := range archiveExts {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSuffix(base, ".xml")
	return fmt.Sprintf("%s_%d.json", base, seq)
}

// FileSink writes each batch as a JSON array into its own file.
type FileSink struct {
	dir    string
	logger *zap.SugaredLogger
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string, log *zap.SugaredLogger) (*FileSink, error) {
	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}
	return &FileSink{dir: dir, logger: logger.Named(log, "sink.file")}, nil
}

// WriteBatch writes through a temp file so a crash never leaves a truncated
// batch under the final name.
func (s *FileSink) WriteBatch(ctx context.Context, b batch.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(s.dir, OutputName(b.Source, b.Seq))

	tmp, err := os.CreateTemp(s.dir, ".batch-*.json")
	if err != nil {
		return errors.WrapSinkError(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(b.Items); err != nil {
		tmp.Close()
		return errors.WrapSinkError(err, fmt.Sprintf("encode batch %d", b.Seq))
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapSinkError(err, "close temp file")
	}
	if err := os.Chmod(tmp.Name(), am.DefaultFilePermissions); err != nil {
		return errors.WrapSinkError(err, "chmod batch file")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.WrapSinkError(err, "rename batch file")
	}

	s.logger.Debugw("Wrote batch file",
		logger.FieldPath, target,
		logger.FieldBatchSize, len(b.Items))
	return nil
}

// Dir is the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}
