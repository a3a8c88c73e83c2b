// Package wikidump turns MediaWiki XML history dumps into batches of items
// whose revisions are expressed as JSON diffs.
package wikidump

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/filter"
	"github.com/teranos/edithist/logger"
	"github.com/teranos/edithist/staging"
)

// readBufferSize is the buffered reader size in front of the XML decoder.
const readBufferSize = 1 << 20

// ProgressInterval defines how often to log progress during item processing
const ProgressInterval = 1000

// Options configures a Processor.
type Options struct {
	BulkSize             int
	Filter               *filter.Set
	PayloadFormat        string
	KeepInvalidRevisions bool
	VerifyPatches        bool
}

// Processor runs one dump file through staging, parsing and batching.
// A Processor may be shared by pool workers; per-file state lives in
// ProcessFile.
type Processor struct {
	opts   Options
	sink   batch.Sink
	stager *staging.Stager
	logger *zap.SugaredLogger
}

// FileResult represents the result of processing one dump file
type FileResult struct {
	File         string    `json:"file"`
	Stats        Stats     `json:"stats"`
	Batches      int       `json:"batches"`
	ItemsWritten int       `json:"items_written"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// Duration is the wall time spent on the file.
func (r *FileResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewProcessor creates a processor. stager may be nil when inputs are never
// compressed.
func NewProcessor(opts Options, sink batch.Sink, stager *staging.Stager, log *zap.SugaredLogger) *Processor {
	return &Processor{
		opts:   opts,
		sink:   sink,
		stager: stager,
		logger: logger.Named(log, "wikidump"),
	}
}

// ProcessFile parses path and writes its items to the sink. A returned
// error means the file was abandoned; batches flushed before the failure
// stay written.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*FileResult, error) {
	result := &FileResult{File: path, StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	staged, cleanup := path, func() {}
	if p.stager != nil {
		var err error
		staged, cleanup, err = p.stager.Stage(ctx, path)
		if err != nil {
			result.Message = err.Error()
			return result, errors.Wrapf(err, "stage %s", path)
		}
	}
	defer cleanup()

	f, err := os.Open(staged)
	if err != nil {
		result.Message = err.Error()
		return result, errors.Wrapf(err, "open %s", staged)
	}
	defer f.Close()

	err = p.process(ctx, path, bufio.NewReaderSize(f, readBufferSize), result)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	result.Success = true
	result.Message = "completed"
	return result, nil
}

// ProcessReader is ProcessFile for an already-open plain XML stream.
func (p *Processor) ProcessReader(ctx context.Context, name string, r io.Reader) (*FileResult, error) {
	result := &FileResult{File: name, StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	if err := p.process(ctx, name, r, result); err != nil {
		result.Message = err.Error()
		return result, err
	}
	result.Success = true
	result.Message = "completed"
	return result, nil
}

func (p *Processor) process(ctx context.Context, name string, r io.Reader, result *FileResult) error {
	parser := NewDecoderParser(r, ParserOptions{
		File:                 name,
		Filter:               p.opts.Filter,
		PayloadFormat:        p.opts.PayloadFormat,
		KeepInvalidRevisions: p.opts.KeepInvalidRevisions,
		VerifyPatches:        p.opts.VerifyPatches,
	}, p.logger)
	writer := batch.NewWriter(p.sink, name, p.opts.BulkSize, p.logger)

	defer func() {
		result.Stats = parser.Stats()
		result.Batches = writer.Flushes()
		result.ItemsWritten = writer.Written()
	}()

	p.logger.Infow("Processing dump", logger.FieldFile, name)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := writer.Accept(ctx, item); err != nil {
			return err
		}
		if n%ProgressInterval == 0 {
			p.logger.Infow("Progress",
				logger.FieldFile, name,
				logger.FieldCount, n,
				logger.FieldBatchSeq, writer.Flushes())
		}
	}
	if err := writer.Flush(ctx); err != nil {
		return err
	}

	stats := parser.Stats()
	p.logger.Infow("Finished dump",
		logger.FieldFile, name,
		"items_seen", stats.ItemsSeen,
		"items_emitted", stats.ItemsEmitted,
		"revisions", stats.Revisions,
		"payload_errors", stats.PayloadErrors,
		"batches", writer.Flushes())
	return nil
}
