// Package batch groups completed items into bounded batches for a sink.
package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/logger"
)

// Batch is one flush of items from a single input file. Seq numbers the
// flushes of that file starting at 0.
type Batch struct {
	Source string
	Seq    int
	Items  []*types.Item
}

// Sink persists batches. Implementations must be safe for concurrent use
// when shared between workers.
type Sink interface {
	WriteBatch(ctx context.Context, b Batch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, b Batch) error

func (f SinkFunc) WriteBatch(ctx context.Context, b Batch) error {
	return f(ctx, b)
}

// Writer buffers items for one input file and flushes once the buffer
// holds more than bulkSize items. A Writer is owned by a single worker.
type Writer struct {
	sink     Sink
	source   string
	bulkSize int
	logger   *zap.SugaredLogger

	buf     []*types.Item
	seq     int
	written int
}

// NewWriter creates a writer. A negative bulkSize is treated as 0, which
// flushes after every item.
func NewWriter(sink Sink, source string, bulkSize int, log *zap.SugaredLogger) *Writer {
	if bulkSize < 0 {
		bulkSize = 0
	}
	return &Writer{
		sink:     sink,
		source:   source,
		bulkSize: bulkSize,
		logger:   logger.Named(log, "batch"),
		buf:      make([]*types.Item, 0, bulkSize+1),
	}
}

// Accept buffers item, flushing when the buffer exceeds the bulk size.
func (w *Writer) Accept(ctx context.Context, item *types.Item) error {
	w.buf = append(w.buf, item)
	if len(w.buf) > w.bulkSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush hands the buffered items to the sink. An empty buffer is a no-op and
// does not consume a sequence number.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	b := Batch{Source: w.source, Seq: w.seq, Items: w.buf}
	if err := w.sink.WriteBatch(ctx, b); err != nil {
		return errors.Wrapf(err, "flush batch %d of %s", w.seq, w.source)
	}

	w.logger.Debugw("Flushed batch",
		logger.FieldFile, w.source,
		logger.FieldBatchSeq, w.seq,
		logger.FieldBatchSize, len(b.Items))

	w.written += len(b.Items)
	w.seq++
	w.buf = make([]*types.Item, 0, w.bulkSize+1)
	return nil
}

// Flushes is the number of batches written so far.
func (w *Writer) Flushes() int {
	return w.seq
}

// Written is the number of items handed to the sink so far.
func (w *Writer) Written() int {
	return w.written
}

// Pending is the number of buffered items not yet flushed.
func (w *Writer) Pending() int {
	return len(w.buf)
}
