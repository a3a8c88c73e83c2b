package sink

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/logger"
)

// RetryOptions tunes Retrying.
type RetryOptions struct {
	Attempts            int           // retries per write before dropping an item
	InitialInterval     time.Duration // first backoff delay
	MaxBatchesPerSecond float64       // 0 disables throttling
}

// Retrying retries failed batch writes with exponential backoff. When the
// retries are exhausted it drops the largest item of the batch and tries
// again, until the batch is written or empty. Dropped items are logged by
// identifier.
type Retrying struct {
	inner   batch.Sink
	opts    RetryOptions
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
	dropped atomic.Int64
}

// NewRetrying wraps inner.
func NewRetrying(inner batch.Sink, opts RetryOptions, log *zap.SugaredLogger) *Retrying {
	if opts.Attempts < 0 {
		opts.Attempts = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	r := &Retrying{
		inner:  inner,
		opts:   opts,
		logger: logger.Named(log, "sink.retry"),
	}
	if opts.MaxBatchesPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.MaxBatchesPerSecond), 1)
	}
	return r
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.InitialInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.Attempts)), ctx)
}

// WriteBatch implements batch.Sink.
func (r *Retrying) WriteBatch(ctx context.Context, b batch.Batch) error {
	items := append([]*types.Item(nil), b.Items...)
	var lastErr error

	for len(items) > 0 {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return errors.Wrap(err, "wait for sink rate limit")
			}
		}

		attempt := 0
		current := batch.Batch{Source: b.Source, Seq: b.Seq, Items: items}
		err := backoff.Retry(func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			attempt++
			err := r.inner.WriteBatch(ctx, current)
			if err != nil {
				r.logger.Debugw("Batch write failed",
					logger.FieldFile, b.Source,
					logger.FieldBatchSeq, b.Seq,
					logger.FieldAttempt, attempt,
					logger.FieldError, err)
			}
			return err
		}, r.policy(ctx))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		idx, size := LargestItem(items)
		r.dropped.Add(1)
		r.logger.Warnw("Dropping largest item from rejected batch",
			logger.FieldFile, b.Source,
			logger.FieldBatchSeq, b.Seq,
			logger.FieldItem, items[idx].EntityID,
			logger.FieldSize, size,
			logger.FieldError, err)
		items = append(items[:idx], items[idx+1:]...)
	}

	return errors.WrapSinkError(lastErr, "every item of the batch was rejected")
}

// Dropped is the number of items discarded so far.
func (r *Retrying) Dropped() int {
	return int(r.dropped.Load())
}

// LargestItem returns the index and serialized size of the biggest item.
// Items that cannot be serialized count as the largest.
func LargestItem(items []*types.Item) (int, int) {
	best, bestSize := 0, -1
	for i, it := range items {
		data, err := json.Marshal(it)
		size := len(data)
		if err != nil {
			return i, -1
		}
		if size > bestSize {
			best, bestSize = i, size
		}
	}
	return best, bestSize
}
