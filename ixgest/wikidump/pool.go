package wikidump

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/logger"
)

// RunResult aggregates one pool run over a set of dump files.
type RunResult struct {
	RunID          string        `json:"run_id"`
	Files          []*FileResult `json:"files"`
	FilesProcessed int           `json:"files_processed"`
	FilesFailed    int           `json:"files_failed"`
	ItemsWritten   int           `json:"items_written"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
}

// Pool processes dump files concurrently, one file per worker. A failing
// file is recorded and does not stop the others.
type Pool struct {
	processor *Processor
	workers   int
	logger    *zap.SugaredLogger

	// memStats is swapped in tests
	memStats func() (uint64, uint64, error)
}

// NewPool creates a pool with at most workers files in flight.
func NewPool(processor *Processor, workers int, log *zap.SugaredLogger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		processor: processor,
		workers:   workers,
		logger:    logger.Named(log, "pool"),
		memStats:  memoryStats,
	}
}

// effectiveWorkers lowers the worker count when memory is short.
func (p *Pool) effectiveWorkers() int {
	if p.workers == 1 || p.memStats == nil {
		return p.workers
	}
	total, available, err := p.memStats()
	if err != nil {
		p.logger.Debugw("Memory check unavailable", logger.FieldError, err)
		return p.workers
	}
	n := workersForMemory(p.workers, available)
	if n < p.workers {
		p.logger.Warnw("Reducing workers to fit available memory",
			"requested", p.workers,
			"workers", n,
			"available_mb", available>>20,
			"total_mb", total>>20)
	}
	return n
}

// Run processes files and returns per-file results in input order. The
// error is non-nil only when ctx was canceled.
func (p *Pool) Run(ctx context.Context, files []string) (*RunResult, error) {
	run := &RunResult{
		RunID:     uuid.New().String(),
		Files:     make([]*FileResult, len(files)),
		StartTime: time.Now(),
	}
	workers := p.effectiveWorkers()
	log := p.logger.With(logger.FieldRunID, run.RunID)
	log.Infow("Starting run", logger.FieldCount, len(files), "workers", workers)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			res, err := p.processor.ProcessFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			run.Files[i] = res
			if err != nil {
				run.FilesFailed++
				log.Errorw("File failed",
					logger.FieldFile, path,
					logger.FieldError, err)
			} else {
				run.FilesProcessed++
			}
			if res != nil {
				run.ItemsWritten += res.ItemsWritten
			}
			return nil
		})
	}
	_ = g.Wait()

	run.EndTime = time.Now()
	compact := run.Files[:0]
	for _, f := range run.Files {
		if f != nil {
			compact = append(compact, f)
		}
	}
	run.Files = compact

	log.Infow("Run finished",
		"files_processed", run.FilesProcessed,
		"files_failed", run.FilesFailed,
		"items_written", run.ItemsWritten,
		logger.FieldDurationMS, run.EndTime.Sub(run.StartTime).Milliseconds())

	if err := ctx.Err(); err != nil {
		return run, errors.Wrap(err, "run interrupted")
	}
	return run, nil
}

// HasDumpSuffix reports whether name ends with one of exts.
func HasDumpSuffix(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// ListDumpFiles returns the regular files in dir whose names end with one of
// exts, sorted by name. Hidden files are skipped.
func ListDumpFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read input dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if HasDumpSuffix(e.Name(), exts) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
