package wikidump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/sink"
	"github.com/teranos/edithist/staging"
)

type memorySink struct {
	mu      sync.Mutex
	batches []batch.Batch
}

func (s *memorySink) WriteBatch(_ context.Context, b batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *memorySink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, b := range s.batches {
		out = append(out, len(b.Items))
	}
	return out
}

func manyPages(n int) string {
	var pages []string
	for i := 1; i <= n; i++ {
		pages = append(pages, page(uint64(i), fmt.Sprintf("Q%d", i), jsonRev(uint64(1000+i), 0, fmt.Sprintf(`{"n":%d}`, i))))
	}
	return dump(pages...)
}

func procOptions(bulk int) Options {
	return Options{BulkSize: bulk, PayloadFormat: "application/json", KeepInvalidRevisions: true}
}

func TestProcessor_ProcessReaderBatches(t *testing.T) {
	s := &memorySink{}
	p := NewProcessor(procOptions(2), s, nil, zaptest.NewLogger(t).Sugar())

	res, err := p.ProcessReader(context.Background(), "inline.xml", strings.NewReader(manyPages(7)))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, []int{3, 3, 1}, s.sizes())
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 7, res.ItemsWritten)
	assert.Equal(t, 7, res.Stats.ItemsEmitted)
	assert.False(t, res.EndTime.Before(res.StartTime))
	for i, b := range s.batches {
		assert.Equal(t, i, b.Seq)
		assert.Equal(t, "inline.xml", b.Source)
	}
}

func TestProcessor_StreamErrorAbandonsFile(t *testing.T) {
	s := &memorySink{}
	p := NewProcessor(procOptions(0), s, nil, nil)

	full := manyPages(3)
	cut := strings.Index(full, "<title>Q3</title>")
	res, err := p.ProcessReader(context.Background(), "broken.xml", strings.NewReader(full[:cut]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStreamFormat))
	assert.False(t, res.Success)

	// items flushed before the break stay written
	assert.Equal(t, []int{1, 1}, s.sizes())
	assert.Equal(t, 2, res.ItemsWritten)
}

func TestProcessor_CanceledContext(t *testing.T) {
	p := NewProcessor(procOptions(10), &memorySink{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessReader(ctx, "inline.xml", strings.NewReader(manyPages(2)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_ProcessFileWritesOutputFiles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	path := filepath.Join(in, "wikidata-p1.xml")
	require.NoError(t, os.WriteFile(path, []byte(manyPages(5)), 0644))

	fs, err := sink.NewFileSink(out, nil)
	require.NoError(t, err)
	p := NewProcessor(procOptions(3), fs, nil, nil)

	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)

	for _, name := range []string{"wikidata-p1_0.json", "wikidata-p1_1.json"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestProcessor_ProcessFileStagesArchives(t *testing.T) {
	in := t.TempDir()
	path := filepath.Join(in, "dump.xml.fake")
	require.NoError(t, os.WriteFile(path, []byte(manyPages(2)), 0644))

	stager, err := staging.New(map[string]string{"fake": "cat"}, t.TempDir(), nil)
	require.NoError(t, err)

	s := &memorySink{}
	p := NewProcessor(procOptions(100), s, stager, nil)
	res, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ItemsWritten)
	require.Len(t, s.batches, 1)
	assert.Equal(t, path, s.batches[0].Source, "batches are named after the archive, not the staged file")
}

func TestProcessor_MissingFile(t *testing.T) {
	p := NewProcessor(procOptions(1), &memorySink{}, nil, nil)
	res, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "nope.xml"))
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestPool_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := manyPages(3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte(good), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte(good[:len(good)/2]), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.xml"), []byte(good), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	files, err := ListDumpFiles(dir, []string{".xml"})
	require.NoError(t, err)
	require.Len(t, files, 3)

	s := &memorySink{}
	pool := NewPool(NewProcessor(procOptions(100), s, nil, nil), 3, nil)
	pool.memStats = func() (uint64, uint64, error) { return 64 << 30, 32 << 30, nil }

	run, err := pool.Run(context.Background(), files)
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 2, run.FilesProcessed)
	assert.Equal(t, 1, run.FilesFailed)
	require.Len(t, run.Files, 3)
	assert.Equal(t, files[0], run.Files[0].File)
	assert.True(t, run.Files[0].Success)
	assert.False(t, run.Files[1].Success)
	assert.True(t, run.Files[2].Success)
	assert.GreaterOrEqual(t, run.ItemsWritten, 6)
}

func TestPool_CanceledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewPool(NewProcessor(procOptions(1), &memorySink{}, nil, nil), 2, nil)
	pool.memStats = nil
	run, err := pool.Run(ctx, []string{"a.xml", "b.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, run.Files)
}

func TestPool_EffectiveWorkers(t *testing.T) {
	pool := NewPool(nil, 8, nil)

	pool.memStats = func() (uint64, uint64, error) { return 4 << 30, 1 << 30, nil }
	assert.Equal(t, 2, pool.effectiveWorkers())

	pool.memStats = func() (uint64, uint64, error) { return 0, 0, errors.New("unsupported") }
	assert.Equal(t, 8, pool.effectiveWorkers())
}

func TestWorkersForMemory(t *testing.T) {
	assert.Equal(t, 1, workersForMemory(4, 0))
	assert.Equal(t, 4, workersForMemory(4, 8<<30))
	assert.Equal(t, 3, workersForMemory(4, 3*memoryPerWorker+1))
}

func TestHasDumpSuffix(t *testing.T) {
	exts := []string{".xml", ".bz2"}
	assert.True(t, HasDumpSuffix("a.xml", exts))
	assert.True(t, HasDumpSuffix("A.XML.BZ2", exts))
	assert.False(t, HasDumpSuffix("a.json", exts))
}

func TestWatcher_ReportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, []string{".xml"}, 50*time.Millisecond, nil)
	w.MarkSeen(filepath.Join(dir, "old.xml"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string) { got <- path })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.xml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.xml"), []byte("<mediawiki/>"), 0644))

	select {
	case path := <-got:
		assert.Equal(t, filepath.Join(dir, "new.xml"), path)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report new.xml")
	}

	select {
	case path := <-got:
		t.Fatalf("unexpected second report: %s", path)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_DeliverAfterRunReturns(t *testing.T) {
	w := NewWatcher(t.TempDir(), []string{".xml"}, 10*time.Millisecond, nil)
	w.ready = make(chan string) // nobody reads once Run is gone

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx, func(context.Context, string) {}))

	delivered := make(chan bool, 1)
	go func() { delivered <- w.deliver("late.xml") }()

	select {
	case ok := <-delivered:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("settle callback blocked after Run returned")
	}
}
