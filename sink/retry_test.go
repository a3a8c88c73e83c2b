package sink

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/edithist/batch"
	"github.com/teranos/edithist/errors"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/jsondiff"
)

// flakySink fails the first failures writes, then rejects any batch that
// contains an entity listed in poison.
type flakySink struct {
	mu       sync.Mutex
	failures int
	poison   map[string]bool
	calls    int
	written  []batch.Batch
}

func (s *flakySink) WriteBatch(_ context.Context, b batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	for _, it := range b.Items {
		if s.poison[it.EntityID] {
			return errors.Newf("document %s too large", it.EntityID)
		}
	}
	s.written = append(s.written, b)
	return nil
}

func sizedItem(entityID string, size int) *types.Item {
	return &types.Item{
		EntityID:   entityID,
		EntityJSON: map[string]interface{}{"blob": strings.Repeat("x", size)},
		Revisions:  []types.Revision{{ID: 1, Diff: []jsondiff.Operation{}, Valid: true}},
	}
}

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{Attempts: attempts, InitialInterval: time.Millisecond}
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &flakySink{failures: 2}
	r := NewRetrying(inner, fastRetry(3), nil)

	err := r.WriteBatch(context.Background(), batch.Batch{Source: "a.xml", Items: []*types.Item{sizedItem("Q1", 10)}})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 0, r.Dropped())
	require.Len(t, inner.written, 1)
}

func TestRetrying_DropsLargestUntilAccepted(t *testing.T) {
	inner := &flakySink{poison: map[string]bool{"Q2": true}}
	r := NewRetrying(inner, fastRetry(1), nil)

	items := []*types.Item{sizedItem("Q1", 10), sizedItem("Q2", 1000), sizedItem("Q3", 20)}
	err := r.WriteBatch(context.Background(), batch.Batch{Source: "a.xml", Seq: 4, Items: items})
	require.NoError(t, err)

	assert.Equal(t, 1, r.Dropped())
	require.Len(t, inner.written, 1)
	got := inner.written[0]
	assert.Equal(t, 4, got.Seq)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Q1", got.Items[0].EntityID)
	assert.Equal(t, "Q3", got.Items[1].EntityID)

	assert.Len(t, items, 3, "caller's slice is untouched")
}

func TestRetrying_FailsWhenEverythingIsRejected(t *testing.T) {
	inner := &flakySink{poison: map[string]bool{"Q1": true, "Q2": true}}
	r := NewRetrying(inner, fastRetry(0), nil)

	err := r.WriteBatch(context.Background(), batch.Batch{Source: "a.xml", Items: []*types.Item{sizedItem("Q1", 5), sizedItem("Q2", 50)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSinkWrite))
	assert.Equal(t, 2, r.Dropped())
	assert.Equal(t, 2, inner.calls)
}

func TestRetrying_StopsOnCancel(t *testing.T) {
	inner := &flakySink{failures: 100}
	r := NewRetrying(inner, RetryOptions{Attempts: 50, InitialInterval: 50 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.WriteBatch(ctx, batch.Batch{Source: "a.xml", Items: []*types.Item{sizedItem("Q1", 5)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, r.Dropped())
}

func TestRetrying_RateLimit(t *testing.T) {
	inner := &flakySink{}
	r := NewRetrying(inner, RetryOptions{Attempts: 0, MaxBatchesPerSecond: 20}, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.WriteBatch(context.Background(), batch.Batch{Source: "a.xml", Seq: i, Items: []*types.Item{sizedItem("Q1", 1)}}))
	}
	// burst of one, then 50ms per batch
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestLargestItem(t *testing.T) {
	idx, size := LargestItem([]*types.Item{sizedItem("Q1", 1), sizedItem("Q2", 300), sizedItem("Q3", 2)})
	assert.Equal(t, 1, idx)
	assert.Greater(t, size, 300)
}
