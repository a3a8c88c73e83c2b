package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/edithist/batch"
	qntxtest "github.com/teranos/edithist/internal/testing"
	"github.com/teranos/edithist/ixgest/types"
	"github.com/teranos/edithist/jsondiff"
	"github.com/teranos/edithist/sink"
)

func writeDiffs(t *testing.T, dir string, seq int, entityIDs ...string) {
	t.Helper()
	var items []*types.Item
	for i, id := range entityIDs {
		doc, err := jsondiff.ParseString(`{"id":"` + id + `","big":12345678901234567890}`)
		require.NoError(t, err)
		items = append(items, &types.Item{
			ID:         uint64(seq*100 + i + 1),
			EntityID:   id,
			EntityJSON: doc,
			Revisions: []types.Revision{
				{ID: uint64(seq*1000 + i*10 + 1), Diff: jsondiff.Diff(jsondiff.EmptyObject(), doc), Valid: true},
				{ID: uint64(seq*1000 + i*10 + 2), ParentID: uint64(seq*1000 + i*10 + 1)},
			},
		})
	}
	fs, err := sink.NewFileSink(dir, nil)
	require.NoError(t, err)
	require.NoError(t, fs.WriteBatch(context.Background(), batch.Batch{Source: "dump.xml", Seq: seq, Items: items}))
}

type countingSink struct {
	sizes []int
}

func (s *countingSink) WriteBatch(_ context.Context, b batch.Batch) error {
	s.sizes = append(s.sizes, len(b.Items))
	return nil
}

func TestReadDiffFile(t *testing.T) {
	dir := t.TempDir()
	writeDiffs(t, dir, 0, "Q1", "Q2")

	items, err := ReadDiffFile(filepath.Join(dir, "dump_0.json"))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Q1", items[0].EntityID)
	require.Len(t, items[0].Revisions, 2)
	assert.True(t, items[0].Revisions[0].Valid)
	assert.False(t, items[0].Revisions[1].Valid)

	doc := items[0].EntityJSON.(map[string]interface{})
	assert.Equal(t, "12345678901234567890", doc["big"].(interface{ String() string }).String())
}

func TestIndexer_BulksByFileCount(t *testing.T) {
	dir := t.TempDir()
	for seq := 0; seq < 5; seq++ {
		writeDiffs(t, dir, seq, "Qa", "Qb")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0644))

	s := &countingSink{}
	res, err := New(s, 1, nil).IndexDir(context.Background(), dir)
	require.NoError(t, err)

	// two files per bulk, then the remainder
	assert.Equal(t, []int{4, 4, 2}, s.sizes)
	assert.Equal(t, 5, res.Files)
	assert.Equal(t, 10, res.Items)
	assert.Equal(t, 3, res.Batches)
	assert.True(t, res.Success)
}

func TestIndexer_IntoSQLStore(t *testing.T) {
	dir := t.TempDir()
	writeDiffs(t, dir, 0, "Q1", "Q2")
	writeDiffs(t, dir, 1, "Q3")

	db := qntxtest.CreateTestDB(t)
	store := sink.NewSQLStore(db, sink.Classes{"Q1": "Q5"}, nil)

	res, err := New(store, 100, nil).IndexDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Items)

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sink.Counts{Entities: 3, Revisions: 6, RevisionOps: 6}, counts)

	var entityJSON string
	require.NoError(t, db.QueryRow(`SELECT entity_json FROM entities WHERE entity_id = 'Q1'`).Scan(&entityJSON))
	assert.Contains(t, entityJSON, "12345678901234567890")
}

func TestIndexer_BadFileStops(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_0.json"), []byte("[{"), 0644))

	res, err := New(&countingSink{}, 1, nil).IndexDir(context.Background(), dir)
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestIndexer_MissingDir(t *testing.T) {
	_, err := New(&countingSink{}, 1, nil).IndexDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
