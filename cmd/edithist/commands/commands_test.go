package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/edithist/am"
)

const testDump = `<mediawiki>
  <page>
    <title>Q1</title>
    <id>1</id>
    <revision><id>10</id><format>application/json</format><text>{"a":1}</text></revision>
    <revision><id>11</id><parentid>10</parentid><format>application/json</format><text>{"a":2}</text></revision>
  </page>
  <page>
    <title>Q2</title>
    <id>2</id>
    <revision><id>20</id><format>application/json</format><text>{}</text></revision>
  </page>
  <page>
    <title>Q3</title>
    <id>3</id>
    <revision><id>30</id><format>text/x-wiki</format><text>hello</text></revision>
  </page>
  <page>
    <title>Q4</title>
    <id>4</id>
    <revision><id>40</id><format>application/json</format><text>{"b":[1]}</text></revision>
  </page>
</mediawiki>
`

func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "edithist", SilenceUsage: true}
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(IxCmd)
	root.AddCommand(AmCmd)
	return root
}

func useEmptyConfig(t *testing.T) {
	t.Helper()
	t.Cleanup(am.Reset)
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \""+filepath.Join(t.TempDir(), "test.db")+"\"\n"), 0644))
	require.NoError(t, am.UseConfigFile(path))
}

func TestIxDiffThenIndex(t *testing.T) {
	useEmptyConfig(t)

	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "history.xml"), []byte(testDump), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "README"), []byte("not a dump"), 0644))

	root := newRoot()
	root.SetArgs([]string{"ix", "diff", in, out, "--json", "--bulk-size", "1"})
	require.NoError(t, root.Execute())

	// Q3 has no diffable revision; three items at bulk size 1 flush as 2 + 1
	first, err := os.ReadFile(filepath.Join(out, "history_0.json"))
	require.NoError(t, err)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(first, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Q1", items[0]["entity_id"])
	assert.Equal(t, "Q2", items[1]["entity_id"])

	_, err = os.Stat(filepath.Join(out, "history_1.json"))
	require.NoError(t, err)

	root = newRoot()
	root.SetArgs([]string{"ix", "index", out, "--json"})
	require.NoError(t, root.Execute())

	database, err := openDatabase("")
	require.NoError(t, err)
	defer database.Close()

	var entities, revisions int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&entities))
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM revisions`).Scan(&revisions))
	assert.Equal(t, 3, entities)
	assert.Equal(t, 4, revisions)

	var runs int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM runs WHERE command = 'ix index'`).Scan(&runs))
	assert.Equal(t, 1, runs)
}

func TestIxDiff_RejectsMissingInput(t *testing.T) {
	useEmptyConfig(t)

	root := newRoot()
	root.SetArgs([]string{"ix", "diff", filepath.Join(t.TempDir(), "missing"), t.TempDir()})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dump.input_dir")
}

func TestAmGet(t *testing.T) {
	useEmptyConfig(t)

	root := newRoot()
	root.SetArgs([]string{"am", "get", "no.such.key"})
	assert.Error(t, root.Execute())
}
