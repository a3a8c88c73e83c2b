package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_TrimsLines(t *testing.T) {
	s, err := Read(strings.NewReader("Q1\n  Q42 \r\n\n\tQ64\t\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("Q1"))
	assert.True(t, s.Contains("Q42"))
	assert.True(t, s.Contains("Q64"))
	assert.False(t, s.Contains("Q2"))
	assert.False(t, s.Contains(""))
	assert.False(t, s.AcceptsAll())
}

func TestAcceptAll(t *testing.T) {
	tests := []struct {
		name string
		set  *Set
	}{
		{"constructor", AcceptAll()},
		{"nil set", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.set.Contains("Q1"))
			assert.True(t, tt.set.Contains("anything at all"))
			assert.True(t, tt.set.AcceptsAll())
			assert.Equal(t, 0, tt.set.Len())
		})
	}
}

func TestEmptyListRejectsEverything(t *testing.T) {
	s, err := Read(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.False(t, s.Contains("Q1"))
	assert.False(t, s.AcceptsAll())
}

func TestLoad(t *testing.T) {
	t.Run("empty path accepts all", func(t *testing.T) {
		s, err := Load("")
		require.NoError(t, err)
		assert.True(t, s.AcceptsAll())
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "entities.txt")
		require.NoError(t, os.WriteFile(path, []byte("Q5\nP31\n"), 0644))

		s, err := Load(path)
		require.NoError(t, err)
		assert.True(t, s.Contains("P31"))
		assert.False(t, s.Contains("Q6"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/entities.txt")
		require.Error(t, err)
	})
}

func TestFromIDs(t *testing.T) {
	s := FromIDs(" Q1", "", "Q2")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("Q1"))
}
