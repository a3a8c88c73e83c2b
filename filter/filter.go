// Package filter decides which dump items are tracked.
package filter

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/teranos/edithist/errors"
)

// Set is a membership filter over item identifiers. A nil *Set, or one built
// without a list, accepts every identifier.
type Set struct {
	ids map[string]struct{}
}

// AcceptAll returns a filter that keeps every item.
func AcceptAll() *Set {
	return &Set{}
}

// FromIDs builds a filter from an in-memory list of identifiers.
func FromIDs(ids ...string) *Set {
	s := &Set{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Read builds a filter from a newline-delimited list. Each line is trimmed;
// blank lines are ignored.
func Read(r io.Reader) (*Set, error) {
	s := &Set{ids: make(map[string]struct{})}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			s.ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read entities list")
	}
	return s, nil
}

// Load reads the list at path. An empty path yields the accept-all filter.
func Load(path string) (*Set, error) {
	if path == "" {
		return AcceptAll(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open entities file %s", path)
	}
	defer f.Close()
	return Read(f)
}

// Contains reports whether the item with this identifier should be processed.
func (s *Set) Contains(id string) bool {
	if s == nil || s.ids == nil {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Len is the number of identifiers in the list, 0 for accept-all.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// AcceptsAll reports whether the filter is in pass-through mode.
func (s *Set) AcceptsAll() bool {
	return s == nil || s.ids == nil
}
