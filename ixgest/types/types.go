// Package types holds the edit-history model shared by the dump parser, the
// batch writer and the sinks.
package types

import (
	"github.com/teranos/edithist/jsondiff"
)

// Item is one tracked entity page with its revision history.
type Item struct {
	ID         uint64            `json:"id"`
	EntityID   string            `json:"entity_id"`
	EntityJSON jsondiff.Document `json:"entity_json"`
	Revisions  []Revision        `json:"revisions"`
}

// Revision is one historical version of an item. Diff is nil when the
// revision was not diffed (wrong declared format or unparsable payload) and
// empty when the payload did not change.
type Revision struct {
	ID        uint64               `json:"id"`
	ParentID  uint64               `json:"parent_id"`
	Timestamp string               `json:"timestamp"`
	Username  string               `json:"username"`
	Comment   string               `json:"comment"`
	Diff      []jsondiff.Operation `json:"entity_diff"`

	// Valid is set when the revision's payload was parsed and diffed.
	Valid bool `json:"-"`
}

// ValidRevisions counts revisions that carry a diff.
func (it *Item) ValidRevisions() int {
	n := 0
	for i := range it.Revisions {
		if it.Revisions[i].Valid {
			n++
		}
	}
	return n
}
