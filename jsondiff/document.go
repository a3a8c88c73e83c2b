package jsondiff

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/teranos/edithist/errors"
)

// Document is a decoded JSON value.
type Document = interface{}

// EmptyObject is the document every item's first valid revision is diffed
// against.
func EmptyObject() Document {
	return map[string]interface{}{}
}

// Parse decodes a single JSON value, keeping numbers as json.Number.
// Trailing non-whitespace input is an error.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level json value")
	}
	return doc, nil
}

// ParseString is Parse for text taken from a dump element.
func ParseString(s string) (Document, error) {
	return Parse([]byte(s))
}

// Equal reports whether two documents are structurally identical.
func Equal(a, b Document) bool {
	return len(Diff(a, b)) == 0
}
