package jsondiff

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/teranos/edithist/errors"
)

// Apply runs ops against doc and returns the patched document.
// Operations on the whole document (path "") are applied here; json-patch
// only handles paths below the root.
func Apply(doc Document, ops []Operation) (Document, error) {
	start := 0
	for i, op := range ops {
		if op.Path != "" {
			continue
		}
		var err error
		if doc, err = applyPatch(doc, ops[start:i]); err != nil {
			return nil, err
		}
		if doc, err = applyRoot(doc, op); err != nil {
			return nil, err
		}
		start = i + 1
	}
	return applyPatch(doc, ops[start:])
}

func applyRoot(doc Document, op Operation) (Document, error) {
	switch op.Op {
	case OpAdd, OpReplace:
		// round trip so the result shares nothing with op.Value
		raw, err := json.Marshal(op.Value)
		if err != nil {
			return nil, errors.Wrap(err, "marshal root value")
		}
		return Parse(raw)
	case OpTest:
		if !Equal(doc, op.Value) {
			return nil, errors.New("test failed at document root")
		}
		return doc, nil
	default:
		return nil, errors.Newf("%s is not supported at the document root", op.Op)
	}
}

func applyPatch(doc Document, ops []Operation) (Document, error) {
	if len(ops) == 0 {
		return doc, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshal document")
	}
	rawOps, err := json.Marshal(ops)
	if err != nil {
		return nil, errors.Wrap(err, "marshal patch")
	}
	patch, err := jsonpatch.DecodePatch(rawOps)
	if err != nil {
		return nil, errors.Wrap(err, "decode patch")
	}
	out, err := patch.Apply(raw)
	if err != nil {
		return nil, errors.Wrap(err, "apply patch")
	}
	return Parse(out)
}

// Verify checks that ops turn prev into next.
func Verify(prev, next Document, ops []Operation) error {
	got, err := Apply(prev, ops)
	if err != nil {
		return err
	}
	if rest := Diff(got, next); len(rest) != 0 {
		return errors.Newf("patch does not reproduce document: %d operations remain, first at %q",
			len(rest), rest[0].Path)
	}
	return nil
}
