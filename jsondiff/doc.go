// Package jsondiff computes RFC 6902 JSON patches between two decoded JSON
// documents.
//
// Documents are the Go values produced by decoding JSON with UseNumber:
//
//	map[string]interface{}, []interface{}, string, json.Number, bool, nil
//
// Diff is deterministic. Object members are visited in lexicographic byte
// order of the union of both documents' keys; array elements are visited by
// index. The differ only emits add, remove and replace operations: it never
// detects moves or copies, so a renamed key shows up as a remove followed or
// preceded (by key order) by an add. Arrays are compared position by
// position; surplus elements of the newer array are added in ascending index
// order and surplus elements of the older array are removed in descending
// index order, so the patch applies in sequence.
//
// Numbers compare by their literal text, so 1 and 1.0 differ.
//
// Apply and Verify run patches through github.com/evanphx/json-patch, which
// requires the document root to be an object.
package jsondiff
