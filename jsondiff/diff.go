package jsondiff

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Operation kinds (RFC 6902)
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

// Operation is one step of a JSON patch.
type Operation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON writes "value" for every operation that carries one, including
// a JSON null, and leaves it out for remove/move/copy.
func (o Operation) MarshalJSON() ([]byte, error) {
	type plain struct {
		Op   string `json:"op"`
		Path string `json:"path"`
		From string `json:"from,omitempty"`
	}
	type withValue struct {
		Op    string      `json:"op"`
		Path  string      `json:"path"`
		From  string      `json:"from,omitempty"`
		Value interface{} `json:"value"`
	}
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		return json.Marshal(withValue{Op: o.Op, Path: o.Path, From: o.From, Value: o.Value})
	default:
		return json.Marshal(plain{Op: o.Op, Path: o.Path, From: o.From})
	}
}

// Diff returns the operations that turn old into new.
func Diff(old, new Document) []Operation {
	var ops []Operation
	diffValue(&ops, "", old, new)
	return ops
}

func diffValue(ops *[]Operation, path string, a, b interface{}) {
	switch av := a.(type) {
	case map[string]interface{}:
		if bv, ok := b.(map[string]interface{}); ok {
			diffObject(ops, path, av, bv)
			return
		}
	case []interface{}:
		if bv, ok := b.([]interface{}); ok {
			diffArray(ops, path, av, bv)
			return
		}
	default:
		if scalarEqual(a, b) {
			return
		}
	}
	*ops = append(*ops, Operation{Op: OpReplace, Path: path, Value: b})
}

func diffObject(ops *[]Operation, path string, a, b map[string]interface{}) {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		p := path + "/" + EscapePointer(k)
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && !inB:
			*ops = append(*ops, Operation{Op: OpRemove, Path: p})
		case !inA && inB:
			*ops = append(*ops, Operation{Op: OpAdd, Path: p, Value: bv})
		default:
			diffValue(ops, p, av, bv)
		}
	}
}

func diffArray(ops *[]Operation, path string, a, b []interface{}) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		diffValue(ops, path+"/"+strconv.Itoa(i), a[i], b[i])
	}
	for i := n; i < len(b); i++ {
		*ops = append(*ops, Operation{Op: OpAdd, Path: path + "/" + strconv.Itoa(i), Value: b[i]})
	}
	for i := len(a) - 1; i >= n; i-- {
		*ops = append(*ops, Operation{Op: OpRemove, Path: path + "/" + strconv.Itoa(i)})
	}
}

func scalarEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	default:
		return false
	}
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// EscapePointer escapes one reference token of a JSON pointer (RFC 6901).
func EscapePointer(token string) string {
	return pointerEscaper.Replace(token)
}
