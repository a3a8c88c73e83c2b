package jsondiff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Document {
	t.Helper()
	doc, err := ParseString(s)
	require.NoError(t, err, "parse %s", s)
	return doc
}

var sampleDocs = []string{
	`{}`,
	`{"a":1}`,
	`{"a":1,"b":2}`,
	`{"a":{"b":[1,2,3]},"c":"none"}`,
	`{"id":"Q42","labels":{"en":{"language":"en","value":"Douglas Adams"}},"claims":{"P31":[{"mainsnak":{"datavalue":{"value":{"id":"Q5"}}}}]}}`,
	`{"a/b":{"~c":true},"list":[[],{},"x",1.5,false]}`,
	`{"unicode":"Zürich ✓","escaped":"<tag> & \"quotes\""}`,
	`[1,{"a":2},[]]`,
	`"plain"`,
	`42`,
	`null`,
}

func TestDiff_SelfIsEmpty(t *testing.T) {
	for _, s := range sampleDocs {
		t.Run(s, func(t *testing.T) {
			d := mustParse(t, s)
			assert.Empty(t, Diff(d, d))
			assert.True(t, Equal(d, d))
		})
	}
}

func TestDiff_FromEmptyRoundTrip(t *testing.T) {
	for _, s := range sampleDocs {
		t.Run(s, func(t *testing.T) {
			d := mustParse(t, s)
			ops := Diff(EmptyObject(), d)

			got, err := Apply(EmptyObject(), ops)
			require.NoError(t, err)
			assert.True(t, Equal(d, got), "applying diff to {} should give back %s", s)
		})
	}
}

func TestDiff_PairwiseRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{`{"a":1}`, `{"a":2}`},
		{`{"a":1}`, `{"b":1}`},
		{`{"a":[1,2,3]}`, `{"a":[1,2,3,4,5]}`},
		{`{"a":[1,2,3,4,5]}`, `{"a":[1]}`},
		{`{"a":[1,2,3]}`, `{"a":[3,2,1]}`},
		{`{"a":[1,2,3]}`, `{"a":[]}`},
		{`{"a":{"x":1}}`, `{"a":[1]}`},
		{`{"a":"1"}`, `{"a":1}`},
		{`{"a":true}`, `{"a":false}`},
		{`{"a":{"b":{"c":{"d":1}}}}`, `{"a":{"b":{"c":{"d":2,"e":[null]}}}}`},
		{`{"a/b":1,"m~n":2}`, `{"a/b":3}`},
		{`{"list":[{"k":1},{"k":2}]}`, `{"list":[{"k":1,"j":0},{"k":3},{"k":4}]}`},
		{`[1]`, `{"a":1}`},
		{`{"a":1}`, `[1,2]`},
		{`[1,2]`, `[2]`},
	}

	for _, p := range pairs {
		t.Run(p[0]+" -> "+p[1], func(t *testing.T) {
			a := mustParse(t, p[0])
			b := mustParse(t, p[1])

			ops := Diff(a, b)
			require.NotEmpty(t, ops)
			require.NoError(t, Verify(a, b, ops))
		})
	}
}

func TestDiff_AddSingleKey(t *testing.T) {
	ops := Diff(mustParse(t, `{"a":1}`), mustParse(t, `{"a":1,"b":2}`))

	require.Len(t, ops, 1)
	assert.Equal(t, OpAdd, ops[0].Op)
	assert.Equal(t, "/b", ops[0].Path)
	assert.Equal(t, json.Number("2"), ops[0].Value)
}

func TestDiff_DeterministicOrder(t *testing.T) {
	a := mustParse(t, `{"z":1,"b":[1,2,3],"m":{"q":1,"p":2},"gone":true}`)
	b := mustParse(t, `{"a":0,"z":2,"b":[1],"m":{"p":3,"q":1}}`)

	expected := []Operation{
		{Op: OpAdd, Path: "/a", Value: json.Number("0")},
		{Op: OpRemove, Path: "/b/2"},
		{Op: OpRemove, Path: "/b/1"},
		{Op: OpRemove, Path: "/gone"},
		{Op: OpReplace, Path: "/m/p", Value: json.Number("3")},
		{Op: OpReplace, Path: "/z", Value: json.Number("2")},
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, expected, Diff(a, b))
	}
}

func TestDiff_ArrayGrowthAppendsInOrder(t *testing.T) {
	ops := Diff(mustParse(t, `{"a":[1]}`), mustParse(t, `{"a":[1,2,3]}`))
	assert.Equal(t, []Operation{
		{Op: OpAdd, Path: "/a/1", Value: json.Number("2")},
		{Op: OpAdd, Path: "/a/2", Value: json.Number("3")},
	}, ops)
}

func TestDiff_TypeChangeReplacesWholeValue(t *testing.T) {
	ops := Diff(mustParse(t, `{"a":{"x":1}}`), mustParse(t, `{"a":"x"}`))
	assert.Equal(t, []Operation{{Op: OpReplace, Path: "/a", Value: "x"}}, ops)
}

func TestDiff_Nulls(t *testing.T) {
	assert.Empty(t, Diff(mustParse(t, `{"a":null}`), mustParse(t, `{"a":null}`)))
	assert.Equal(t, []Operation{{Op: OpReplace, Path: "/a", Value: false}},
		Diff(mustParse(t, `{"a":null}`), mustParse(t, `{"a":false}`)))
	assert.Equal(t, []Operation{{Op: OpAdd, Path: "/b", Value: nil}},
		Diff(mustParse(t, `{}`), mustParse(t, `{"b":null}`)))
}

func TestEscapePointer(t *testing.T) {
	assert.Equal(t, "a~1b", EscapePointer("a/b"))
	assert.Equal(t, "m~0n", EscapePointer("m~n"))
	assert.Equal(t, "~01", EscapePointer("~1"))
	assert.Equal(t, "plain", EscapePointer("plain"))
}

func TestOperation_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"add with null", Operation{Op: OpAdd, Path: "/a"}, `{"op":"add","path":"/a","value":null}`},
		{"replace", Operation{Op: OpReplace, Path: "/a", Value: json.Number("1")}, `{"op":"replace","path":"/a","value":1}`},
		{"remove has no value", Operation{Op: OpRemove, Path: "/a"}, `{"op":"remove","path":"/a"}`},
		{"move keeps from", Operation{Op: OpMove, Path: "/b", From: "/a"}, `{"op":"move","path":"/b","from":"/a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.op)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestParse(t *testing.T) {
	_, err := ParseString(`{"a":`)
	assert.Error(t, err)

	_, err = ParseString(`{"a":1} {"b":2}`)
	assert.Error(t, err)

	doc, err := ParseString("  {\"n\": 12345678901234567890}\n")
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), doc.(map[string]interface{})["n"])
}

func TestVerify_DetectsWrongPatch(t *testing.T) {
	a := mustParse(t, `{"a":1}`)
	b := mustParse(t, `{"a":2}`)
	wrong := []Operation{{Op: OpReplace, Path: "/a", Value: json.Number("3")}}

	assert.Error(t, Verify(a, b, wrong))
}

func TestApply_DocumentRoot(t *testing.T) {
	got, err := Apply(EmptyObject(), []Operation{
		{Op: OpReplace, Path: "", Value: []interface{}{json.Number("1")}},
		{Op: OpAdd, Path: "/1", Value: "x"},
	})
	require.NoError(t, err)
	assert.True(t, Equal(mustParse(t, `[1,"x"]`), got))

	_, err = Apply(mustParse(t, `[1]`), []Operation{{Op: OpTest, Path: "", Value: mustParse(t, `[2]`)}})
	assert.Error(t, err)

	_, err = Apply(mustParse(t, `[1]`), []Operation{{Op: OpRemove, Path: ""}})
	assert.Error(t, err)
}
