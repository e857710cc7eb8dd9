package display

import (
	"encoding/json"
)

// MarshalJSON marshals JSON with pretty formatting
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// MarshalJSONLine marshals JSON on a single line, for one-record-per-line output
func MarshalJSONLine(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
