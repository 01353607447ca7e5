package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Flatten reduces an arbitrarily nested output structure to a single string by
// concatenating the string form of every leaf. Sequences flatten in index
// order. json.RawMessage (and []byte) values flatten in document order; for
// decoded Go maps, which have no document order left, keys are visited in
// sorted order so the result stays reproducible. Object keys themselves are
// never part of the output, only leaf values.
func Flatten(value any) string {
	var sb strings.Builder
	flattenValue(&sb, value)
	return sb.String()
}

func flattenValue(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
	case string:
		sb.WriteString(v)
	case json.RawMessage:
		flattenRaw(sb, v)
	case []byte:
		flattenRaw(sb, v)
	case []any:
		for _, item := range v {
			flattenValue(sb, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flattenValue(sb, v[key])
		}
	case fmt.Stringer:
		sb.WriteString(v.String())
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

// flattenRaw walks a JSON document token by token, which preserves the
// document order of object fields that map decoding would lose.
func flattenRaw(sb *strings.Builder, raw []byte) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	flattenNextValue(sb, dec)
}

func flattenNextValue(sb *strings.Builder, dec *json.Decoder) {
	tok, err := dec.Token()
	if err != nil {
		return
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				if _, err := dec.Token(); err != nil { // field name, not a leaf
					return
				}
				flattenNextValue(sb, dec)
			}
			_, _ = dec.Token() // closing brace
		case '[':
			for dec.More() {
				flattenNextValue(sb, dec)
			}
			_, _ = dec.Token() // closing bracket
		}
	case string:
		sb.WriteString(t)
	case json.Number:
		sb.WriteString(t.String())
	case bool:
		fmt.Fprintf(sb, "%v", t)
	case nil:
	}
}
