package assistants

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes the schema and records the document order of the
// properties object. encoding/json maps drop key order, and dynamic function
// dispatch extracts positional arguments by declaration order, so the order is
// recovered with a token scan.
func (s *ParameterSchema) UnmarshalJSON(data []byte) error {
	type plain ParameterSchema
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = ParameterSchema(p)

	order, err := objectKeyOrder(data, "properties")
	if err != nil {
		return err
	}
	s.PropertyOrder = order
	return nil
}

// MarshalJSON keeps the wire form symmetric with the plain struct encoding.
func (s ParameterSchema) MarshalJSON() ([]byte, error) {
	type plain ParameterSchema
	return json.Marshal(plain(s))
}

// OrderedProperties returns property names in declaration order, falling back
// to the decoded map when no order was recorded (hand-built schemas).
func (s *ParameterSchema) OrderedProperties() []string {
	if s == nil {
		return nil
	}
	if len(s.PropertyOrder) > 0 {
		return s.PropertyOrder
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	return names
}

// objectKeyOrder scans a JSON object literal and returns the key order of the
// nested object stored under field.
func objectKeyOrder(data []byte, field string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parameter schema is not a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		if key != field {
			// Skip the value of an uninteresting field.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		open, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := open.(json.Delim); !ok || delim != '{' {
			// properties holds something other than an object; nothing to order.
			return nil, nil
		}
		var order []string
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			name, _ := nameTok.(string)
			order = append(order, name)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		return order, nil
	}
	return nil, nil
}
