package duet

import (
	"fmt"

	"github.com/funvibe/duet/internal/value"
)

// Marshaller converts duet values to Go values.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// FromValue converts a duet value to a Go value:
//
//	null     -> nil
//	bool     -> bool
//	number   -> float64
//	string   -> string
//	array    -> []interface{}
//	map      -> map[string]interface{} keyed by the printed key
//	shared   -> the converted inner value
//	function -> its signature as a string
//
// A shared value that contains itself is an error.
func (m *Marshaller) FromValue(v value.Value) (interface{}, error) {
	return m.fromValue(v, nil)
}

func (m *Marshaller) fromValue(v value.Value, seen map[*value.Shared]bool) (interface{}, error) {
	switch val := v.(type) {
	case nil, value.Null:
		return nil, nil
	case value.Bool:
		return bool(val), nil
	case value.Number:
		return float64(val), nil
	case value.String:
		return string(val), nil
	case *value.Array:
		out := make([]interface{}, len(val.Elements))
		for i, elem := range val.Elements {
			goVal, err := m.fromValue(elem, seen)
			if err != nil {
				return nil, err
			}
			out[i] = goVal
		}
		return out, nil
	case *value.Map:
		out := make(map[string]interface{}, val.Len())
		for _, k := range val.Keys() {
			elem, _, err := val.Get(k)
			if err != nil {
				return nil, err
			}
			goVal, err := m.fromValue(elem, seen)
			if err != nil {
				return nil, err
			}
			out[k.Inspect()] = goVal
		}
		return out, nil
	case *value.Shared:
		if seen[val] {
			return nil, fmt.Errorf("cannot convert cyclic shared value")
		}
		if seen == nil {
			seen = make(map[*value.Shared]bool)
		}
		seen[val] = true
		defer delete(seen, val)
		return m.fromValue(val.Inner, seen)
	case *value.Function:
		return val.Signature(), nil
	}
	return nil, fmt.Errorf("unsupported value type %s", value.TypeName(v))
}
