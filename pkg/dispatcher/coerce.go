package dispatcher

import (
	"encoding/json"
	"math"

	"github.com/morezero/device-facades/pkg/rpc"
)

// coerce converts a decoded wire value to the native form of the parameter type.
// Numbers arrive as json.Number.
func coerce(ps rpc.ParameterSpec, v interface{}) (interface{}, *rpc.Error) {
	switch ps.Type {
	case rpc.Integer:
		n, ok := v.(json.Number)
		if !ok {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
		}
		if i, err := n.Int64(); err == nil {
			if i < math.MinInt || i > math.MaxInt {
				return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, "out-of-range integer")
			}
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, "out-of-range number")
		}
		if f != math.Trunc(f) {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, "double")
		}
		if f < math.MinInt || f >= math.MaxInt {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, "out-of-range integer")
		}
		return int(f), nil

	case rpc.Double:
		n, ok := v.(json.Number)
		if !ok {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, "out-of-range number")
		}
		return f, nil

	case rpc.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
		}
		return b, nil

	case rpc.String:
		s, ok := v.(string)
		if !ok {
			return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
		}
		return s, nil

	case rpc.Object:
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
			}
			return json.RawMessage(raw), nil
		}
		return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
	}

	return nil, rpc.ErrTypeMismatch(ps.Name, ps.Type, wireTypeName(v))
}

// wireTypeName names the JSON type of a decoded wire value.
func wireTypeName(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "double"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	}
	return "unknown"
}
