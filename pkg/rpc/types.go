// Package rpc describes remotely callable procedures: their parameters, return
// types, owning receivers and bound call targets. Descriptors are built once by
// facade packages and are immutable after the registry is frozen.
package rpc

import (
	"encoding/json"
	"fmt"
	"math"
)

// Type is the declared type of a parameter or a procedure result.
type Type int

// Declared types.
const (
	Void Type = iota
	Integer
	Boolean
	String
	Double
	Object
)

var typeNames = map[Type]string{
	Void:    "void",
	Integer: "integer",
	Boolean: "boolean",
	String:  "string",
	Double:  "double",
	Object:  "object",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalText renders the type by name in introspection output.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a type name.
func (t *Type) UnmarshalText(b []byte) error {
	for k, name := range typeNames {
		if name == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("rpc: unknown type %q", string(b))
}

// Kind says how a parameter behaves when the caller supplies no value.
type Kind int

// Parameter kinds.
const (
	// Required parameters must be supplied.
	Required Kind = iota
	// OptionalWithDefault parameters receive their Default when omitted.
	OptionalWithDefault
	// OptionalNullable parameters receive null when omitted.
	OptionalNullable
)

var kindNames = map[Kind]string{
	Required:            "required",
	OptionalWithDefault: "default",
	OptionalNullable:    "nullable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name in introspection output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for v, name := range kindNames {
		if name == string(b) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("rpc: unknown parameter kind %q", string(b))
}

// NormalizeNative converts a Go value to the canonical native representation of t:
// int for Integer, bool for Boolean, string for String, float64 for Double and
// json.RawMessage for Object.
func NormalizeNative(t Type, v interface{}) (interface{}, error) {
	switch t {
	case Integer:
		switch n := v.(type) {
		case int:
			return n, nil
		case int8:
			return int(n), nil
		case int16:
			return int(n), nil
		case int32:
			return int(n), nil
		case int64:
			if n < math.MinInt || n > math.MaxInt {
				return nil, fmt.Errorf("integer %d overflows int", n)
			}
			return int(n), nil
		case uint8:
			return int(n), nil
		case uint16:
			return int(n), nil
		case uint32:
			return int(n), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Double:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case Object:
		switch o := v.(type) {
		case json.RawMessage:
			return o, nil
		case []byte:
			return json.RawMessage(o), nil
		default:
			raw, err := json.Marshal(o)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(raw), nil
		}
	}
	return nil, fmt.Errorf("%T is not a valid %s value", v, t)
}
