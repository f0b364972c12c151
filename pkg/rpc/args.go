package rpc

import (
	"encoding/json"
	"fmt"
)

// Args holds the bound, coerced arguments of one call, in declared parameter order.
// Values use the native representation of NormalizeNative; a nil value is the null
// marker of an omitted OptionalNullable parameter.
//
// The typed accessors panic when name is not a declared parameter of the matching
// type; that is a facade programming error and surfaces as an invocation failure.
type Args struct {
	spec   *ProcedureSpec
	values []interface{}
}

// NewArgs wraps values bound for spec. len(values) must equal len(spec.Params).
func NewArgs(spec *ProcedureSpec, values []interface{}) *Args {
	return &Args{spec: spec, values: values}
}

// Len returns the number of bound parameters.
func (a *Args) Len() int {
	return len(a.values)
}

// Values returns the bound values in declared order.
func (a *Args) Values() []interface{} {
	out := make([]interface{}, len(a.values))
	copy(out, a.values)
	return out
}

// Value returns the bound value of name.
func (a *Args) Value(name string) interface{} {
	_, i, ok := a.spec.Param(name)
	if !ok {
		panic(fmt.Sprintf("rpc: %s has no parameter %q", a.spec.Name, name))
	}
	return a.values[i]
}

// IsNull reports whether name was bound to the null marker.
func (a *Args) IsNull(name string) bool {
	return a.Value(name) == nil
}

func (a *Args) typed(name string, t Type) interface{} {
	ps, i, ok := a.spec.Param(name)
	if !ok {
		panic(fmt.Sprintf("rpc: %s has no parameter %q", a.spec.Name, name))
	}
	if ps.Type != t {
		panic(fmt.Sprintf("rpc: parameter %q of %s is %s, not %s", name, a.spec.Name, ps.Type, t))
	}
	return a.values[i]
}

// Int returns an Integer argument; null reads as 0.
func (a *Args) Int(name string) int {
	v, _ := a.OptInt(name)
	return v
}

// OptInt returns an Integer argument and false when it is null.
func (a *Args) OptInt(name string) (int, bool) {
	v, ok := a.typed(name, Integer).(int)
	return v, ok
}

// Bool returns a Boolean argument; null reads as false.
func (a *Args) Bool(name string) bool {
	v, _ := a.OptBool(name)
	return v
}

// OptBool returns a Boolean argument and false when it is null.
func (a *Args) OptBool(name string) (bool, bool) {
	v, ok := a.typed(name, Boolean).(bool)
	return v, ok
}

// String returns a String argument; null reads as "".
func (a *Args) String(name string) string {
	v, _ := a.OptString(name)
	return v
}

// OptString returns a String argument and false when it is null.
func (a *Args) OptString(name string) (string, bool) {
	v, ok := a.typed(name, String).(string)
	return v, ok
}

// Float returns a Double argument; null reads as 0.
func (a *Args) Float(name string) float64 {
	v, _ := a.OptFloat(name)
	return v
}

// OptFloat returns a Double argument and false when it is null.
func (a *Args) OptFloat(name string) (float64, bool) {
	v, ok := a.typed(name, Double).(float64)
	return v, ok
}

// Object returns an Object argument as raw JSON; null reads as nil.
func (a *Args) Object(name string) json.RawMessage {
	v, _ := a.typed(name, Object).(json.RawMessage)
	return v
}

// DecodeObject unmarshals an Object argument into target. It reports false when null.
func (a *Args) DecodeObject(name string, target interface{}) (bool, error) {
	raw := a.Object(name)
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, target)
}
