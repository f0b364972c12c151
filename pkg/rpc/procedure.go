package rpc

import (
	"context"
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

// DefaultVersion is the signature version of a procedure that does not declare one.
const DefaultVersion = "1.0.0"

// ParameterSpec describes one formal parameter of a procedure.
type ParameterSpec struct {
	Name        string      `json:"name"`
	Kind        Kind        `json:"kind"`
	Type        Type        `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Param declares a required parameter.
func Param(name string, t Type, description string) ParameterSpec {
	return ParameterSpec{Name: name, Kind: Required, Type: t, Description: description}
}

// DefaultParam declares a parameter that receives def when omitted.
func DefaultParam(name string, t Type, def interface{}, description string) ParameterSpec {
	return ParameterSpec{Name: name, Kind: OptionalWithDefault, Type: t, Default: def, Description: description}
}

// NullableParam declares a parameter that receives null when omitted.
func NullableParam(name string, t Type, description string) ParameterSpec {
	return ParameterSpec{Name: name, Kind: OptionalNullable, Type: t, Description: description}
}

func (p *ParameterSpec) validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name is empty")
	}
	if p.Type == Void || typeNames[p.Type] == "" {
		return fmt.Errorf("parameter %q has invalid type %s", p.Name, p.Type)
	}
	switch p.Kind {
	case Required, OptionalNullable:
		if p.Default != nil {
			return fmt.Errorf("%s parameter %q must not carry a default", p.Kind, p.Name)
		}
	case OptionalWithDefault:
		if p.Default == nil {
			return fmt.Errorf("parameter %q is missing its default", p.Name)
		}
		native, err := NormalizeNative(p.Type, p.Default)
		if err != nil {
			return fmt.Errorf("default of parameter %q: %v", p.Name, err)
		}
		p.Default = native
	default:
		return fmt.Errorf("parameter %q has invalid kind %s", p.Name, p.Kind)
	}
	return nil
}

// InvokeFunc is the bound call target of a procedure.
type InvokeFunc func(ctx context.Context, rcv Receiver, args *Args) (interface{}, error)

// ProcedureSpec describes one remotely callable operation.
type ProcedureSpec struct {
	Name               string
	Description        string
	Params             []ParameterSpec
	Returns            Type
	ReturnsDescription string
	// Version is the semver of the procedure signature; callers may pin a range with name@range.
	Version string
	// Receiver names the receiver type owning the procedure.
	Receiver string
	Invoke   InvokeFunc

	index map[string]int
}

// Param returns the named parameter and its position.
func (p *ProcedureSpec) Param(name string) (ParameterSpec, int, bool) {
	if p.index != nil {
		i, ok := p.index[name]
		if !ok {
			return ParameterSpec{}, -1, false
		}
		return p.Params[i], i, true
	}
	for i, ps := range p.Params {
		if ps.Name == name {
			return ps, i, true
		}
	}
	return ParameterSpec{}, -1, false
}

// Validate checks the descriptor without modifying it.
func (p *ProcedureSpec) Validate() error {
	_, err := p.Compile()
	return err
}

// Compile validates the descriptor and returns an independent copy with the
// version defaulted, parameter defaults normalized to their native representation
// and the parameter index built. p itself is never written, so a declaration can
// be compiled by any number of registries while published copies are in use.
func (p *ProcedureSpec) Compile() (*ProcedureSpec, error) {
	if p.Name == "" {
		return nil, ErrInvalidDescriptor("procedure name is empty")
	}
	if p.Invoke == nil {
		return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s has no invoke target", p.Name))
	}
	if typeNames[p.Returns] == "" {
		return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s has invalid return type %s", p.Name, p.Returns))
	}

	out := *p
	out.Params = append([]ParameterSpec(nil), p.Params...)
	if out.Version == "" {
		out.Version = DefaultVersion
	}
	if _, err := masterminds.StrictNewVersion(out.Version); err != nil {
		return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s has invalid version %q: %v", p.Name, out.Version, err))
	}

	index := make(map[string]int, len(out.Params))
	for i := range out.Params {
		if err := out.Params[i].validate(); err != nil {
			return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s: %v", p.Name, err))
		}
		if _, dup := index[out.Params[i].Name]; dup {
			return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s declares parameter %q twice", p.Name, out.Params[i].Name))
		}
		index[out.Params[i].Name] = i
	}
	out.index = index
	return &out, nil
}

// ProcedureBuilder assembles a ProcedureSpec declaratively.
type ProcedureBuilder struct {
	spec ProcedureSpec
}

// NewProcedure starts the declaration of a procedure.
func NewProcedure(name, description string) *ProcedureBuilder {
	return &ProcedureBuilder{spec: ProcedureSpec{Name: name, Description: description, Returns: Void}}
}

// Params appends parameters in binding order.
func (b *ProcedureBuilder) Params(params ...ParameterSpec) *ProcedureBuilder {
	b.spec.Params = append(b.spec.Params, params...)
	return b
}

// Returns declares the result type.
func (b *ProcedureBuilder) Returns(t Type, description string) *ProcedureBuilder {
	b.spec.Returns = t
	b.spec.ReturnsDescription = description
	return b
}

// Version declares the signature version.
func (b *ProcedureBuilder) Version(v string) *ProcedureBuilder {
	b.spec.Version = v
	return b
}

// Invoke binds the call target and returns the finished descriptor.
func (b *ProcedureBuilder) Invoke(fn InvokeFunc) *ProcedureSpec {
	spec := b.spec
	spec.Params = append([]ParameterSpec(nil), b.spec.Params...)
	spec.Invoke = fn
	return &spec
}

// Method adapts a method expression on a concrete receiver type into an InvokeFunc.
func Method[T Receiver](fn func(rcv T, ctx context.Context, args *Args) (interface{}, error)) InvokeFunc {
	return func(ctx context.Context, rcv Receiver, args *Args) (interface{}, error) {
		typed, ok := rcv.(T)
		if !ok {
			return nil, fmt.Errorf("receiver %T cannot serve this procedure", rcv)
		}
		return fn(typed, ctx, args)
	}
}

// VoidMethod is Method for procedures that return no value.
func VoidMethod[T Receiver](fn func(rcv T, ctx context.Context, args *Args) error) InvokeFunc {
	return Method(func(rcv T, ctx context.Context, args *Args) (interface{}, error) {
		return nil, fn(rcv, ctx, args)
	})
}
