package rpc

import (
	"fmt"

	"github.com/morezero/device-facades/pkg/platform"
)

// Receiver groups a cohesive set of procedures and owns the platform handles they use.
type Receiver interface {
	// Shutdown releases held handles. It is called exactly once per instance.
	Shutdown() error
}

// Constructor builds a receiver from the session host.
type Constructor func(host platform.Host) (Receiver, error)

// ReceiverType declares a receiver and the procedures it serves.
type ReceiverType struct {
	Name        string
	Description string
	New         Constructor
	// Reentrant receivers are invoked without per-instance mutual exclusion.
	Reentrant  bool
	Procedures []*ProcedureSpec
}

// NewReceiverType declares a receiver type and stamps its name on every procedure.
func NewReceiverType(name, description string, ctor Constructor, procedures ...*ProcedureSpec) *ReceiverType {
	for _, p := range procedures {
		if p != nil {
			p.Receiver = name
		}
	}
	return &ReceiverType{Name: name, Description: description, New: ctor, Procedures: procedures}
}

// Validate checks the declaration and every procedure in it without modifying them.
func (rt *ReceiverType) Validate() error {
	_, err := rt.Compile()
	return err
}

// Compile validates the declaration and returns a copy holding compiled copies
// of its procedures, each stamped with the receiver name.
func (rt *ReceiverType) Compile() (*ReceiverType, error) {
	if rt == nil || rt.Name == "" {
		return nil, ErrInvalidDescriptor("receiver type name is empty")
	}
	if rt.New == nil {
		return nil, ErrInvalidDescriptor(fmt.Sprintf("receiver type %s has no constructor", rt.Name))
	}

	out := *rt
	out.Procedures = make([]*ProcedureSpec, len(rt.Procedures))
	for i, p := range rt.Procedures {
		if p == nil {
			return nil, ErrInvalidDescriptor(fmt.Sprintf("receiver type %s: procedure %d is nil", rt.Name, i))
		}
		if p.Receiver != "" && p.Receiver != rt.Name {
			return nil, ErrInvalidDescriptor(fmt.Sprintf("procedure %s belongs to %s, not %s", p.Name, p.Receiver, rt.Name))
		}
		compiled, err := p.Compile()
		if err != nil {
			return nil, err
		}
		compiled.Receiver = rt.Name
		out.Procedures[i] = compiled
	}
	return &out, nil
}
