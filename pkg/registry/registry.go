package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/morezero/device-facades/pkg/rpc"
)

const logPrefix = "registry:registry"

// Registry maps procedure names to their descriptors. It is populated during
// startup and frozen before the first request; once frozen it is read without locks.
type Registry struct {
	mu         sync.Mutex
	frozen     atomic.Bool
	procedures map[string]*rpc.ProcedureSpec
	receivers  map[string]*rpc.ReceiverType
	// names is the sorted procedure list, computed at freeze.
	names []string
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		procedures: make(map[string]*rpc.ProcedureSpec),
		receivers:  make(map[string]*rpc.ReceiverType),
	}
}

// Build registers every receiver type and freezes the registry. The first
// registration error aborts the build.
func Build(types ...*rpc.ReceiverType) (*Registry, error) {
	r := New()
	for _, rt := range types {
		if err := r.Register(rt); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

// Register compiles a receiver type and adds its procedures. The registry keeps
// the compiled copies, so the declaration itself is never modified. Registration is
// all-or-nothing: on error nothing from rt is added.
func (r *Registry) Register(decl *rpc.ReceiverType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return rpc.ErrInvalidDescriptor("registry is frozen")
	}
	rt, err := decl.Compile()
	if err != nil {
		return err
	}
	if _, exists := r.receivers[rt.Name]; exists {
		return rpc.NewError(rpc.CodeDuplicateProcedureName, fmt.Sprintf("Receiver type %s registered twice", rt.Name))
	}

	seen := make(map[string]bool, len(rt.Procedures))
	for _, p := range rt.Procedures {
		if existing, ok := r.procedures[p.Name]; ok {
			return rpc.ErrDuplicateProcedureName(p.Name, existing.Receiver, rt.Name)
		}
		if seen[p.Name] {
			return rpc.ErrDuplicateProcedureName(p.Name, rt.Name, rt.Name)
		}
		seen[p.Name] = true
	}

	for _, p := range rt.Procedures {
		r.procedures[p.Name] = p
	}
	r.receivers[rt.Name] = rt

	slog.Info(fmt.Sprintf("%s - registered receiver %s with %d procedures", logPrefix, rt.Name, len(rt.Procedures)))
	return nil
}

// Freeze makes the registry read-only. Further calls are no-ops.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return
	}

	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	r.names = names
	r.frozen.Store(true)

	slog.Info(fmt.Sprintf("%s - frozen with %d procedures across %d receivers", logPrefix, len(r.procedures), len(r.receivers)))
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Lookup returns the descriptor registered under name. The same pointer is
// returned for the lifetime of the process.
func (r *Registry) Lookup(name string) (*rpc.ProcedureSpec, error) {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	p, ok := r.procedures[name]
	if !ok {
		return nil, rpc.ErrUnknownProcedure(name)
	}
	return p, nil
}

// ReceiverType returns the receiver type registered under name.
func (r *Registry) ReceiverType(name string) (*rpc.ReceiverType, bool) {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	rt, ok := r.receivers[name]
	return rt, ok
}

// ReceiverTypes returns every registered receiver type sorted by name.
func (r *Registry) ReceiverTypes() []*rpc.ReceiverType {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]*rpc.ReceiverType, 0, len(r.receivers))
	for _, rt := range r.receivers {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortedNames returns procedure names in order. Callers hold the lock when unfrozen.
func (r *Registry) sortedNames() []string {
	if r.frozen.Load() {
		return r.names
	}
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
