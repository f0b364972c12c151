// Package session manages receiver instances for one client session: lazy
// construction, serialized invocation and quiesce-then-close teardown.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/rpc"
)

const logPrefix = "session:session"

// TypeSource resolves receiver types by name. *registry.Registry satisfies it.
type TypeSource interface {
	ReceiverType(name string) (*rpc.ReceiverType, bool)
}

type receiverState int

const (
	stateUninitialized receiverState = iota
	stateActive
	stateClosed
)

// instance is one receiver within a session. gate is held exclusively by
// invocations of non-reentrant receivers and by shutdown.
type instance struct {
	rt    *rpc.ReceiverType
	gate  sync.RWMutex
	state receiverState
	rcv   rpc.Receiver
}

// Session owns at most one receiver per receiver type.
type Session struct {
	id    string
	host  platform.Host
	types TypeSource

	// gate is read-held by every invocation and write-held by ShutdownAll.
	gate sync.RWMutex

	mu        sync.Mutex
	instances map[string]*instance
	closed    bool

	shutdownOnce sync.Once
}

// New creates a session over host.
func New(id string, host platform.Host, types TypeSource) *Session {
	return &Session{
		id:        id,
		host:      host,
		types:     types,
		instances: make(map[string]*instance),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Closed reports whether ShutdownAll has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GetOrCreate returns the receiver for the named type, constructing it on first use.
func (s *Session) GetOrCreate(name string) (rpc.Receiver, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	inst, err := s.instance(name)
	if err != nil {
		return nil, err
	}
	inst.gate.RLock()
	defer inst.gate.RUnlock()
	if inst.state == stateClosed {
		return nil, rpc.ErrReceiverClosed(name)
	}
	return inst.rcv, nil
}

// instance looks up or constructs the named receiver. Callers hold s.gate for reading.
func (s *Session) instance(name string) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, rpc.ErrReceiverClosed(name)
	}

	inst, ok := s.instances[name]
	if !ok {
		rt, found := s.types.ReceiverType(name)
		if !found {
			return nil, rpc.ErrInvalidArgument(fmt.Sprintf("Unknown receiver type: %s", name))
		}
		inst = &instance{rt: rt}
		s.instances[name] = inst
	}

	switch inst.state {
	case stateActive:
		return inst, nil
	case stateClosed:
		return nil, rpc.ErrReceiverClosed(name)
	}

	rcv, err := construct(inst.rt, s.host)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - session %s: failed to construct %s: %v", logPrefix, s.id, name, err))
		return nil, rpc.ErrInvocationFailure(name, fmt.Sprintf("constructing receiver: %v", err))
	}
	inst.rcv = rcv
	inst.state = stateActive
	slog.Debug(fmt.Sprintf("%s - session %s: constructed %s", logPrefix, s.id, name))
	return inst, nil
}

func construct(rt *rpc.ReceiverType, host platform.Host) (rcv rpc.Receiver, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	rcv, err = rt.New(host)
	if err == nil && rcv == nil {
		err = fmt.Errorf("constructor returned no receiver")
	}
	return rcv, err
}

// Invoke runs spec against this session's receiver for spec.Receiver. Failures
// raised by the procedure body, including panics, are reported as INVOCATION_FAILURE.
//
// The deadline of ctx only governs admission: a call whose deadline passed while
// it waited for the receiver is not started. A started call runs to completion
// with a context that carries ctx's values but is never cancelled.
func (s *Session) Invoke(ctx context.Context, spec *rpc.ProcedureSpec, args *rpc.Args) (interface{}, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	inst, err := s.instance(spec.Receiver)
	if err != nil {
		return nil, err
	}

	if inst.rt.Reentrant {
		inst.gate.RLock()
		defer inst.gate.RUnlock()
	} else {
		inst.gate.Lock()
		defer inst.gate.Unlock()
	}
	// Shutdown(name) may have won the race for the instance gate.
	if inst.state == stateClosed {
		return nil, rpc.ErrReceiverClosed(spec.Receiver)
	}
	if err := ctx.Err(); err != nil {
		return nil, rpc.ErrInvocationFailure(spec.Name, fmt.Sprintf("not started: %v", err))
	}

	return call(context.WithoutCancel(ctx), spec, inst.rcv, args)
}

func call(ctx context.Context, spec *rpc.ProcedureSpec, rcv rpc.Receiver, args *rpc.Args) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic in %s: %v\n%s", logPrefix, spec.Name, r, debug.Stack()))
			result = nil
			err = rpc.ErrInvocationFailure(spec.Name, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err = spec.Invoke(ctx, rcv, args)
	if err != nil {
		return nil, rpc.ErrInvocationFailure(spec.Name, err.Error())
	}
	return result, nil
}

// Shutdown closes one receiver, waiting for an in-flight invocation on it to
// finish. Later calls against it fail with RECEIVER_CLOSED. A receiver that was
// never constructed is marked closed without being built.
func (s *Session) Shutdown(name string) error {
	s.mu.Lock()
	inst, ok := s.instances[name]
	if !ok {
		rt, found := s.types.ReceiverType(name)
		if !found {
			s.mu.Unlock()
			return rpc.ErrInvalidArgument(fmt.Sprintf("Unknown receiver type: %s", name))
		}
		inst = &instance{rt: rt, state: stateClosed}
		s.instances[name] = inst
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.closeInstance(name, inst)
}

// closeInstance transitions inst to Closed and calls Shutdown if it was Active.
func (s *Session) closeInstance(name string, inst *instance) error {
	inst.gate.Lock()
	defer inst.gate.Unlock()

	// s.mu guards state transitions against a concurrent construction in instance().
	s.mu.Lock()
	prev := inst.state
	inst.state = stateClosed
	rcv := inst.rcv
	s.mu.Unlock()

	if prev != stateActive {
		return nil
	}
	if err := shutdownReceiver(rcv); err != nil {
		return fmt.Errorf("%s - %s: %w", logPrefix, name, err)
	}
	slog.Debug(fmt.Sprintf("%s - session %s: closed %s", logPrefix, s.id, name))
	return nil
}

func shutdownReceiver(rcv rpc.Receiver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during shutdown: %v", r)
		}
	}()
	return rcv.Shutdown()
}

// ShutdownAll waits for in-flight invocations, refuses new ones and shuts down
// every constructed receiver. A failing receiver is logged and does not stop the
// others. The aggregated error is returned for the caller to log; only the first
// call has any effect.
func (s *Session) ShutdownAll() error {
	var result *multierror.Error

	s.shutdownOnce.Do(func() {
		s.gate.Lock()
		defer s.gate.Unlock()

		s.mu.Lock()
		s.closed = true
		names := make([]string, 0, len(s.instances))
		instances := make(map[string]*instance, len(s.instances))
		for name, inst := range s.instances {
			names = append(names, name)
			instances[name] = inst
		}
		s.mu.Unlock()
		sort.Strings(names)

		for _, name := range names {
			if err := s.closeInstance(name, instances[name]); err != nil {
				slog.Error(fmt.Sprintf("%s - session %s: shutdown failed: %v", logPrefix, s.id, err))
				result = multierror.Append(result, err)
			}
		}
		slog.Info(fmt.Sprintf("%s - session %s: shut down %d receivers", logPrefix, s.id, len(names)))
	})

	return result.ErrorOrNil()
}
