package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/device-facades/pkg/rpc"
)

const describeLogPrefix = "registry:describe"

// Describe lists procedures with their parameter specs, sorted by name. A
// non-empty Name that is not registered yields UNKNOWN_PROCEDURE.
func (r *Registry) Describe(input *DescribeInput) (*DescribeOutput, error) {
	if input == nil {
		input = &DescribeInput{}
	}
	slog.Debug(fmt.Sprintf("%s - name=%s receiver=%s query=%s", describeLogPrefix, input.Name, input.Receiver, input.Query))

	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	if input.Name != "" {
		p, ok := r.procedures[input.Name]
		if !ok {
			return nil, rpc.ErrUnknownProcedure(input.Name)
		}
		rt := r.receivers[p.Receiver]
		return &DescribeOutput{
			Procedures: []ProcedureDescription{describeProcedure(p)},
			Receivers:  []ReceiverDescription{describeReceiver(rt)},
			Total:      1,
		}, nil
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	procs := make([]ProcedureDescription, 0, len(r.procedures))
	receiverSeen := make(map[string]bool)
	var receivers []ReceiverDescription

	for _, name := range r.sortedNames() {
		p := r.procedures[name]
		if input.Receiver != "" && p.Receiver != input.Receiver {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		procs = append(procs, describeProcedure(p))
		if !receiverSeen[p.Receiver] {
			receiverSeen[p.Receiver] = true
			receivers = append(receivers, describeReceiver(r.receivers[p.Receiver]))
		}
	}

	if receivers == nil {
		receivers = []ReceiverDescription{}
	}

	return &DescribeOutput{
		Procedures: procs,
		Receivers:  receivers,
		Total:      len(procs),
	}, nil
}

func describeProcedure(p *rpc.ProcedureSpec) ProcedureDescription {
	params := make([]ParameterDescription, len(p.Params))
	for i, ps := range p.Params {
		params[i] = ParameterDescription{
			Name:        ps.Name,
			Kind:        ps.Kind,
			Type:        ps.Type,
			Default:     ps.Default,
			Description: ps.Description,
		}
	}
	return ProcedureDescription{
		Name:               p.Name,
		Description:        p.Description,
		Receiver:           p.Receiver,
		Version:            p.Version,
		Returns:            p.Returns,
		ReturnsDescription: p.ReturnsDescription,
		Params:             params,
	}
}

func describeReceiver(rt *rpc.ReceiverType) ReceiverDescription {
	if rt == nil {
		return ReceiverDescription{Procedures: []string{}}
	}
	names := make([]string, len(rt.Procedures))
	for i, p := range rt.Procedures {
		names[i] = p.Name
	}
	return ReceiverDescription{
		Name:        rt.Name,
		Description: rt.Description,
		Reentrant:   rt.Reentrant,
		Procedures:  names,
	}
}
