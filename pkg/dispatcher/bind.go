package dispatcher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/morezero/device-facades/pkg/commsutil"
	"github.com/morezero/device-facades/pkg/rpc"
)

// wireArgs holds the decoded, still untyped, arguments of a request. A nil
// value is an explicit JSON null.
type wireArgs struct {
	positional []interface{}
	named      map[string]interface{}
}

// decodeArgs decodes the params and named members of a request.
func decodeArgs(params json.RawMessage, named map[string]json.RawMessage) (*wireArgs, *rpc.Error) {
	args := &wireArgs{named: make(map[string]interface{}, len(named))}

	if len(params) > 0 {
		v, err := commsutil.DecodeWireValue(params)
		if err != nil {
			return nil, rpc.ErrInvalidArgument(fmt.Sprintf("Failed to parse params: %v", err))
		}
		switch p := v.(type) {
		case nil:
		case []interface{}:
			args.positional = p
		case map[string]interface{}:
			for k, val := range p {
				args.named[k] = val
			}
		default:
			return nil, rpc.ErrInvalidArgument(fmt.Sprintf("params must be an array or an object, got %s", wireTypeName(v)))
		}
	}

	for k, raw := range named {
		v, err := commsutil.DecodeWireValue(raw)
		if err != nil {
			return nil, rpc.ErrInvalidArgument(fmt.Sprintf("Failed to parse named argument %q: %v", k, err))
		}
		args.named[k] = v
	}

	return args, nil
}

// bind maps wire arguments onto the declared parameters of spec, applying
// defaults and type coercion. The result is in declared parameter order.
func bind(spec *rpc.ProcedureSpec, args *wireArgs) ([]interface{}, *rpc.Error) {
	if len(args.positional) > len(spec.Params) {
		return nil, rpc.ErrInvalidArgument(fmt.Sprintf(
			"%s takes at most %d arguments, got %d", spec.Name, len(spec.Params), len(args.positional)))
	}

	if len(args.named) > 0 {
		var unknown []string
		for name := range args.named {
			if _, _, ok := spec.Param(name); !ok {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &rpc.Error{
				Code:    rpc.CodeInvalidArgument,
				Message: fmt.Sprintf("%s has no parameter named %s", spec.Name, strings.Join(unknown, ", ")),
				Details: map[string]interface{}{"procedure": spec.Name, "unknown": unknown},
			}
		}
	}

	values := make([]interface{}, len(spec.Params))
	for i, ps := range spec.Params {
		var v interface{}
		if i < len(args.positional) {
			v = args.positional[i]
		}
		if nv, ok := args.named[ps.Name]; ok {
			v = nv
		}

		if v == nil {
			switch ps.Kind {
			case rpc.Required:
				return nil, rpc.ErrMissingArgument(spec.Name, ps.Name)
			case rpc.OptionalWithDefault:
				values[i] = ps.Default
			case rpc.OptionalNullable:
				values[i] = nil
			}
			continue
		}

		native, err := coerce(ps, v)
		if err != nil {
			return nil, err
		}
		values[i] = native
	}
	return values, nil
}
