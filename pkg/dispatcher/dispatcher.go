package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/device-facades/pkg/rpc"
	"github.com/morezero/device-facades/pkg/semver"
	"github.com/morezero/device-facades/pkg/session"
)

const logPrefix = "dispatcher:dispatch"

// ProcedureSource resolves procedure names. *registry.Registry satisfies it.
type ProcedureSource interface {
	Lookup(name string) (*rpc.ProcedureSpec, error)
}

// SessionSource resolves session ids. *session.Manager satisfies it.
type SessionSource interface {
	Acquire(id string) (*session.Session, error)
}

// Dispatcher locates, binds and invokes procedures for incoming requests.
type Dispatcher struct {
	procedures ProcedureSource
	sessions   SessionSource
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Procedures ProcedureSource
	Sessions   SessionSource
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{
		procedures: params.Procedures,
		sessions:   params.Sessions,
	}
}

// Dispatch runs one request to completion and always returns a response.
// Failures never escape as Go errors or panics; they are reported in the
// response's error detail.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (resp *Response) {
	if req == nil {
		return errorResponse("", rpc.CodeInvalidRequest, "Empty request", false)
	}
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s session=%s", logPrefix, req.Method, req.ID, req.Session))

	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic dispatching %s: %v", logPrefix, req.Method, r))
			resp = rpcErrorToResponse(req.ID, rpc.ErrInvocationFailure(req.Method, fmt.Sprintf("panic: %v", r)))
		}
	}()

	if req.Method == "" {
		return errorResponse(req.ID, rpc.CodeInvalidRequest, "Missing method", false)
	}
	ref, err := semver.ParseProcedureRef(req.Method)
	if err != nil {
		return errorResponse(req.ID, rpc.CodeInvalidRequest, err.Error(), false)
	}

	spec, err := d.procedures.Lookup(ref.Name)
	if err != nil {
		return rpcErrorToResponse(req.ID, err)
	}
	if err := semver.ValidateRange(ref.Range); err != nil {
		return errorResponse(req.ID, rpc.CodeInvalidRequest, err.Error(), false)
	}
	if ref.Range != "" && !semver.SatisfiesRange(spec.Version, ref.Range) {
		return rpcErrorToResponse(req.ID, rpc.ErrIncompatibleVersion(spec.Name, spec.Version, ref.Range))
	}

	wire, rerr := decodeArgs(req.Params, req.Named)
	if rerr != nil {
		return rpcErrorToResponse(req.ID, rerr)
	}
	values, rerr := bind(spec, wire)
	if rerr != nil {
		return rpcErrorToResponse(req.ID, rerr)
	}

	sess, err := d.sessions.Acquire(req.Session)
	if err != nil {
		return rpcErrorToResponse(req.ID, err)
	}

	result, err := sess.Invoke(ctx, spec, rpc.NewArgs(spec, values))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %s failed: %v", logPrefix, spec.Name, err))
		return rpcErrorToResponse(req.ID, err)
	}

	encoded, rerr := encodeResult(spec, result)
	if rerr != nil {
		return rpcErrorToResponse(req.ID, rerr)
	}
	return &Response{ID: req.ID, Ok: true, Result: encoded}
}

// encodeResult serializes a procedure result. Void procedures answer null.
func encodeResult(spec *rpc.ProcedureSpec, result interface{}) (json.RawMessage, *rpc.Error) {
	if spec.Returns == rpc.Void || result == nil {
		return nullResult, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, rpc.ErrInvocationFailure(spec.Name, fmt.Sprintf("encoding result: %v", err))
	}
	return data, nil
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// rpcErrorToResponse maps an error to a response.
func rpcErrorToResponse(id string, err error) *Response {
	return &Response{ID: id, Ok: false, Error: ErrorDetailFor(err)}
}

// ErrorDetailFor maps an error to its wire form. Errors outside the rpc
// taxonomy are reported as INTERNAL_ERROR without their Go type.
func ErrorDetailFor(err error) *ErrorDetail {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return &ErrorDetail{
			Code:      rpcErr.Code,
			Message:   rpcErr.Message,
			Details:   rpcErr.Details,
			Retryable: rpcErr.Code == rpc.CodeInvocationFailure || rpcErr.Code == rpc.CodeInternal,
		}
	}
	return &ErrorDetail{Code: rpc.CodeInternal, Message: err.Error(), Retryable: true}
}
